// Package webhook posts job progress events to caller-supplied URLs.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/observability/metrics"
	"github.com/target/bulkmailer/internal/observability/statsd"
)

// DefaultTimeout bounds a single webhook POST.
const DefaultTimeout = 5 * time.Second

// Header names set on every delivery.
const (
	HeaderEvent     = "X-Bulkmailer-Event"
	HeaderJobID     = "X-Bulkmailer-Job-ID"
	HeaderSignature = "X-Bulkmailer-Signature"
)

// Options configures a Notifier.
type Options struct {
	Client *http.Client
	// Secret signs bodies with HMAC-SHA256 when set.
	Secret  string
	Timeout time.Duration
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// Notifier delivers webhooks in the background. Deliveries of one job are posted one at a
// time in the order they were scheduled. Failures are logged and counted, never returned.
type Notifier struct {
	client  *http.Client
	secret  []byte
	timeout time.Duration
	metrics statsd.Sink
	logger  *slog.Logger

	mu     sync.Mutex
	queues map[string][]delivery
	wg     sync.WaitGroup
}

type delivery struct {
	ctx     context.Context
	req     core.WebhookRequest
	timeout time.Duration
}

var _ core.WebhookNotifier = (*Notifier)(nil)

// NewNotifier constructs a Notifier.
func NewNotifier(opts Options) *Notifier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Notifier{
		client:  client,
		secret:  []byte(opts.Secret),
		timeout: timeout,
		metrics: opts.Metrics,
		logger:  logger.With("component", "webhook"),
		queues:  map[string][]delivery{},
	}
}

// PostFireAndForget queues the POST behind earlier deliveries of the same job and returns
// immediately. The delivery outlives ctx cancellation but not its own timeout.
func (n *Notifier) PostFireAndForget(ctx context.Context, req core.WebhookRequest) {
	if req.URL == "" {
		return
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = n.timeout
	}
	d := delivery{ctx: context.WithoutCancel(ctx), req: req, timeout: timeout}
	key := req.Payload.JobID

	n.mu.Lock()
	defer n.mu.Unlock()
	if pending, ok := n.queues[key]; ok {
		n.queues[key] = append(pending, d)
		return
	}
	n.queues[key] = []delivery{}
	n.wg.Add(1)
	go n.drain(key, d)
}

// drain delivers first and then every delivery queued for key until the queue is empty.
func (n *Notifier) drain(key string, first delivery) {
	defer n.wg.Done()
	d := first
	for {
		n.deliver(d)

		n.mu.Lock()
		pending := n.queues[key]
		if len(pending) == 0 {
			delete(n.queues, key)
			n.mu.Unlock()
			return
		}
		d = pending[0]
		n.queues[key] = pending[1:]
		n.mu.Unlock()
	}
}

func (n *Notifier) deliver(d delivery) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	result := metrics.ResultSuccess
	if err := n.post(ctx, d.req); err != nil {
		result = metrics.ResultError
		n.logger.WarnContext(ctx, "webhook delivery failed",
			"job_id", d.req.Payload.JobID,
			"event_type", d.req.Payload.EventType,
			"error", err,
		)
	}
	if n.metrics != nil {
		n.metrics.Count(metrics.WebhookDelivery, 1, map[string]string{"result": result})
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) post(ctx context.Context, req core.WebhookRequest) error {
	body, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderEvent, string(req.Payload.EventType))
	httpReq.Header.Set(HeaderJobID, req.Payload.JobID)
	if len(n.secret) > 0 {
		httpReq.Header.Set(HeaderSignature, "sha256="+Sign(n.secret, body))
	}

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header (with or without the "sha256=" prefix) signs body.
func VerifySignature(secret, body []byte, header string) bool {
	if len(header) > 7 && header[:7] == "sha256=" {
		header = header[7:]
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(header))
}
