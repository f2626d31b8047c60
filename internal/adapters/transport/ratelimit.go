package transport

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
)

// RateLimited decorates a TransportFactory so that all transports of one sender share a
// token bucket, across every job that sends as that identity in this process.
type RateLimited struct {
	next  core.TransportFactory
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ core.TransportFactory = (*RateLimited)(nil)

// NewRateLimited wraps next. A non-positive perSecond disables limiting and returns next as is.
func NewRateLimited(next core.TransportFactory, perSecond float64, burst int) core.TransportFactory {
	if perSecond <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{
		next:     next,
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: map[string]*rate.Limiter{},
	}
}

// ForSender implements core.TransportFactory.
func (r *RateLimited) ForSender(ctx context.Context, tenant model.Tenant, senderEmail string) (core.Transport, error) {
	t, err := r.next.ForSender(ctx, tenant, senderEmail)
	if err != nil {
		return nil, err
	}
	return &limitedTransport{next: t, limiter: r.limiter(tenant.Key() + "|" + strings.ToLower(senderEmail))}, nil
}

func (r *RateLimited) limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = l
	}
	return l
}

type limitedTransport struct {
	next    core.Transport
	limiter *rate.Limiter
	// granted holds a token taken by AwaitSend for the next Send.
	granted atomic.Bool
}

var _ core.SendGate = (*limitedTransport)(nil)

// AwaitSend takes a token ahead of Send. A cancelled wait returns ctx's error.
func (t *limitedTransport) AwaitSend(ctx context.Context) error {
	if t.granted.Load() {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	t.granted.Store(true)
	return nil
}

// Send uses a token taken by AwaitSend or waits for one; a cancelled wait returns ctx's
// error without sending.
func (t *limitedTransport) Send(ctx context.Context, msg *model.Message) (string, error) {
	if !t.granted.CompareAndSwap(true, false) {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	return t.next.Send(ctx, msg)
}
