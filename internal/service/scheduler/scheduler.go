// Package scheduler dispatches one bulk job: it walks the pending recipients in stored
// order, renders, composes and sends each message, records outcomes and paces sends.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
	apperrors "github.com/target/bulkmailer/internal/errors"
	obserrors "github.com/target/bulkmailer/internal/observability/errors"
	"github.com/target/bulkmailer/internal/observability/metrics"
	"github.com/target/bulkmailer/internal/observability/notify"
	"github.com/target/bulkmailer/internal/observability/statsd"
	"github.com/target/bulkmailer/internal/service/compose"
	"github.com/target/bulkmailer/internal/service/pacing"
	"github.com/target/bulkmailer/internal/service/render"
)

// Defaults for Options.
const (
	DefaultStatusRefresh  = time.Second
	DefaultHeartbeatEvery = 30 * time.Second
)

// FailureNotifier receives an alert when a job aborts.
type FailureNotifier interface {
	NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload)
}

// Options groups dependencies for Scheduler.
type Options struct {
	Repo       core.JobRepository    // Required
	Transports core.TransportFactory // Required
	Resolver   *render.Resolver      // Required
	Renderer   *render.Renderer      // Required
	Composer   *compose.Composer     // Required
	Pacer      *pacing.Pacer         // Optional: defaults to pacing.New(pacing.Options{})
	Webhooks   core.WebhookNotifier  // Optional
	Failures   FailureNotifier       // Optional
	Metrics    statsd.Sink           // Optional
	Logger     *slog.Logger          // Optional

	WebhookTimeout time.Duration
	// StatusRefresh throttles persisted-status reads during pacing waits.
	StatusRefresh time.Duration
	// HeartbeatEvery is the minimum heartbeat rate while a job is waiting or paused.
	HeartbeatEvery time.Duration
	Now            func() time.Time
}

// Scheduler runs jobs. It holds no per-job state, so one instance serves every run.
type Scheduler struct {
	repo       core.JobRepository
	transports core.TransportFactory
	resolver   *render.Resolver
	renderer   *render.Renderer
	composer   *compose.Composer
	pacer      *pacing.Pacer
	webhooks   core.WebhookNotifier
	failures   FailureNotifier
	metrics    statsd.Sink
	logger     *slog.Logger

	webhookTimeout time.Duration
	statusRefresh  time.Duration
	heartbeatEvery time.Duration
	now            func() time.Time
}

// New constructs a Scheduler.
func New(opts Options) (*Scheduler, error) {
	switch {
	case opts.Repo == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Transports == nil:
		return nil, errors.New("TransportFactory is required")
	case opts.Resolver == nil || opts.Renderer == nil:
		return nil, errors.New("template resolver and renderer are required")
	case opts.Composer == nil:
		return nil, errors.New("composer is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pacer := opts.Pacer
	if pacer == nil {
		pacer = pacing.New(pacing.Options{})
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	refresh := opts.StatusRefresh
	if refresh <= 0 {
		refresh = DefaultStatusRefresh
	}
	heartbeat := opts.HeartbeatEvery
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatEvery
	}

	return &Scheduler{
		repo:           opts.Repo,
		transports:     opts.Transports,
		resolver:       opts.Resolver,
		renderer:       opts.Renderer,
		composer:       opts.Composer,
		pacer:          pacer,
		webhooks:       opts.Webhooks,
		failures:       opts.Failures,
		metrics:        opts.Metrics,
		logger:         logger.With("component", "scheduler"),
		webhookTimeout: opts.WebhookTimeout,
		statusRefresh:  refresh,
		heartbeatEvery: heartbeat,
		now:            now,
	}, nil
}

// RunOptions carries per-run inputs.
type RunOptions struct {
	// Signals carries in-process pause and stop requests. Optional.
	Signals pacing.Signals
	// Attachments overrides every recipient's embedded attachment list when non-empty.
	// Nil uses the job's stored attachment list.
	Attachments []string
}

// Result summarizes a run.
type Result struct {
	JobID   string
	Status  model.JobStatus
	Total   int
	Success int
	Failed  int
	// Interrupted is set when ctx was canceled before the job reached a final state;
	// the job is still running in persistence and the caller decides where it goes.
	Interrupted bool
}

// Run dispatches every pending recipient of job. Recipient-scoped failures are recorded
// and never returned. A returned error is job-scoped: the job has been moved to error
// and a failed event emitted.
func (s *Scheduler) Run(ctx context.Context, job *model.Job, opts RunOptions) (*Result, error) {
	r := &run{
		s:       s,
		job:     job,
		logger:  s.logger.With("job_id", job.ID, "tenant", job.Tenant.Key()),
		started: s.now(),
		total:   job.Total,
		success: job.SuccessCount,
		failed:  job.FailureCount,
	}
	r.signals = &jobSignals{
		repo:      s.repo,
		jobID:     job.ID,
		claimID:   job.ClaimID,
		local:     opts.Signals,
		refresh:   s.statusRefresh,
		heartbeat: s.heartbeatEvery,
		now:       s.now,
		onError:   r.persistFailed,
		status:    model.JobStatusRunning,
	}
	return r.execute(ctx, opts)
}

type step int

const (
	proceed step = iota
	stop
	interrupted
)

type run struct {
	s       *Scheduler
	job     *model.Job
	logger  *slog.Logger
	signals *jobSignals
	started time.Time

	total   int
	success int
	failed  int
}

func (r *run) execute(ctx context.Context, opts RunOptions) (*Result, error) {
	if owned, err := r.markRunning(ctx); err != nil || !owned {
		if err != nil {
			return r.fail(ctx, err)
		}
		return r.result(r.job.Status), nil
	}

	pending := model.RecipientStatusPending
	recipients, err := r.s.repo.ListRecipients(ctx, core.RecipientFilter{JobID: r.job.ID, Status: &pending})
	if err != nil {
		if ctx.Err() != nil {
			return r.interrupted(), nil
		}
		return r.fail(ctx, apperrors.NewDelivery(apperrors.ErrPersistence, "list recipients", err))
	}
	if r.total == 0 {
		r.total = len(recipients) + r.success + r.failed
	}

	r.emit(ctx, model.JobEventStarted, model.EventData{"total": r.total})
	r.logger.InfoContext(ctx, "job started", "pending", len(recipients), "total", r.total)

	tpl, err := r.s.resolver.PrepareJob(ctx, r.job)
	if err != nil {
		return r.fail(ctx, err)
	}
	transport, err := r.s.transports.ForSender(ctx, r.job.Tenant, r.job.SenderEmail)
	if err != nil {
		if !apperrors.IsJobScoped(err) {
			err = apperrors.NewDelivery(apperrors.ErrInitialization, "create transport", err)
		}
		return r.fail(ctx, err)
	}

	explicit := opts.Attachments
	if explicit == nil {
		explicit = r.job.Attachments
	}

	for i, rcpt := range recipients {
		switch r.checkpoint(ctx) {
		case stop:
			return r.finishStopped(ctx)
		case interrupted:
			return r.interrupted(), nil
		}

		if r.deliver(ctx, transport, tpl, explicit, rcpt) == interrupted {
			return r.interrupted(), nil
		}

		if i == len(recipients)-1 {
			break
		}
		delay := r.s.pacer.NextDelay(r.job.MinInterval, r.job.MaxInterval)
		if r.s.pacer.Wait(ctx, delay, r.signals) {
			if ctx.Err() != nil {
				return r.interrupted(), nil
			}
			return r.finishStopped(ctx)
		}
	}

	switch r.checkpoint(ctx) {
	case stop:
		return r.finishStopped(ctx)
	case interrupted:
		return r.interrupted(), nil
	}
	return r.finishCompleted(ctx)
}

// markRunning claims the job when the caller has not already done so. It reports false
// when the job is in a state this run must not touch. A job started here carries no claim
// id, so ownership checks fall back to the status alone.
func (r *run) markRunning(ctx context.Context) (bool, error) {
	if r.job.Status == model.JobStatusRunning {
		return true, nil
	}
	changed, err := r.s.repo.TransitionStatus(ctx, core.TransitionParams{
		JobID: r.job.ID,
		From:  []model.JobStatus{model.JobStatusQueued},
		To:    model.JobStatusRunning,
	})
	if err != nil {
		return false, apperrors.NewDelivery(apperrors.ErrPersistence, "mark running", err)
	}
	if !changed {
		r.logger.WarnContext(ctx, "job not claimable", "status", r.job.Status)
		return false, nil
	}
	r.job.Status = model.JobStatusRunning
	return true, nil
}

// checkpoint runs at every recipient boundary: heartbeat, persisted status poll, stop
// check, then a pause gate that blocks until resume or stop.
func (r *run) checkpoint(ctx context.Context) step {
	if ctx.Err() != nil {
		return interrupted
	}
	r.signals.sync(ctx)
	if r.signals.ShouldStop(ctx) {
		return stop
	}
	if r.signals.ShouldPause(ctx) {
		r.logger.InfoContext(ctx, "job paused")
		if r.s.pacer.Wait(ctx, 0, r.signals) {
			if ctx.Err() != nil {
				return interrupted
			}
			return stop
		}
		r.logger.InfoContext(ctx, "job resumed")
	}
	return proceed
}

func (r *run) deliver(
	ctx context.Context,
	transport core.Transport,
	tpl *render.JobTemplate,
	explicit []string,
	rcpt *model.Recipient,
) step {
	start := r.s.now()
	msg, err := r.prepare(ctx, tpl, explicit, rcpt)
	if err != nil && ctx.Err() != nil {
		return interrupted
	}
	messageID := ""
	if err == nil {
		messageID, err = r.send(ctx, transport, msg)
		if errors.Is(err, errSendInterrupted) {
			return interrupted
		}
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		r.recordFailure(ctx, rcpt, err)
	} else {
		r.recordSuccess(ctx, rcpt, messageID, msg.Skipped)
	}
	metrics.EmitSend(r.s.metrics, metrics.SendMetric{
		JobKind:  string(r.job.Kind),
		Result:   result,
		Duration: r.s.now().Sub(start),
		Err:      err,
	})
	return proceed
}

var errSendInterrupted = errors.New("send interrupted before dispatch")

// send waits on the transport's gate under ctx, then sends detached from ctx so runner
// shutdown never abandons a message the provider may already have accepted.
func (r *run) send(ctx context.Context, transport core.Transport, msg *model.Message) (string, error) {
	if gate, ok := transport.(core.SendGate); ok {
		if err := gate.AwaitSend(ctx); err != nil {
			if ctx.Err() != nil {
				return "", errSendInterrupted
			}
			return "", apperrors.NewDelivery(apperrors.ErrTransport, "await send", err)
		}
	}
	messageID, err := transport.Send(context.WithoutCancel(ctx), msg)
	if err != nil && !errors.Is(err, apperrors.ErrTransport) {
		err = apperrors.NewDelivery(apperrors.ErrTransport, "send", err)
	}
	return messageID, err
}

func (r *run) prepare(
	ctx context.Context,
	tpl *render.JobTemplate,
	explicit []string,
	rcpt *model.Recipient,
) (*model.Message, error) {
	body, err := r.s.resolver.ForRecipient(ctx, r.job.Tenant, tpl, rcpt.Language)
	if err != nil {
		return nil, err
	}
	rendered, err := r.s.renderer.Render(ctx, render.Input{
		Tenant:    r.job.Tenant,
		Body:      body,
		Variables: render.TemplateVariables(rcpt.Variables),
	})
	if err != nil {
		return nil, apperrors.NewDelivery(apperrors.ErrRender, "render", err)
	}
	return r.s.composer.Compose(ctx,
		compose.Envelope{
			Tenant:  r.job.Tenant,
			From:    r.job.SenderEmail,
			To:      rcpt.ToEmail,
			Subject: rendered.Subject,
		},
		compose.Content{
			Text:          rendered.Text,
			HTML:          rendered.HTML,
			Images:        rendered.Images,
			AttachmentIDs: render.EffectiveAttachments(explicit, rcpt.Variables),
		},
	)
}

func (r *run) recordSuccess(ctx context.Context, rcpt *model.Recipient, messageID string, skipped []model.SkippedAttachment) {
	pctx := context.WithoutCancel(ctx)
	counted := r.setResult(pctx, model.RecipientResult{
		RecipientID: rcpt.ID,
		Status:      model.RecipientStatusSuccess,
		MessageID:   messageID,
	})
	if counted {
		r.success++
		if err := r.s.repo.IncrementCounts(pctx, core.CountDelta{JobID: r.job.ID, Success: 1}); err != nil {
			r.persistFailed("increment_counts", err)
		}
	}

	data := model.EventData{"email": rcpt.ToEmail, "message_id": messageID}
	if len(skipped) > 0 {
		data["skipped_attachments"] = skipped
	}
	r.emit(pctx, model.JobEventRecipientSuccess, data)
	r.logger.DebugContext(ctx, "recipient sent", "recipient_id", rcpt.ID, "message_id", messageID)
}

func (r *run) recordFailure(ctx context.Context, rcpt *model.Recipient, cause error) {
	pctx := context.WithoutCancel(ctx)
	msg := cause.Error()
	counted := r.setResult(pctx, model.RecipientResult{
		RecipientID: rcpt.ID,
		Status:      model.RecipientStatusFailed,
		Error:       msg,
	})
	if counted {
		r.failed++
		if err := r.s.repo.IncrementCounts(pctx, core.CountDelta{JobID: r.job.ID, Failure: 1}); err != nil {
			r.persistFailed("increment_counts", err)
		}
	}

	r.emit(pctx, model.JobEventRecipientFailed, model.EventData{"email": rcpt.ToEmail, "error": msg})
	r.logger.WarnContext(ctx, "recipient failed",
		"recipient_id", rcpt.ID,
		"error_class", obserrors.Classify(cause),
		"error", cause,
	)
}

// setResult reports whether the outcome was newly recorded and should be counted.
// A failed write is not counted, so counters may undercount but never overcount.
func (r *run) setResult(ctx context.Context, res model.RecipientResult) bool {
	changed, err := r.s.repo.SetRecipientResult(ctx, res)
	if err != nil {
		r.persistFailed("set_recipient_result", err)
		return false
	}
	if !changed {
		r.logger.WarnContext(ctx, "recipient already finalized", "recipient_id", res.RecipientID)
	}
	return changed
}

func (r *run) finishCompleted(ctx context.Context) (*Result, error) {
	pctx := context.WithoutCancel(ctx)
	changed, err := r.s.repo.TransitionStatus(pctx, core.TransitionParams{
		JobID:   r.job.ID,
		From:    []model.JobStatus{model.JobStatusRunning},
		To:      model.JobStatusCompleted,
		ClaimID: r.job.ClaimID,
	})
	if err != nil {
		return r.fail(ctx, apperrors.NewDelivery(apperrors.ErrPersistence, "mark completed", err))
	}
	if !changed {
		return r.lostOwnership(pctx)
	}

	r.emit(pctx, model.JobEventCompleted, model.EventData{
		"success": r.success,
		"failed":  r.failed,
		"total":   r.total,
	})
	r.lifecycle(model.JobStatusCompleted, metrics.ResultSuccess, nil)
	r.logger.InfoContext(ctx, "job completed", "success", r.success, "failed", r.failed, "total", r.total)
	return r.result(model.JobStatusCompleted), nil
}

func (r *run) finishStopped(ctx context.Context) (*Result, error) {
	pctx := context.WithoutCancel(ctx)
	if r.signals.lostClaim() {
		return r.lostOwnership(pctx)
	}
	changed, err := r.s.repo.TransitionStatus(pctx, core.TransitionParams{
		JobID:   r.job.ID,
		From:    []model.JobStatus{model.JobStatusRunning, model.JobStatusPaused},
		To:      model.JobStatusStopped,
		ClaimID: r.job.ClaimID,
	})
	if err != nil {
		return r.fail(ctx, apperrors.NewDelivery(apperrors.ErrPersistence, "mark stopped", err))
	}
	if !changed {
		current, serr := r.s.repo.ClaimStatus(pctx, r.job.ID, r.job.ClaimID)
		if serr != nil || current != model.JobStatusStopped {
			return r.lostOwnership(pctx)
		}
	}

	r.emit(pctx, model.JobEventStopped, model.EventData{"success": r.success, "failed": r.failed})
	r.lifecycle(model.JobStatusStopped, metrics.ResultSuccess, nil)
	r.logger.InfoContext(ctx, "job stopped", "success", r.success, "failed", r.failed)
	return r.result(model.JobStatusStopped), nil
}

// fail records a job-scoped error and returns it.
func (r *run) fail(ctx context.Context, cause error) (*Result, error) {
	pctx := context.WithoutCancel(ctx)
	msg := cause.Error()
	if _, err := r.s.repo.TransitionStatus(pctx, core.TransitionParams{
		JobID:     r.job.ID,
		From:      []model.JobStatus{model.JobStatusRunning, model.JobStatusPaused},
		To:        model.JobStatusError,
		LastError: &msg,
		ClaimID:   r.job.ClaimID,
	}); err != nil {
		r.persistFailed("mark_error", err)
	}

	r.emit(pctx, model.JobEventFailed, model.EventData{"error": msg})
	r.lifecycle(model.JobStatusError, metrics.ResultError, cause)
	r.logger.ErrorContext(ctx, "job failed", "error", cause, "success", r.success, "failed", r.failed)

	if r.s.failures != nil {
		r.s.failures.NotifyJobFailure(pctx, notify.JobFailurePayload{
			JobID:       r.job.ID,
			JobKind:     string(r.job.Kind),
			Tenant:      r.job.Tenant.Key(),
			SenderEmail: r.job.SenderEmail,
			Error:       msg,
			ErrorClass:  obserrors.Classify(cause),
			OccurredAt:  r.s.now(),
			Metadata: map[string]string{
				"success": strconv.Itoa(r.success),
				"failed":  strconv.Itoa(r.failed),
				"total":   strconv.Itoa(r.total),
			},
		})
	}
	return r.result(model.JobStatusError), cause
}

func (r *run) lostOwnership(ctx context.Context) (*Result, error) {
	current, err := r.s.repo.GetStatus(ctx, r.job.ID)
	if err != nil {
		r.persistFailed("get_status", err)
		current = r.job.Status
	}
	r.logger.WarnContext(ctx, "job changed state outside this run", "status", current)
	r.lifecycle(current, metrics.ResultNoop, nil)
	return r.result(current), nil
}

func (r *run) interrupted() *Result {
	r.logger.Info("job run interrupted", "success", r.success, "failed", r.failed)
	res := r.result(model.JobStatusRunning)
	res.Interrupted = true
	return res
}

func (r *run) result(status model.JobStatus) *Result {
	return &Result{
		JobID:   r.job.ID,
		Status:  status,
		Total:   r.total,
		Success: r.success,
		Failed:  r.failed,
	}
}

// emit appends the event and posts the webhook. Both are best-effort.
func (r *run) emit(ctx context.Context, t model.JobEventType, data model.EventData) {
	if err := r.s.repo.AppendEvent(ctx, core.AppendEventParams{JobID: r.job.ID, Type: t, Data: data}); err != nil {
		r.persistFailed("append_event", err)
	}
	url := r.job.Webhook()
	if url == "" || r.s.webhooks == nil {
		return
	}
	r.s.webhooks.PostFireAndForget(ctx, core.WebhookRequest{
		URL:     url,
		Payload: model.NewWebhookPayload(r.job.ID, t, data, r.s.now()),
		Timeout: r.s.webhookTimeout,
	})
}

func (r *run) persistFailed(op string, err error) {
	r.logger.Warn("persistence write failed", "op", op, "error",
		apperrors.NewDelivery(apperrors.ErrPersistence, op, err))
	metrics.EmitPersistenceError(r.s.metrics, op)
}

func (r *run) lifecycle(to model.JobStatus, result string, err error) {
	metrics.EmitJobLifecycle(r.s.metrics, metrics.JobMetric{
		JobKind:    string(r.job.Kind),
		Transition: fmt.Sprintf("%s->%s", model.JobStatusRunning, to),
		Result:     result,
		Duration:   r.s.now().Sub(r.started),
		Err:        err,
	})
}
