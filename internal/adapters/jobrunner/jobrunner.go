// Package jobrunner claims due bulk jobs and runs each one on its own goroutine under a
// concurrency limit.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
	"github.com/target/bulkmailer/internal/observability/metrics"
	"github.com/target/bulkmailer/internal/observability/statsd"
	"github.com/target/bulkmailer/internal/service"
	"github.com/target/bulkmailer/internal/service/scheduler"
)

// Defaults for RunnerOptions.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultConcurrency  = 4
)

// Dispatcher runs one claimed job to a final or interrupted state.
type Dispatcher interface {
	Run(ctx context.Context, job *model.Job, opts scheduler.RunOptions) (*scheduler.Result, error)
}

var _ Dispatcher = (*scheduler.Scheduler)(nil)

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Repo       core.JobRepository  // Required
	Jobs       *service.JobService // Required: registers in-process control flags per run
	Dispatcher Dispatcher          // Required
	Logger     *slog.Logger
	Metrics    statsd.Sink

	// PollInterval bounds how long an idle runner waits before claiming again.
	PollInterval time.Duration
	// Concurrency is the maximum number of jobs run at once.
	Concurrency int
}

// Runner pulls due jobs and dispatches them.
type Runner struct {
	repo         core.JobRepository
	jobs         *service.JobService
	dispatcher   Dispatcher
	logger       *slog.Logger
	metrics      statsd.Sink
	pollInterval time.Duration
	concurrency  int

	active atomic.Int64
}

// NewRunner validates options and constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	switch {
	case opts.Repo == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Jobs == nil:
		return nil, errors.New("JobService is required")
	case opts.Dispatcher == nil:
		return nil, errors.New("dispatcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = DefaultConcurrency
	}
	return &Runner{
		repo:         opts.Repo,
		jobs:         opts.Jobs,
		dispatcher:   opts.Dispatcher,
		logger:       logger.With("component", "job_runner"),
		metrics:      opts.Metrics,
		pollInterval: poll,
		concurrency:  workers,
	}, nil
}

// Active reports how many jobs this runner is currently dispatching.
func (r *Runner) Active() int { return int(r.active.Load()) }

// Run claims and dispatches jobs until ctx is cancelled. It returns after every
// in-flight run has observed the cancellation; interrupted jobs are requeued.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "concurrency", r.concurrency, "poll_interval", r.pollInterval)

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	wake := make(chan struct{}, 1)
	listenDone := make(chan struct{})
	go func() {
		defer close(listenDone)
		r.listen(ctx, wake)
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
		case <-timer.C:
		case <-wake:
		}
		if ctx.Err() != nil {
			break
		}
		r.fill(ctx, &g, wake)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.pollInterval)
	}

	err := g.Wait()
	<-listenDone
	r.logger.Info("job runner stopped")
	return err
}

// fill claims jobs until the concurrency limit is reached or nothing is due.
func (r *Runner) fill(ctx context.Context, g *errgroup.Group, wake chan<- struct{}) {
	for r.active.Load() < int64(r.concurrency) && ctx.Err() == nil {
		job, err := r.repo.ClaimNext(ctx)
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "claim next job", "error", err)
			}
			return
		}

		r.setActive(r.active.Add(1))
		g.Go(func() error {
			defer func() {
				r.setActive(r.active.Add(-1))
				notify(wake)
			}()
			r.dispatch(ctx, job)
			return nil
		})
	}
}

func (r *Runner) dispatch(ctx context.Context, job *model.Job) {
	logger := r.logger.With("job_id", job.ID, "tenant", job.Tenant.Key())
	flags, release := r.jobs.Track(job.ID)
	defer release()

	defer func() {
		if p := recover(); p != nil {
			logger.Error("job dispatch panicked", "panic", p)
			r.markError(ctx, job, fmt.Sprintf("panic: %v", p))
		}
	}()

	res, err := r.dispatcher.Run(ctx, job, scheduler.RunOptions{Signals: flags})
	if err != nil {
		logger.ErrorContext(ctx, "job failed", "error", err)
		return
	}
	if res == nil {
		return
	}
	if res.Interrupted {
		r.requeue(ctx, logger, job)
		return
	}
	logger.InfoContext(ctx, "job run finished",
		"status", res.Status, "success", res.Success, "failed", res.Failed, "total", res.Total)
}

// requeue hands a job interrupted by shutdown back to the queue unless another dispatch
// has claimed it since.
func (r *Runner) requeue(ctx context.Context, logger *slog.Logger, job *model.Job) {
	ctx = context.WithoutCancel(ctx)
	changed, err := r.repo.TransitionStatus(ctx, core.TransitionParams{
		JobID:   job.ID,
		From:    []model.JobStatus{model.JobStatusRunning},
		To:      model.JobStatusQueued,
		ClaimID: job.ClaimID,
	})
	switch {
	case err != nil:
		logger.ErrorContext(ctx, "requeue interrupted job", "error", err)
	case changed:
		logger.InfoContext(ctx, "interrupted job requeued")
	default:
		logger.InfoContext(ctx, "interrupted job left in place")
	}
}

func (r *Runner) markError(ctx context.Context, job *model.Job, msg string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := r.repo.TransitionStatus(ctx, core.TransitionParams{
		JobID:     job.ID,
		To:        model.JobStatusError,
		LastError: &msg,
		ClaimID:   job.ClaimID,
	}); err != nil {
		r.logger.ErrorContext(ctx, "mark job error", "job_id", job.ID, "error", err)
	}
}

// listen forwards queue notifications to wake until ctx is done.
func (r *Runner) listen(ctx context.Context, wake chan<- struct{}) {
	for ctx.Err() == nil {
		err := r.repo.WaitForNotification(ctx)
		if err == nil {
			notify(wake)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		r.logger.WarnContext(ctx, "queue notification wait failed", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *Runner) setActive(n int64) {
	if r.metrics != nil {
		r.metrics.Gauge(metrics.RunnerActiveJobs, float64(n), nil)
	}
}

func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
