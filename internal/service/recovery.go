package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/observability/metrics"
	"github.com/target/bulkmailer/internal/observability/statsd"
)

// Recovery defaults.
const (
	DefaultRecoverySchedule   = "@every 1m"
	DefaultRecoveryStaleAfter = 5 * time.Minute
	DefaultRecoveryBatchSize  = 100
)

// RecoveryServiceOptions groups dependencies for RecoveryService.
type RecoveryServiceOptions struct {
	Repo    core.JobRepository // Required
	Logger  *slog.Logger       // Optional
	Metrics statsd.Sink        // Optional

	// Schedule is a cron expression (descriptors such as "@every 1m" are accepted).
	Schedule string
	// StaleAfter is how old a running job's heartbeat may get before the job is requeued.
	StaleAfter time.Duration
	BatchSize  int
	Now        func() time.Time
}

// RecoveryService requeues running jobs whose owning process stopped heartbeating, so the
// remaining pending recipients are picked up by another runner.
type RecoveryService struct {
	repo       core.JobRepository
	logger     *slog.Logger
	metrics    statsd.Sink
	schedule   cron.Schedule
	spec       string
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

var recoveryParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewRecoveryService validates options and constructs a RecoveryService.
func NewRecoveryService(opts RecoveryServiceOptions) (*RecoveryService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	spec := opts.Schedule
	if spec == "" {
		spec = DefaultRecoverySchedule
	}
	schedule, err := recoveryParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse recovery schedule %q: %w", spec, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stale := opts.StaleAfter
	if stale <= 0 {
		stale = DefaultRecoveryStaleAfter
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultRecoveryBatchSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &RecoveryService{
		repo:       opts.Repo,
		logger:     logger.With("component", "recovery_service"),
		metrics:    opts.Metrics,
		schedule:   schedule,
		spec:       spec,
		staleAfter: stale,
		batchSize:  batch,
		now:        now,
	}, nil
}

// Run sweeps once immediately and then on every tick of the schedule until ctx is done.
// It returns nil on graceful shutdown.
func (s *RecoveryService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting recovery service", "schedule", s.spec, "stale_after", s.staleAfter)

	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "initial recovery sweep failed", "error", err)
	}

	c := cron.New(cron.WithParser(recoveryParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "recovery sweep failed", "error", err)
		}
	}))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.InfoContext(ctx, "recovery service stopping", "reason", ctx.Err())
	return nil
}

// Sweep requeues stale running jobs once and returns their ids.
func (s *RecoveryService) Sweep(ctx context.Context) ([]string, error) {
	before := s.now().Add(-s.staleAfter)
	var all []string
	for {
		ids, err := s.repo.RequeueStale(ctx, before, s.batchSize)
		if err != nil {
			return all, fmt.Errorf("requeue stale jobs: %w", err)
		}
		all = append(all, ids...)
		if len(ids) < s.batchSize {
			break
		}
	}
	if len(all) > 0 {
		s.logger.WarnContext(ctx, "requeued jobs with stale heartbeat", "count", len(all), "job_ids", all)
		if s.metrics != nil {
			s.metrics.Count(metrics.RecoveryRequeued, int64(len(all)), nil)
		}
	}
	return all, nil
}
