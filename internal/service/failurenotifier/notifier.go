// Package failurenotifier fans job-abort alerts out to operator sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/target/bulkmailer/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Quiet suppresses repeat alerts for the same job within this window. Zero disables it.
	Quiet time.Duration
	Now   func() time.Time
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
	quiet  time.Duration
	now    func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger:   logger.With("component", "failure_notifier"),
		sinks:    sinks,
		quiet:    opts.Quiet,
		now:      now,
		lastSent: make(map[string]time.Time),
	}
}

// NotifyJobFailure fans the payload out to all sinks and waits for them to finish.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = s.now()
	}
	if s.suppressed(payload.JobID, payload.OccurredAt) {
		s.logger.DebugContext(ctx, "suppressing repeat failure notification", "job_id", payload.JobID)
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendJobFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

func (s *Service) suppressed(jobID string, at time.Time) bool {
	if s.quiet <= 0 || jobID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sent := range s.lastSent {
		if at.Sub(sent) >= s.quiet {
			delete(s.lastSent, id)
		}
	}
	if _, ok := s.lastSent[jobID]; ok {
		return true
	}
	s.lastSent[jobID] = at
	return false
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
