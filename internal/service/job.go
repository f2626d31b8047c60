// Package service holds the control surface operators and the runner use to manage bulk jobs.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
	apperrors "github.com/target/bulkmailer/internal/errors"
	"github.com/target/bulkmailer/internal/service/pacing"
)

// DefaultEventLimit caps Events when the caller passes no limit.
const DefaultEventLimit = 500

// maxStopAttempts bounds the read-then-CAS loop in Stop when the status keeps moving.
const maxStopAttempts = 3

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo   core.JobRepository // Required: job repository
	Logger *slog.Logger       // Optional: structured logger
}

// JobService implements the job control operations:
// - create jobs with their recipient lists
// - pause, resume, stop and requeue through compare-and-set transitions
// - status and event views
// - in-process signal flags for runs owned by this process.
type JobService struct {
	repo   core.JobRepository
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*pacing.Flags
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		repo:   opts.Repo,
		logger: logger.With("component", "job_service"),
		active: make(map[string]*pacing.Flags),
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Create validates and stores a job together with its recipients.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job")
	}
	for i := range req.Recipients {
		if err := req.Recipients[i].Validate(); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "invalid recipient %d", i)
		}
	}

	job, err := s.repo.CreateJob(ctx, req)
	if err != nil {
		return nil, mapRepoError(err, "create job")
	}
	s.logger.InfoContext(ctx, "job created",
		"job_id", job.ID,
		"kind", job.Kind,
		"tenant", job.Tenant.Key(),
		"recipients", job.Total,
		"schedule_at", job.ScheduleAt,
	)
	return job, nil
}

// AddRecipients appends recipients to a job that is not currently owned by a scheduler.
func (s *JobService) AddRecipients(ctx context.Context, jobID string, list []model.NewRecipient) (int, error) {
	if len(list) == 0 {
		return 0, nil
	}
	for i := range list {
		if err := list[i].Validate(); err != nil {
			return 0, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "invalid recipient %d", i)
		}
	}
	status, err := s.repo.GetStatus(ctx, jobID)
	if err != nil {
		return 0, mapRepoError(err, "get job status")
	}
	if status != model.JobStatusQueued && status != model.JobStatusStopped {
		return 0, apperrors.Conflictf("cannot add recipients to a %s job", status)
	}
	n, err := s.repo.AddRecipients(ctx, jobID, list)
	if err != nil {
		return 0, mapRepoError(err, "add recipients")
	}
	s.logger.InfoContext(ctx, "recipients added", "job_id", jobID, "count", n)
	return n, nil
}

// Pause suspends a running job. It reports false when the job was not running.
func (s *JobService) Pause(ctx context.Context, jobID string) (bool, error) {
	changed, err := s.transition(ctx, jobID, []model.JobStatus{model.JobStatusRunning}, model.JobStatusPaused)
	if err != nil || !changed {
		return false, err
	}
	if f := s.flags(jobID); f != nil {
		f.Pause()
	}
	s.audit(ctx, jobID, model.JobEventPaused, nil)
	return true, nil
}

// Resume continues a paused job. It reports false when the job was not paused.
func (s *JobService) Resume(ctx context.Context, jobID string) (bool, error) {
	changed, err := s.transition(ctx, jobID, []model.JobStatus{model.JobStatusPaused}, model.JobStatusRunning)
	if err != nil || !changed {
		return false, err
	}
	if f := s.flags(jobID); f != nil {
		f.Resume()
	}
	s.audit(ctx, jobID, model.JobEventResumed, nil)
	return true, nil
}

// Stop halts a queued, running or paused job. Pending recipients stay pending so the job
// can be requeued later. It reports false when the job was already past those states.
func (s *JobService) Stop(ctx context.Context, jobID string) (bool, error) {
	stoppable := model.SourcesFor(model.JobStatusStopped)
	for range maxStopAttempts {
		job, err := s.repo.GetJob(ctx, jobID)
		if err != nil {
			return false, mapRepoError(err, "get job")
		}
		if !slices.Contains(stoppable, job.Status) {
			return false, nil
		}
		changed, err := s.transition(ctx, jobID, []model.JobStatus{job.Status}, model.JobStatusStopped)
		if err != nil {
			return false, err
		}
		if !changed {
			continue
		}
		if f := s.flags(jobID); f != nil {
			f.Stop()
		}
		// the owning scheduler reports the stop of an active job
		if job.Status == model.JobStatusQueued {
			s.audit(ctx, jobID, model.JobEventStopped, model.EventData{
				"success": job.SuccessCount,
				"failed":  job.FailureCount,
			})
		}
		return true, nil
	}
	return false, apperrors.Conflictf("job %s changed state concurrently", jobID)
}

// Requeue puts a stopped job back in the queue so its pending recipients are resumed.
func (s *JobService) Requeue(ctx context.Context, jobID string) (bool, error) {
	return s.transition(ctx, jobID, []model.JobStatus{model.JobStatusStopped}, model.JobStatusQueued)
}

// Status returns the state, counters and timestamps of a job.
func (s *JobService) Status(ctx context.Context, jobID string) (*model.JobStatusView, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, mapRepoError(err, "get job")
	}
	pending := model.RecipientStatusPending
	n, err := s.repo.CountRecipients(ctx, core.RecipientFilter{JobID: jobID, Status: &pending})
	if err != nil {
		return nil, mapRepoError(err, "count pending recipients")
	}
	return model.NewJobStatusView(job, n), nil
}

// Events returns up to limit events of a job in insertion order.
func (s *JobService) Events(ctx context.Context, jobID string, limit int) ([]*model.JobEvent, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if _, err := s.repo.GetStatus(ctx, jobID); err != nil {
		return nil, mapRepoError(err, "get job status")
	}
	events, err := s.repo.ListEvents(ctx, jobID, limit)
	if err != nil {
		return nil, mapRepoError(err, "list events")
	}
	return events, nil
}

// Track registers in-process signals for a run owned by this process. The release func
// must be called when the run ends.
func (s *JobService) Track(jobID string) (*pacing.Flags, func()) {
	f := &pacing.Flags{}
	s.mu.Lock()
	s.active[jobID] = f
	s.mu.Unlock()
	return f, func() {
		s.mu.Lock()
		if s.active[jobID] == f {
			delete(s.active, jobID)
		}
		s.mu.Unlock()
	}
}

func (s *JobService) flags(jobID string) *pacing.Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[jobID]
}

func (s *JobService) transition(
	ctx context.Context,
	jobID string,
	from []model.JobStatus,
	to model.JobStatus,
) (bool, error) {
	changed, err := s.repo.TransitionStatus(ctx, core.TransitionParams{JobID: jobID, From: from, To: to})
	if err != nil {
		return false, mapRepoError(err, fmt.Sprintf("transition to %s", to))
	}
	if !changed {
		// distinguish a missing job from a disallowed transition
		if _, err := s.repo.GetStatus(ctx, jobID); err != nil {
			return false, mapRepoError(err, "get job status")
		}
		s.logger.DebugContext(ctx, "transition not applied", "job_id", jobID, "to", to)
		return false, nil
	}
	s.logger.InfoContext(ctx, "job status changed", "job_id", jobID, "to", to)
	return true, nil
}

func (s *JobService) audit(ctx context.Context, jobID string, t model.JobEventType, data model.EventData) {
	if data == nil {
		data = model.EventData{}
	}
	if err := s.repo.AppendEvent(ctx, core.AppendEventParams{JobID: jobID, Type: t, Data: data}); err != nil {
		s.logger.WarnContext(ctx, "append control event failed", "job_id", jobID, "event", t, "error", err)
	}
}

func mapRepoError(err error, op string) error {
	if errors.Is(err, core.ErrJobNotFound) {
		return apperrors.NotFound("job not found", err)
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(err, apperrors.ErrCodeInternal, op)
}
