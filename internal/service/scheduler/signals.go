package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
	"github.com/target/bulkmailer/internal/service/pacing"
)

// jobSignals merges in-process control flags with the persisted job status. The persisted
// status decides pause and resume; a change of the local pause flag only forces an early
// read. Reads are throttled to refresh and heartbeats piggyback on the same poll.
type jobSignals struct {
	repo      core.JobRepository
	jobID     string
	claimID   string
	local     pacing.Signals
	refresh   time.Duration
	heartbeat time.Duration
	now       func() time.Time
	onError   func(op string, err error)

	mu         sync.Mutex
	status     model.JobStatus
	lost       bool
	localPause bool
	checkedAt  time.Time
	beatAt     time.Time
}

// sync forces a status read and a heartbeat.
func (s *jobSignals) sync(ctx context.Context) model.JobStatus {
	return s.poll(ctx, true)
}

func (s *jobSignals) poll(ctx context.Context, force bool) model.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.lost && (force || now.Sub(s.beatAt) >= s.heartbeat) {
		if err := s.repo.TouchHeartbeat(ctx, s.jobID, s.claimID); err != nil {
			s.onError("touch_heartbeat", err)
		}
		s.beatAt = now
	}
	if !force && now.Sub(s.checkedAt) < s.refresh {
		return s.status
	}
	st, err := s.repo.ClaimStatus(ctx, s.jobID, s.claimID)
	switch {
	case errors.Is(err, core.ErrClaimLost):
		s.lost = true
	case err != nil:
		if ctx.Err() == nil {
			s.onError("get_status", err)
		}
		return s.status
	}
	s.status = st
	s.checkedAt = now
	return st
}

// lostClaim reports whether the job was requeued or claimed by another dispatch.
func (s *jobSignals) lostClaim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lost
}

// ShouldStop reports a local stop request, a lost claim, or a persisted status this run
// no longer owns.
func (s *jobSignals) ShouldStop(ctx context.Context) bool {
	if s.local != nil && s.local.ShouldStop(ctx) {
		return true
	}
	st := s.poll(ctx, false)
	return s.lostClaim() || !st.IsActive()
}

// ShouldPause reports a persisted paused status.
func (s *jobSignals) ShouldPause(ctx context.Context) bool {
	force := false
	if s.local != nil {
		requested := s.local.ShouldPause(ctx)
		s.mu.Lock()
		force = requested != s.localPause
		s.localPause = requested
		s.mu.Unlock()
	}
	return s.poll(ctx, force) == model.JobStatusPaused
}
