// Package jobstore is an in-memory core.JobRepository for scheduler, runner and control
// service tests. It enforces the same compare-and-set rules as the Postgres repository.
package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
)

// Store keeps jobs, recipients and events in memory. It is safe for concurrent use.
type Store struct {
	// Fail, when set, is consulted before every operation; a non-nil error is returned
	// from that operation without side effects.
	Fail func(op string) error
	// Now overrides the clock.
	Now func() time.Time

	mu         sync.Mutex
	jobs       map[string]*model.Job
	recipients map[string][]*model.Recipient
	events     map[string][]*model.JobEvent
	nextRcptID int64
	nextEvtID  int64
	notify     chan struct{}

	transitions []Transition
}

// Transition records a successful status change.
type Transition struct {
	JobID    string
	From, To model.JobStatus
}

var _ core.JobRepository = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs:       map[string]*model.Job{},
		recipients: map[string][]*model.Recipient{},
		events:     map[string][]*model.JobEvent{},
		notify:     make(chan struct{}, 1),
	}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) check(op string) error {
	if s.Fail != nil {
		return s.Fail(op)
	}
	return nil
}

// CreateJob implements core.JobRepository.
func (s *Store) CreateJob(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if err := s.check("create_job"); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	job := &model.Job{
		ID:          uuid.NewString(),
		Tenant:      req.Tenant,
		SenderEmail: req.SenderEmail,
		Kind:        req.Kind,
		TemplateID:  req.TemplateID,
		Subject:     req.Subject,
		TextContent: req.TextContent,
		HTMLContent: req.HTMLContent,
		Attachments: slices.Clone(req.Attachments),
		MinInterval: req.MinInterval,
		MaxInterval: req.MaxInterval,
		WebhookURL:  req.WebhookURL,
		ScheduleAt:  now,
		Status:      model.JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ScheduleAt != nil {
		job.ScheduleAt = *req.ScheduleAt
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	if err := s.appendRecipientsLocked(job, req.Recipients); err != nil {
		delete(s.jobs, job.ID)
		delete(s.recipients, job.ID)
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()
	s.signal()
	return cloneJob(job), nil
}

// AddRecipients implements core.JobRepository.
func (s *Store) AddRecipients(_ context.Context, jobID string, list []model.NewRecipient) (int, error) {
	if err := s.check("add_recipients"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return 0, core.ErrJobNotFound
	}
	if err := s.appendRecipientsLocked(job, list); err != nil {
		return 0, err
	}
	return len(list), nil
}

func (s *Store) appendRecipientsLocked(job *model.Job, list []model.NewRecipient) error {
	pos := len(s.recipients[job.ID])
	added := make([]*model.Recipient, 0, len(list))
	for i := range list {
		nr := list[i]
		if err := nr.Validate(); err != nil {
			return fmt.Errorf("recipient %d: %w", i, err)
		}
		s.nextRcptID++
		added = append(added, &model.Recipient{
			ID:        s.nextRcptID,
			JobID:     job.ID,
			Position:  pos + i,
			ToEmail:   nr.ToEmail,
			Language:  nr.Language,
			Variables: cloneVars(nr.Variables),
			Status:    model.RecipientStatusPending,
			CreatedAt: s.now(),
		})
	}
	s.recipients[job.ID] = append(s.recipients[job.ID], added...)
	job.Total += len(added)
	return nil
}

// GetJob implements core.JobRepository.
func (s *Store) GetJob(_ context.Context, id string) (*model.Job, error) {
	if err := s.check("get_job"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// GetStatus implements core.JobRepository.
func (s *Store) GetStatus(_ context.Context, id string) (model.JobStatus, error) {
	if err := s.check("get_status"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return "", core.ErrJobNotFound
	}
	return job.Status, nil
}

// ListRecipients implements core.JobRepository.
func (s *Store) ListRecipients(_ context.Context, f core.RecipientFilter) ([]*model.Recipient, error) {
	if err := s.check("list_recipients"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Recipient
	for _, r := range s.recipients[f.JobID] {
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		cp := *r
		cp.Variables = cloneVars(r.Variables)
		out = append(out, &cp)
	}
	return out, nil
}

// CountRecipients implements core.JobRepository.
func (s *Store) CountRecipients(ctx context.Context, f core.RecipientFilter) (int, error) {
	list, err := s.ListRecipients(ctx, f)
	return len(list), err
}

// TransitionStatus implements core.JobRepository.
func (s *Store) TransitionStatus(_ context.Context, p core.TransitionParams) (bool, error) {
	if err := s.check("transition_status"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[p.JobID]
	if !ok {
		return false, core.ErrJobNotFound
	}
	from := p.From
	if len(from) == 0 {
		from = model.SourcesFor(p.To)
	}
	if !slices.Contains(from, job.Status) || !job.Status.CanTransitionTo(p.To) {
		return false, nil
	}
	if p.ClaimID != "" && job.ClaimID != p.ClaimID {
		return false, nil
	}
	now := s.now()
	s.transitions = append(s.transitions, Transition{JobID: job.ID, From: job.Status, To: p.To})
	job.Status = p.To
	job.UpdatedAt = now
	if p.LastError != nil {
		msg := *p.LastError
		job.LastError = &msg
	}
	switch p.To {
	case model.JobStatusRunning:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		job.HeartbeatAt = &now
	case model.JobStatusCompleted, model.JobStatusStopped, model.JobStatusError:
		job.FinishedAt = &now
	case model.JobStatusQueued:
		job.FinishedAt = nil
		job.HeartbeatAt = nil
		job.ClaimID = ""
		s.signal()
	}
	return true, nil
}

// IncrementCounts implements core.JobRepository.
func (s *Store) IncrementCounts(_ context.Context, d core.CountDelta) error {
	if err := s.check("increment_counts"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[d.JobID]
	if !ok {
		return core.ErrJobNotFound
	}
	job.SuccessCount += d.Success
	job.FailureCount += d.Failure
	if job.SuccessCount+job.FailureCount > job.Total {
		return fmt.Errorf("counts exceed total for job %s", d.JobID)
	}
	return nil
}

// SetRecipientResult implements core.JobRepository.
func (s *Store) SetRecipientResult(_ context.Context, res model.RecipientResult) (bool, error) {
	if err := s.check("set_recipient_result"); err != nil {
		return false, err
	}
	if err := res.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.recipients {
		for _, r := range list {
			if r.ID != res.RecipientID {
				continue
			}
			if r.Status != model.RecipientStatusPending {
				return false, nil
			}
			now := s.now()
			r.Status = res.Status
			if res.Error != "" {
				msg := res.Error
				r.Error = &msg
			}
			if res.MessageID != "" {
				id := res.MessageID
				r.MessageID = &id
			}
			r.SentAt = &now
			return true, nil
		}
	}
	return false, nil
}

// AppendEvent implements core.JobRepository.
func (s *Store) AppendEvent(_ context.Context, p core.AppendEventParams) error {
	if err := s.check("append_event"); err != nil {
		return err
	}
	data, err := json.Marshal(p.Data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEvtID++
	s.events[p.JobID] = append(s.events[p.JobID], &model.JobEvent{
		ID:        s.nextEvtID,
		JobID:     p.JobID,
		Type:      p.Type,
		Data:      data,
		CreatedAt: s.now(),
	})
	return nil
}

// ListEvents implements core.JobRepository.
func (s *Store) ListEvents(_ context.Context, jobID string, limit int) ([]*model.JobEvent, error) {
	if err := s.check("list_events"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events[jobID]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	out := make([]*model.JobEvent, 0, len(events))
	for _, e := range events {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// ClaimNext implements core.JobRepository.
func (s *Store) ClaimNext(_ context.Context) (*model.Job, error) {
	if err := s.check("claim_next"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var due []*model.Job
	for _, j := range s.jobs {
		if j.Status == model.JobStatusQueued && !j.ScheduleAt.After(now) {
			due = append(due, j)
		}
	}
	if len(due) == 0 {
		return nil, model.ErrNoJobsAvailable
	}
	sort.Slice(due, func(a, b int) bool {
		if !due[a].ScheduleAt.Equal(due[b].ScheduleAt) {
			return due[a].ScheduleAt.Before(due[b].ScheduleAt)
		}
		return due[a].CreatedAt.Before(due[b].CreatedAt)
	})
	job := due[0]
	s.transitions = append(s.transitions, Transition{JobID: job.ID, From: job.Status, To: model.JobStatusRunning})
	job.Status = model.JobStatusRunning
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.HeartbeatAt = &now
	job.UpdatedAt = now
	job.ClaimID = uuid.NewString()
	return cloneJob(job), nil
}

// ClaimStatus implements core.JobRepository.
func (s *Store) ClaimStatus(_ context.Context, jobID, claimID string) (model.JobStatus, error) {
	if err := s.check("get_status"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return "", core.ErrJobNotFound
	}
	if claimID != "" && job.ClaimID != claimID {
		return job.Status, core.ErrClaimLost
	}
	return job.Status, nil
}

// TouchHeartbeat implements core.JobRepository.
func (s *Store) TouchHeartbeat(_ context.Context, jobID, claimID string) error {
	if err := s.check("touch_heartbeat"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || !job.Status.IsActive() || (claimID != "" && job.ClaimID != claimID) {
		return nil
	}
	now := s.now()
	job.HeartbeatAt = &now
	return nil
}

// RequeueStale implements core.JobRepository.
func (s *Store) RequeueStale(_ context.Context, staleBefore time.Time, limit int) ([]string, error) {
	if err := s.check("requeue_stale"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var ids []string
	for _, j := range s.jobs {
		if limit > 0 && len(ids) >= limit {
			break
		}
		if j.Status != model.JobStatusRunning || j.HeartbeatAt == nil || !j.HeartbeatAt.Before(staleBefore) {
			continue
		}
		s.transitions = append(s.transitions, Transition{JobID: j.ID, From: j.Status, To: model.JobStatusQueued})
		j.Status = model.JobStatusQueued
		j.HeartbeatAt = nil
		j.ClaimID = ""
		ids = append(ids, j.ID)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	if len(ids) > 0 {
		s.signal()
	}
	return ids, nil
}

// WaitForNotification implements core.JobRepository.
func (s *Store) WaitForNotification(ctx context.Context) error {
	select {
	case <-s.notify:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Events returns the event types recorded for a job in order.
func (s *Store) Events(jobID string) []model.JobEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.JobEventType, 0, len(s.events[jobID]))
	for _, e := range s.events[jobID] {
		out = append(out, e.Type)
	}
	return out
}

// EventData decodes the payloads of every event of type t for a job.
func (s *Store) EventData(jobID string, t model.JobEventType) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, e := range s.events[jobID] {
		if e.Type != t {
			continue
		}
		var m map[string]any
		_ = json.Unmarshal(e.Data, &m)
		out = append(out, m)
	}
	return out
}

// Transitions returns every successful status change in order.
func (s *Store) Transitions() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transitions)
}

// SetStatus forces a job status, bypassing transition rules, to simulate another process.
func (s *Store) SetStatus(jobID string, status model.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.Status = status
	}
}

// SetHeartbeat overrides a job heartbeat.
func (s *Store) SetHeartbeat(jobID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.HeartbeatAt = &at
	}
}

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	cp.Attachments = slices.Clone(j.Attachments)
	return &cp
}

func cloneVars(v map[string]string) map[string]string {
	if v == nil {
		return nil
	}
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
