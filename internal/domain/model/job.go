// Package model defines the core data types shared by the bulkmailer job system.
package model

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// JobKind selects where a job's message content comes from.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobKind string

// JobStatus represents the current status of a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobKindCustom jobs carry a static subject/text/html on the job row.
	JobKindCustom JobKind = "custom"
	// JobKindTemplate jobs render from a stored template or per-language template files.
	JobKindTemplate JobKind = "template"

	// JobStatusQueued indicates a job is waiting for its schedule_at instant.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates a scheduler is dispatching the job's recipients.
	JobStatusRunning JobStatus = "running"
	// JobStatusPaused indicates dispatch is suspended until resumed or stopped.
	JobStatusPaused JobStatus = "paused"
	// JobStatusStopped indicates dispatch was halted; pending recipients remain resumable.
	JobStatusStopped JobStatus = "stopped"
	// JobStatusCompleted indicates every pending recipient was attempted.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusError indicates a job-level failure aborted the dispatch loop.
	JobStatusError JobStatus = "error"
)

// DefaultLanguage is the canonical language used when a recipient's language has no template.
const DefaultLanguage = "en"

// ErrNoJobsAvailable is returned when no queued job is due.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobKind is known.
func (k JobKind) Valid() bool {
	return k == JobKindCustom || k == JobKindTemplate
}

// UnmarshalText implements encoding.TextUnmarshaler for JobKind.
func (k *JobKind) UnmarshalText(text []byte) error {
	v := JobKind(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobKind: %q", v)
	}
	*k = v
	return nil
}

// Valid returns true if the JobStatus is known.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusPaused,
		JobStatusStopped, JobStatusCompleted, JobStatusError:
		return true
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", v)
	}
	*s = v
	return nil
}

// Tenant identifies the owner of jobs, templates and assets.
type Tenant struct {
	MasterUserID string `json:"master_user_id"`
	StoreID      string `json:"store_id"`
}

// Key returns a stable identifier for caches and logs.
func (t Tenant) Key() string {
	return t.MasterUserID + ":" + t.StoreID
}

// Job is one bulk-send operation.
type Job struct {
	ID           string     `json:"id"                     db:"id"`
	Tenant       Tenant     `json:"tenant"`
	SenderEmail  string     `json:"sender_email"           db:"sender_email"`
	Kind         JobKind    `json:"kind"                   db:"kind"`
	TemplateID   *int64     `json:"template_id,omitempty"  db:"template_id"`
	Subject      string     `json:"subject,omitempty"      db:"subject"`
	TextContent  string     `json:"text_content,omitempty" db:"text_content"`
	HTMLContent  string     `json:"html_content,omitempty" db:"html_content"`
	Attachments  []string   `json:"attachments,omitempty"  db:"attachments"`
	MinInterval  int        `json:"min_interval"           db:"min_interval"`
	MaxInterval  int        `json:"max_interval"           db:"max_interval"`
	WebhookURL   *string    `json:"webhook_url,omitempty"  db:"webhook_url"`
	ScheduleAt   time.Time  `json:"schedule_at"            db:"schedule_at"`
	Status       JobStatus  `json:"status"                 db:"status"`
	Total        int        `json:"total"                  db:"total"`
	SuccessCount int        `json:"success_count"          db:"success_count"`
	FailureCount int        `json:"failure_count"          db:"failure_count"`
	LastError    *string    `json:"last_error,omitempty"   db:"last_error"`
	CreatedAt    time.Time  `json:"created_at"             db:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"   db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"  db:"finished_at"`
	HeartbeatAt  *time.Time `json:"heartbeat_at,omitempty" db:"heartbeat_at"`
	UpdatedAt    time.Time  `json:"updated_at"             db:"updated_at"`
	// ClaimID is stamped by ClaimNext and identifies the dispatch that owns the job.
	ClaimID string `json:"claim_id,omitempty" db:"claim_id"`
}

// Webhook returns the configured webhook URL or an empty string.
func (j *Job) Webhook() string {
	if j == nil || j.WebhookURL == nil {
		return ""
	}
	return strings.TrimSpace(*j.WebhookURL)
}

// CreateJobRequest carries an already-validated job specification from the API layer.
type CreateJobRequest struct {
	Tenant      Tenant     `json:"tenant"`
	SenderEmail string     `json:"sender_email"`
	Kind        JobKind    `json:"kind"`
	TemplateID  *int64     `json:"template_id,omitempty"`
	Subject     string     `json:"subject,omitempty"`
	TextContent string     `json:"text_content,omitempty"`
	HTMLContent string     `json:"html_content,omitempty"`
	Attachments []string   `json:"attachments,omitempty"`
	MinInterval int        `json:"min_interval"`
	MaxInterval int        `json:"max_interval"`
	WebhookURL  *string    `json:"webhook_url,omitempty"`
	ScheduleAt  *time.Time `json:"schedule_at,omitempty"`
	// Recipients are stored with the job in one transaction so a runner never claims
	// a job before its recipient list exists.
	Recipients []NewRecipient `json:"recipients,omitempty"`
}

// Validate checks the request invariants the scheduler relies on.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.Tenant.MasterUserID) == "" || strings.TrimSpace(r.Tenant.StoreID) == "" {
		return errors.New("tenant master_user_id and store_id are required")
	}
	if _, err := mail.ParseAddress(r.SenderEmail); err != nil {
		return fmt.Errorf("invalid sender_email: %w", err)
	}
	if !r.Kind.Valid() {
		return errors.New("invalid job kind")
	}
	if r.Kind == JobKindCustom && strings.TrimSpace(r.Subject) == "" {
		return errors.New("subject is required for custom jobs")
	}
	if r.MinInterval < 0 || r.MaxInterval < 0 {
		return errors.New("intervals must be >= 0")
	}
	if r.MinInterval > r.MaxInterval {
		return errors.New("min_interval must be <= max_interval")
	}
	return nil
}

// JobCounts is the per-job outcome tally.
type JobCounts struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// JobStatusView is the status surface returned to the API layer.
type JobStatusView struct {
	JobID      string     `json:"job_id"`
	Status     JobStatus  `json:"status"`
	Counts     JobCounts  `json:"counts"`
	LastError  *string    `json:"last_error,omitempty"`
	ScheduleAt time.Time  `json:"schedule_at"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewJobStatusView builds a status view from a job row and its pending recipient count.
func NewJobStatusView(j *Job, pending int) *JobStatusView {
	return &JobStatusView{
		JobID:  j.ID,
		Status: j.Status,
		Counts: JobCounts{
			Total:   j.Total,
			Success: j.SuccessCount,
			Failed:  j.FailureCount,
			Pending: pending,
		},
		LastError:  j.LastError,
		ScheduleAt: j.ScheduleAt,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
		UpdatedAt:  j.UpdatedAt,
	}
}
