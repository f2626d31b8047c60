package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
)

// QueueChannel is the Postgres LISTEN/NOTIFY channel signalled whenever a job becomes queued.
const QueueChannel = "bulk_jobs_queued"

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for bulk jobs, their recipients and events.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.JobRepository = (*JobRepo)(nil)

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

var jobColumnNames = []string{
	"id::text",
	"master_user_id",
	"store_id",
	"sender_email",
	"kind",
	"template_id",
	"subject",
	"text_content",
	"html_content",
	"attachments",
	"min_interval",
	"max_interval",
	"webhook_url",
	"schedule_at",
	"status",
	"total",
	"success_count",
	"failure_count",
	"last_error",
	"created_at",
	"started_at",
	"finished_at",
	"heartbeat_at",
	"updated_at",
	"claim_id::text",
}

// jobColumns returns the select list for a job row, qualified with alias when set.
func jobColumns(alias string) string {
	if alias == "" {
		return strings.Join(jobColumnNames, ", ")
	}
	cols := make([]string, len(jobColumnNames))
	for i, c := range jobColumnNames {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

const recipientColumns = `id, job_id::text, position, to_email, language, variables, status, error, message_id, sent_at, created_at`

const eventColumns = `id, job_id::text, event_type, event_data, created_at`

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job         model.Job
		kind        string
		status      string
		attachments []byte
		claimID     *string
	)
	if err := row.Scan(
		&job.ID,
		&job.Tenant.MasterUserID,
		&job.Tenant.StoreID,
		&job.SenderEmail,
		&kind,
		&job.TemplateID,
		&job.Subject,
		&job.TextContent,
		&job.HTMLContent,
		&attachments,
		&job.MinInterval,
		&job.MaxInterval,
		&job.WebhookURL,
		&job.ScheduleAt,
		&status,
		&job.Total,
		&job.SuccessCount,
		&job.FailureCount,
		&job.LastError,
		&job.CreatedAt,
		&job.StartedAt,
		&job.FinishedAt,
		&job.HeartbeatAt,
		&job.UpdatedAt,
		&claimID,
	); err != nil {
		return nil, err
	}
	if claimID != nil {
		job.ClaimID = *claimID
	}
	job.Kind = model.JobKind(kind)
	job.Status = model.JobStatus(status)
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &job.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return &job, nil
}

func scanRecipient(row rowScanner) (*model.Recipient, error) {
	var (
		r      model.Recipient
		vars   []byte
		status string
	)
	if err := row.Scan(
		&r.ID,
		&r.JobID,
		&r.Position,
		&r.ToEmail,
		&r.Language,
		&vars,
		&status,
		&r.Error,
		&r.MessageID,
		&r.SentAt,
		&r.CreatedAt,
	); err != nil {
		return nil, err
	}
	r.Status = model.RecipientStatus(status)
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &r.Variables); err != nil {
			return nil, fmt.Errorf("decode variables: %w", err)
		}
	}
	return &r, nil
}

func scanEvent(row rowScanner) (*model.JobEvent, error) {
	var (
		e    model.JobEvent
		t    string
		data []byte
	)
	if err := row.Scan(&e.ID, &e.JobID, &t, &data, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Type = model.JobEventType(t)
	e.Data = json.RawMessage(data)
	return &e, nil
}

func statusStrings(statuses []model.JobStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
