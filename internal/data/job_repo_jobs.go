package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/data/pgxutil"
	"github.com/target/bulkmailer/internal/domain/model"
)

// SQL used by ClaimNext to atomically move the earliest due job to running.
// SKIP LOCKED lets several runners claim concurrently without blocking on each other.
const claimNextSQL = `
  WITH cte AS (
    SELECT id FROM bulk_jobs
    WHERE status = 'queued' AND schedule_at <= $1
    ORDER BY schedule_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE bulk_jobs j
  SET
    status = 'running',
    started_at = COALESCE(j.started_at, $1),
    heartbeat_at = $1,
    updated_at = $1,
    claim_id = $2
  FROM cte
  WHERE j.id = cte.id
  RETURNING `

const transitionSQL = `
  UPDATE bulk_jobs
  SET
    status = $2::text,
    updated_at = $3,
    last_error = COALESCE($4, last_error),
    started_at = CASE WHEN $2::text = 'running' THEN COALESCE(started_at, $3) ELSE started_at END,
    heartbeat_at = CASE
      WHEN $2::text = 'running' THEN $3
      WHEN $2::text = 'queued' THEN NULL
      ELSE heartbeat_at END,
    finished_at = CASE
      WHEN $2::text IN ('completed', 'stopped', 'error') THEN $3
      WHEN $2::text = 'queued' THEN NULL
      ELSE finished_at END,
    claim_id = CASE WHEN $2::text = 'queued' THEN NULL ELSE claim_id END
  WHERE id = $1 AND status = ANY($5)
    AND ($6::text = '' OR claim_id::text = $6::text)`

// CreateJob inserts the job and its recipients in one transaction and wakes idle runners.
func (r *JobRepo) CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	attachments, err := json.Marshal(nonNil(req.Attachments))
	if err != nil {
		return nil, fmt.Errorf("encode attachments: %w", err)
	}
	now := r.timeProvider.Now().UTC()
	scheduleAt := now
	if req.ScheduleAt != nil {
		scheduleAt = req.ScheduleAt.UTC()
	}

	var job *model.Job
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			row := tx.QueryRow(ctx, `
				INSERT INTO bulk_jobs (
				  id, master_user_id, store_id, sender_email, kind, template_id, subject, text_content,
				  html_content, attachments, min_interval, max_interval, webhook_url, schedule_at,
				  status, created_at, updated_at
				)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11,$12,$13,$14,'queued',$15,$15)
				RETURNING `+jobColumns(""),
				uuid.NewString(),
				req.Tenant.MasterUserID,
				req.Tenant.StoreID,
				req.SenderEmail,
				string(req.Kind),
				req.TemplateID,
				req.Subject,
				req.TextContent,
				req.HTMLContent,
				string(attachments),
				req.MinInterval,
				req.MaxInterval,
				req.WebhookURL,
				scheduleAt,
				now,
			)
			var scanErr error
			job, scanErr = scanJob(row)
			if scanErr != nil {
				return fmt.Errorf("insert job: %w", scanErr)
			}
			n, insErr := r.insertRecipientsTx(ctx, tx, job.ID, req.Recipients)
			if insErr != nil {
				return insErr
			}
			job.Total = n
			return notifyQueuedTx(ctx, tx, job.ID)
		},
	})
	if txErr != nil {
		return nil, mapJobErr(txErr)
	}
	r.logger.DebugContext(ctx, "job created", "job_id", job.ID, "recipients", job.Total)
	return job, nil
}

// AddRecipients appends recipients after the current last position and bumps the job total.
func (r *JobRepo) AddRecipients(ctx context.Context, jobID string, list []model.NewRecipient) (int, error) {
	if len(list) == 0 {
		return 0, nil
	}
	if _, err := uuid.Parse(jobID); err != nil {
		return 0, core.ErrJobNotFound
	}
	var n int
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var locked string
			if err := tx.QueryRow(ctx, `SELECT id::text FROM bulk_jobs WHERE id = $1 FOR UPDATE`, jobID).
				Scan(&locked); err != nil {
				return err
			}
			var insErr error
			n, insErr = r.insertRecipientsTx(ctx, tx, jobID, list)
			return insErr
		},
	})
	if txErr != nil {
		return 0, mapJobErr(txErr)
	}
	return n, nil
}

// insertRecipientsTx bulk-loads recipients with COPY and adds them to the job total.
func (r *JobRepo) insertRecipientsTx(
	ctx context.Context,
	tx pgx.Tx,
	jobID string,
	list []model.NewRecipient,
) (int, error) {
	if len(list) == 0 {
		return 0, nil
	}
	jobUUID, err := uuid.Parse(jobID)
	if err != nil {
		return 0, core.ErrJobNotFound
	}
	var next int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM bulk_job_recipients WHERE job_id = $1`, jobID,
	).Scan(&next); err != nil {
		return 0, fmt.Errorf("next recipient position: %w", err)
	}

	now := r.timeProvider.Now().UTC()
	rows := make([][]any, 0, len(list))
	for i := range list {
		nr := list[i]
		if err := nr.Validate(); err != nil {
			return 0, fmt.Errorf("recipient %d: %w", i, err)
		}
		vars := nr.Variables
		if vars == nil {
			vars = map[string]string{}
		}
		rows = append(rows, []any{jobUUID, next + i, nr.ToEmail, nr.Language, vars, string(model.RecipientStatusPending), now})
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"bulk_job_recipients"},
		[]string{"job_id", "position", "to_email", "language", "variables", "status", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("copy recipients: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE bulk_jobs SET total = total + $2, updated_at = $3 WHERE id = $1`, jobID, copied, now,
	); err != nil {
		return 0, fmt.Errorf("update job total: %w", err)
	}
	return int(copied), nil
}

// GetJob retrieves a job by its ID.
func (r *JobRepo) GetJob(ctx context.Context, id string) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, core.ErrJobNotFound
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns("")+` FROM bulk_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, mapJobErr(err)
	}
	return job, nil
}

// GetStatus reads only the status column; the scheduler polls it during pacing waits.
func (r *JobRepo) GetStatus(ctx context.Context, id string) (model.JobStatus, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", core.ErrJobNotFound
	}
	var status string
	if err := r.DB.QueryRowContext(ctx, `SELECT status FROM bulk_jobs WHERE id = $1`, id).Scan(&status); err != nil {
		return "", mapJobErr(err)
	}
	return model.JobStatus(status), nil
}

// TransitionStatus is the compare-and-set primitive of the job state machine. Source
// statuses that cannot legally reach params.To are dropped before the update, so an
// illegal request changes nothing.
func (r *JobRepo) TransitionStatus(ctx context.Context, p core.TransitionParams) (bool, error) {
	from := p.From
	if len(from) == 0 {
		from = model.SourcesFor(p.To)
	}
	from = slices.DeleteFunc(slices.Clone(from), func(s model.JobStatus) bool { return !s.CanTransitionTo(p.To) })
	if len(from) == 0 {
		return false, nil
	}
	if _, err := uuid.Parse(p.JobID); err != nil {
		return false, core.ErrJobNotFound
	}

	now := r.timeProvider.Now().UTC()
	var changed bool
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, transitionSQL,
				p.JobID, string(p.To), now, p.LastError, statusStrings(from), p.ClaimID)
			if err != nil {
				return fmt.Errorf("transition job to %s: %w", p.To, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			changed = n == 1
			if changed && p.To == model.JobStatusQueued {
				if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, QueueChannel, p.JobID); err != nil {
					return fmt.Errorf("send queue notification: %w", err)
				}
			}
			return nil
		},
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// IncrementCounts bumps the outcome counters atomically in SQL. The table's check
// constraint rejects increments that would exceed the total.
func (r *JobRepo) IncrementCounts(ctx context.Context, d core.CountDelta) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE bulk_jobs
		SET success_count = success_count + $2,
		    failure_count = failure_count + $3,
		    updated_at = $4
		WHERE id = $1`,
		d.JobID, d.Success, d.Failure, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment counts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrJobNotFound
	}
	return nil
}

// ClaimNext moves the earliest due queued job to running under a fresh claim id.
// Returns model.ErrNoJobsAvailable when nothing is due.
func (r *JobRepo) ClaimNext(ctx context.Context) (*model.Job, error) {
	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, claimNextSQL+jobColumns("j"), now, uuid.NewString())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNoJobsAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// ClaimStatus reads the job status and checks that claimID still owns the job. An empty
// claimID skips the ownership check.
func (r *JobRepo) ClaimStatus(ctx context.Context, jobID, claimID string) (model.JobStatus, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return "", core.ErrJobNotFound
	}
	var status, current string
	if err := r.DB.QueryRowContext(ctx,
		`SELECT status, COALESCE(claim_id::text, '') FROM bulk_jobs WHERE id = $1`, jobID,
	).Scan(&status, &current); err != nil {
		return "", mapJobErr(err)
	}
	if claimID != "" && current != claimID {
		return model.JobStatus(status), core.ErrClaimLost
	}
	return model.JobStatus(status), nil
}

// TouchHeartbeat records that the dispatch holding claimID is alive.
func (r *JobRepo) TouchHeartbeat(ctx context.Context, jobID, claimID string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE bulk_jobs SET heartbeat_at = $2
		WHERE id = $1 AND status IN ('running', 'paused')
		  AND ($3::text = '' OR claim_id::text = $3::text)`,
		jobID, r.timeProvider.Now().UTC(), claimID)
	if err != nil {
		return fmt.Errorf("touch heartbeat: %w", err)
	}
	return nil
}

// WaitForNotification waits for a PostgreSQL notification indicating a job was queued.
func (r *JobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{QueueChannel}.Sanitize()
	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", QueueChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

func notifyQueuedTx(ctx context.Context, tx pgx.Tx, jobID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, QueueChannel, jobID); err != nil {
		return fmt.Errorf("send queue notification: %w", err)
	}
	return nil
}

// mapJobErr turns missing rows into core.ErrJobNotFound.
func mapJobErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return core.ErrJobNotFound
	}
	return err
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
