package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
)

// recipientWhere builds the WHERE clause shared by ListRecipients and CountRecipients.
func recipientWhere(f core.RecipientFilter) (string, []any) {
	conds := []string{"job_id = $1"}
	args := []any{f.JobID}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListRecipients returns recipients of a job in stored order.
func (r *JobRepo) ListRecipients(ctx context.Context, f core.RecipientFilter) ([]*model.Recipient, error) {
	where, args := recipientWhere(f)
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+recipientColumns+` FROM bulk_job_recipients`+where+` ORDER BY position ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []*model.Recipient
	for rows.Next() {
		rcpt, scanErr := scanRecipient(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan recipient: %w", scanErr)
		}
		out = append(out, rcpt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return out, nil
}

// CountRecipients counts recipients of a job, optionally by status.
func (r *JobRepo) CountRecipients(ctx context.Context, f core.RecipientFilter) (int, error) {
	where, args := recipientWhere(f)
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM bulk_job_recipients`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recipients: %w", err)
	}
	return n, nil
}

// SetRecipientResult moves a pending recipient to its terminal status. A recipient that
// already has an outcome is left untouched and false is returned.
func (r *JobRepo) SetRecipientResult(ctx context.Context, res model.RecipientResult) (bool, error) {
	if err := res.Validate(); err != nil {
		return false, err
	}
	result, err := r.DB.ExecContext(ctx, `
		UPDATE bulk_job_recipients
		SET status = $2,
		    error = NULLIF($3, ''),
		    message_id = NULLIF($4, ''),
		    sent_at = $5
		WHERE id = $1 AND status = 'pending'`,
		res.RecipientID, string(res.Status), res.Error, res.MessageID, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set recipient result: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// AppendEvent writes an audit event.
func (r *JobRepo) AppendEvent(ctx context.Context, p core.AppendEventParams) error {
	data := p.Data
	if data == nil {
		data = model.EventData{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO bulk_job_events (job_id, event_type, event_data, created_at)
		VALUES ($1, $2, $3::jsonb, $4)`,
		p.JobID, string(p.Type), string(raw), r.timeProvider.Now().UTC(),
	); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns up to limit events of a job in insertion order.
func (r *JobRepo) ListEvents(ctx context.Context, jobID string, limit int) ([]*model.JobEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM bulk_job_events WHERE job_id = $1 ORDER BY id ASC`
	args := []any{jobID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*model.JobEvent
	for rows.Next() {
		e, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan event: %w", scanErr)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
