package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/target/bulkmailer/internal/data/pgxutil"
)

// Advisory lock namespace for recovery operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
const (
	advisoryLockRecoveryMajor   = 2000
	advisoryLockRecoveryRequeue = 1 // minor key for RequeueStale
)

// RequeueStale moves running jobs whose heartbeat is older than staleBefore back to queued
// so another runner resumes their pending recipients. Processes up to limit jobs per call.
// Uses an advisory lock so concurrent sweepers do not race; a sweeper that loses the lock
// returns no ids.
func (r *JobRepo) RequeueStale(ctx context.Context, staleBefore time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []string
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)",
				advisoryLockRecoveryMajor, advisoryLockRecoveryRequeue).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			rows, err := tx.QueryContext(ctx, `
				UPDATE bulk_jobs
				SET status = 'queued',
				    heartbeat_at = NULL,
				    claim_id = NULL,
				    updated_at = $1
				WHERE id IN (
					SELECT id FROM bulk_jobs
					WHERE status = 'running'
					  AND (heartbeat_at IS NULL OR heartbeat_at < $2)
					ORDER BY heartbeat_at NULLS FIRST
					LIMIT $3
					FOR UPDATE SKIP LOCKED
				)
				RETURNING id::text
			`, r.timeProvider.Now().UTC(), staleBefore.UTC(), limit)
			if err != nil {
				return fmt.Errorf("requeue stale jobs: %w", err)
			}
			defer rows.Close()
			for rows.Next() {
				var id string
				if scanErr := rows.Scan(&id); scanErr != nil {
					return fmt.Errorf("scan requeued id: %w", scanErr)
				}
				ids = append(ids, id)
			}
			if err := rows.Err(); err != nil {
				return fmt.Errorf("iterate requeued ids: %w", err)
			}
			if len(ids) == 0 {
				return nil
			}
			if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, QueueChannel, "recovery"); err != nil {
				return fmt.Errorf("send queue notification: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
