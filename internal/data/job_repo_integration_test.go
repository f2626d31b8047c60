package data

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
	"github.com/target/bulkmailer/internal/testutil"
)

func newTestJobRepo(db *sql.DB, now time.Time) (*JobRepo, *FixedTimeProvider) {
	tp := NewFixedTimeProvider(now)
	return NewJobRepo(db, RepoConfig{TimeProvider: tp}), tp
}

func TestJobRepo_Integration_CreateWithRecipients(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo, _ := newTestJobRepo(db, testutil.TestTime())

		req := testutil.NewJobRequest().
			WithAttachments("terms.pdf").
			WithInterval(1, 3).
			WithRecipients(
				testutil.Recipient("a@example.com", "EN", map[string]string{"name": "Ann"}),
				testutil.Recipient("b@example.com", "", nil),
			).
			Build()

		job, err := repo.CreateJob(ctx, req)
		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, model.JobStatusQueued, job.Status)
		assert.Equal(t, 2, job.Total)
		assert.Equal(t, []string{"terms.pdf"}, job.Attachments)
		assert.True(t, testutil.TestTime().Equal(job.ScheduleAt))

		got, err := repo.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Total)
		assert.Equal(t, 1, got.MinInterval)
		assert.Equal(t, 3, got.MaxInterval)

		recipients, err := repo.ListRecipients(ctx, core.RecipientFilter{JobID: job.ID})
		require.NoError(t, err)
		require.Len(t, recipients, 2)
		assert.Equal(t, 0, recipients[0].Position)
		assert.Equal(t, "a@example.com", recipients[0].ToEmail)
		assert.Equal(t, "en", recipients[0].Language)
		assert.Equal(t, "Ann", recipients[0].Variables["name"])
		assert.Equal(t, model.RecipientStatusPending, recipients[0].Status)
		assert.Equal(t, 1, recipients[1].Position)
		assert.Equal(t, "en", recipients[1].Language)

		added, err := repo.AddRecipients(ctx, job.ID, []model.NewRecipient{
			testutil.Recipient("c@example.com", "fr", nil),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, added)

		pending := model.RecipientStatusPending
		n, err := repo.CountRecipients(ctx, core.RecipientFilter{JobID: job.ID, Status: &pending})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		got, err = repo.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.Total)
	})
}

func TestJobRepo_Integration_CreateRollsBackOnBadRecipient(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo, _ := newTestJobRepo(db, testutil.TestTime())

		_, err := repo.CreateJob(ctx, testutil.NewJobRequest().
			WithRecipients(testutil.Recipient("not-an-address", "en", nil)).
			Build())
		require.Error(t, err)

		var count int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bulk_jobs`).Scan(&count))
		assert.Zero(t, count)
	})
}

func TestJobRepo_Integration_NotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo, _ := newTestJobRepo(db, testutil.TestTime())

		for _, id := range []string{"not-a-uuid", "6f1c2a1e-3d4b-4c5d-8e9f-0a1b2c3d4e5f"} {
			_, err := repo.GetJob(ctx, id)
			require.ErrorIs(t, err, core.ErrJobNotFound, id)
			_, err = repo.GetStatus(ctx, id)
			require.ErrorIs(t, err, core.ErrJobNotFound, id)
		}
		err := repo.IncrementCounts(ctx, core.CountDelta{JobID: "6f1c2a1e-3d4b-4c5d-8e9f-0a1b2c3d4e5f", Success: 1})
		require.ErrorIs(t, err, core.ErrJobNotFound)
	})
}

func TestJobRepo_Integration_ClaimOrderAndSchedule(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		now := testutil.TestTime()
		repo, tp := newTestJobRepo(db, now)

		later, err := repo.CreateJob(ctx, testutil.ScheduledJobRequest(now.Add(time.Hour)))
		require.NoError(t, err)
		first, err := repo.CreateJob(ctx, testutil.ScheduledJobRequest(now.Add(-2*time.Minute)))
		require.NoError(t, err)
		second, err := repo.CreateJob(ctx, testutil.ScheduledJobRequest(now.Add(-time.Minute)))
		require.NoError(t, err)

		claimed, err := repo.ClaimNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.ID, claimed.ID)
		assert.Equal(t, model.JobStatusRunning, claimed.Status)
		require.NotNil(t, claimed.StartedAt)
		require.NotNil(t, claimed.HeartbeatAt)

		claimed, err = repo.ClaimNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.ID, claimed.ID)

		_, err = repo.ClaimNext(ctx)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)

		tp.AddTime(2 * time.Hour)
		claimed, err = repo.ClaimNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, later.ID, claimed.ID)
	})
}

func TestJobRepo_Integration_ConcurrentClaimsAreExclusive(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo, _ := newTestJobRepo(db, testutil.TestTime())

		const jobs = 5
		for range jobs {
			_, err := repo.CreateJob(ctx, testutil.NewJobRequest().Build())
			require.NoError(t, err)
		}

		var (
			mu      sync.Mutex
			claimed = map[string]int{}
		)
		claim := func() error {
			job, err := repo.ClaimNext(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			claimed[job.ID]++
			mu.Unlock()
			return nil
		}
		funcs := make([]func() error, jobs)
		for i := range funcs {
			funcs[i] = claim
		}
		runner := testutil.NewConcurrentTestRunner(t, db)
		runner.AssertNoErrors(runner.RunConcurrent(funcs...))

		assert.Len(t, claimed, jobs)
		for id, n := range claimed {
			assert.Equal(t, 1, n, "job %s claimed more than once", id)
		}
	})
}

func TestJobRepo_Integration_TransitionStatus(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo, _ := newTestJobRepo(db, testutil.TestTime())

		job, err := repo.CreateJob(ctx, testutil.NewJobRequest().WithNumberedRecipients(1).Build())
		require.NoError(t, err)

		// queued cannot be paused.
		changed, err := repo.TransitionStatus(ctx, core.TransitionParams{JobID: job.ID, To: model.JobStatusPaused})
		require.NoError(t, err)
		assert.False(t, changed)

		_, err = repo.ClaimNext(ctx)
		require.NoError(t, err)

		changed, err = repo.TransitionStatus(ctx, core.TransitionParams{
			JobID: job.ID,
			From:  []model.JobStatus{model.JobStatusRunning},
			To:    model.JobStatusPaused,
		})
		require.NoError(t, err)
		assert.True(t, changed)

		// CAS guard: the job is no longer running.
		changed, err = repo.TransitionStatus(ctx, core.TransitionParams{
			JobID: job.ID,
			From:  []model.JobStatus{model.JobStatusRunning},
			To:    model.JobStatusCompleted,
		})
		require.NoError(t, err)
		assert.False(t, changed)

		msg := "token revoked"
		changed, err = repo.TransitionStatus(ctx, core.TransitionParams{
			JobID: job.ID, To: model.JobStatusError, LastError: &msg,
		})
		require.NoError(t, err)
		assert.True(t, changed)

		got, err := repo.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusError, got.Status)
		require.NotNil(t, got.LastError)
		assert.Equal(t, msg, *got.LastError)
		assert.NotNil(t, got.FinishedAt)

		// error is terminal.
		changed, err = repo.TransitionStatus(ctx, core.TransitionParams{JobID: job.ID, To: model.JobStatusQueued})
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

func TestJobRepo_Integration_StopAndRequeue(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo, _ := newTestJobRepo(db, testutil.TestTime())

		job, err := repo.CreateJob(ctx, testutil.NewJobRequest().WithNumberedRecipients(2).Build())
		require.NoError(t, err)
		_, err = repo.ClaimNext(ctx)
		require.NoError(t, err)

		changed, err := repo.TransitionStatus(ctx, core.TransitionParams{JobID: job.ID, To: model.JobStatusStopped})
		require.NoError(t, err)
		require.True(t, changed)

		stopped, err := repo.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.NotNil(t, stopped.FinishedAt)

		changed, err = repo.TransitionStatus(ctx, core.TransitionParams{JobID: job.ID, To: model.JobStatusQueued})
		require.NoError(t, err)
		require.True(t, changed)

		requeued, err := repo.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusQueued, requeued.Status)
		assert.Nil(t, requeued.FinishedAt)
		assert.Nil(t, requeued.HeartbeatAt)
		assert.NotNil(t, requeued.StartedAt)
	})
}

func TestJobRepo_Integration_ClaimToken(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo, tp := newTestJobRepo(db, testutil.TestTime())

		job, err := repo.CreateJob(ctx, testutil.NewJobRequest().WithNumberedRecipients(2).Build())
		require.NoError(t, err)
		assert.Empty(t, job.ClaimID)

		first, err := repo.ClaimNext(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, first.ClaimID)

		status, err := repo.ClaimStatus(ctx, job.ID, first.ClaimID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRunning, status)

		// stop, requeue and claim again while the first dispatch is still alive
		for _, to := range []model.JobStatus{model.JobStatusStopped, model.JobStatusQueued} {
			changed, terr := repo.TransitionStatus(ctx, core.TransitionParams{JobID: job.ID, To: to})
			require.NoError(t, terr)
			require.True(t, changed)
		}
		requeued, err := repo.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Empty(t, requeued.ClaimID)

		second, err := repo.ClaimNext(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, second.ClaimID)
		assert.NotEqual(t, first.ClaimID, second.ClaimID)

		status, err = repo.ClaimStatus(ctx, job.ID, first.ClaimID)
		require.ErrorIs(t, err, core.ErrClaimLost)
		assert.Equal(t, model.JobStatusRunning, status)

		changed, err := repo.TransitionStatus(ctx, core.TransitionParams{
			JobID:   job.ID,
			From:    []model.JobStatus{model.JobStatusRunning},
			To:      model.JobStatusCompleted,
			ClaimID: first.ClaimID,
		})
		require.NoError(t, err)
		assert.False(t, changed, "a stale claim cannot finish the job")

		tp.AddTime(time.Minute)
		require.NoError(t, repo.TouchHeartbeat(ctx, job.ID, first.ClaimID))
		got, err := repo.GetJob(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, got.HeartbeatAt)
		assert.True(t, got.HeartbeatAt.Equal(*second.HeartbeatAt), "a stale claim does not refresh the heartbeat")

		changed, err = repo.TransitionStatus(ctx, core.TransitionParams{
			JobID:   job.ID,
			From:    []model.JobStatus{model.JobStatusRunning},
			To:      model.JobStatusCompleted,
			ClaimID: second.ClaimID,
		})
		require.NoError(t, err)
		assert.True(t, changed)
	})
}

func TestJobRepo_Integration_RecipientResultsAndCounts(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo, _ := newTestJobRepo(db, testutil.TestTime())

		job, err := repo.CreateJob(ctx, testutil.NewJobRequest().WithNumberedRecipients(2).Build())
		require.NoError(t, err)
		recipients, err := repo.ListRecipients(ctx, core.RecipientFilter{JobID: job.ID})
		require.NoError(t, err)
		require.Len(t, recipients, 2)

		changed, err := repo.SetRecipientResult(ctx, model.RecipientResult{
			RecipientID: recipients[0].ID,
			Status:      model.RecipientStatusSuccess,
			MessageID:   "<m1@test>",
		})
		require.NoError(t, err)
		assert.True(t, changed)

		// A recipient is recorded exactly once.
		changed, err = repo.SetRecipientResult(ctx, model.RecipientResult{
			RecipientID: recipients[0].ID,
			Status:      model.RecipientStatusFailed,
			Error:       "late",
		})
		require.NoError(t, err)
		assert.False(t, changed)

		_, err = repo.SetRecipientResult(ctx, model.RecipientResult{
			RecipientID: recipients[1].ID,
			Status:      model.RecipientStatusPending,
		})
		require.Error(t, err)

		require.NoError(t, repo.IncrementCounts(ctx, core.CountDelta{JobID: job.ID, Success: 1}))
		require.NoError(t, repo.IncrementCounts(ctx, core.CountDelta{JobID: job.ID, Failure: 1}))
		// Counts never exceed the total.
		require.Error(t, repo.IncrementCounts(ctx, core.CountDelta{JobID: job.ID, Success: 1}))

		got, err := repo.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.SuccessCount)
		assert.Equal(t, 1, got.FailureCount)

		success := model.RecipientStatusSuccess
		list, err := repo.ListRecipients(ctx, core.RecipientFilter{JobID: job.ID, Status: &success})
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.NotNil(t, list[0].MessageID)
		assert.Equal(t, "<m1@test>", *list[0].MessageID)
		assert.NotNil(t, list[0].SentAt)
	})
}

func TestJobRepo_Integration_Events(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo, _ := newTestJobRepo(db, testutil.TestTime())

		job, err := repo.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)

		require.NoError(t, repo.AppendEvent(ctx, core.AppendEventParams{JobID: job.ID, Type: model.JobEventPaused}))
		require.NoError(t, repo.AppendEvent(ctx, core.AppendEventParams{
			JobID: job.ID,
			Type:  model.JobEventCompleted,
			Data:  model.EventData{"success": 2, "failed": 0},
		}))

		events, err := repo.ListEvents(ctx, job.ID, 0)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, model.JobEventPaused, events[0].Type)
		assert.Equal(t, model.JobEventCompleted, events[1].Type)
		assert.JSONEq(t, `{"success":2,"failed":0}`, string(events[1].Data))

		limited, err := repo.ListEvents(ctx, job.ID, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

func TestJobRepo_Integration_RequeueStale(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		now := testutil.TestTime()
		repo, tp := newTestJobRepo(db, now)

		stale, err := repo.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		_, err = repo.ClaimNext(ctx)
		require.NoError(t, err)

		tp.AddTime(10 * time.Minute)
		fresh, err := repo.CreateJob(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		freshClaim, err := repo.ClaimNext(ctx)
		require.NoError(t, err)

		ids, err := repo.RequeueStale(ctx, now.Add(5*time.Minute), 0)
		require.NoError(t, err)
		assert.Equal(t, []string{stale.ID}, ids)

		status, err := repo.GetStatus(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusQueued, status)
		status, err = repo.GetStatus(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRunning, status)

		// A fresh heartbeat protects the job from the next sweep.
		tp.AddTime(10 * time.Minute)
		require.NoError(t, repo.TouchHeartbeat(ctx, fresh.ID, freshClaim.ClaimID))
		ids, err = repo.RequeueStale(ctx, tp.Now().Add(-time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestJobRepo_Integration_WaitForNotification(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo, _ := newTestJobRepo(db, testutil.TestTime())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- repo.WaitForNotification(ctx) }()

		// LISTEN is registered asynchronously; keep creating jobs until the waiter wakes.
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case err := <-done:
				require.NoError(t, err)
				return
			case <-ticker.C:
				_, err := repo.CreateJob(context.Background(), testutil.NewJobRequest().Build())
				require.NoError(t, err)
			case <-ctx.Done():
				t.Fatal("notification not received")
			}
		}
	})
}
