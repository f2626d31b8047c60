package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
	apperrors "github.com/target/bulkmailer/internal/errors"
	"github.com/target/bulkmailer/internal/mocks"
	"github.com/target/bulkmailer/internal/testutil/jobstore"
	"go.uber.org/mock/gomock"
)

func newTestJobService(t *testing.T) (*JobService, *jobstore.Store) {
	t.Helper()
	store := jobstore.New()
	return MustNewJobService(JobServiceOptions{Repo: store}), store
}

func validRequest() *model.CreateJobRequest {
	return &model.CreateJobRequest{
		Tenant:      model.Tenant{MasterUserID: "mu1", StoreID: "s1"},
		SenderEmail: "shop@example.com",
		Kind:        model.JobKindCustom,
		Subject:     "Hello [name]",
		HTMLContent: "<p>Hi [name]</p>",
		MaxInterval: 3,
		Recipients: []model.NewRecipient{
			{ToEmail: "a@example.com", Variables: map[string]string{"name": "A"}},
			{ToEmail: "b@example.com", Language: "FR "},
		},
	}
}

func createJob(t *testing.T, svc *JobService) *model.Job {
	t.Helper()
	job, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	return job
}

func TestNewJobService(t *testing.T) {
	_, err := NewJobService(JobServiceOptions{})
	require.Error(t, err)

	assert.Panics(t, func() { MustNewJobService(JobServiceOptions{}) })
}

func TestJobService_Create(t *testing.T) {
	svc, store := newTestJobService(t)
	job := createJob(t, svc)

	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.Equal(t, 2, job.Total)

	list, err := store.ListRecipients(context.Background(), core.RecipientFilter{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "fr", list[1].Language)
	assert.Equal(t, model.DefaultLanguage, list[0].Language)
}

func TestJobService_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.CreateJobRequest)
	}{
		{"missing tenant", func(r *model.CreateJobRequest) { r.Tenant = model.Tenant{} }},
		{"bad sender", func(r *model.CreateJobRequest) { r.SenderEmail = "nope" }},
		{"custom without subject", func(r *model.CreateJobRequest) { r.Subject = " " }},
		{"inverted interval", func(r *model.CreateJobRequest) { r.MinInterval = 5; r.MaxInterval = 1 }},
		{"bad recipient", func(r *model.CreateJobRequest) { r.Recipients[1].ToEmail = "not-an-address" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestJobService(t)
			req := validRequest()
			tt.mutate(req)
			_, err := svc.Create(context.Background(), req)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
		})
	}
}

func TestJobService_PauseResume(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestJobService(t)
	job := createJob(t, svc)

	changed, err := svc.Pause(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, changed, "queued jobs cannot be paused")

	_, err = store.ClaimNext(ctx)
	require.NoError(t, err)
	flags, release := svc.Track(job.ID)
	defer release()

	changed, err = svc.Pause(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, flags.ShouldPause(ctx))

	changed, err = svc.Pause(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, changed, "pause is idempotent")

	changed, err = svc.Resume(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, flags.ShouldPause(ctx))

	status, err := store.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, status)
	assert.Equal(t, []model.JobEventType{model.JobEventPaused, model.JobEventResumed}, store.Events(job.ID))
}

func TestJobService_StopRunningJobRaisesFlag(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestJobService(t)
	job := createJob(t, svc)
	_, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	flags, release := svc.Track(job.ID)
	defer release()

	changed, err := svc.Stop(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, flags.ShouldStop(ctx))
	assert.Empty(t, store.Events(job.ID), "the scheduler reports stops of active jobs")

	changed, err = svc.Stop(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestJobService_StopQueuedJobRecordsEvent(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestJobService(t)
	job := createJob(t, svc)

	changed, err := svc.Stop(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []model.JobEventType{model.JobEventStopped}, store.Events(job.ID))

	changed, err = svc.Requeue(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	claimed, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, claimed.ID)
}

func TestJobService_StopTerminalJobIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestJobService(t)
	job := createJob(t, svc)
	store.SetStatus(job.ID, model.JobStatusCompleted)

	changed, err := svc.Stop(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = svc.Requeue(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestJobService_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestJobService(t)

	ops := map[string]func() error{
		"pause":   func() error { _, err := svc.Pause(ctx, "missing"); return err },
		"resume":  func() error { _, err := svc.Resume(ctx, "missing"); return err },
		"stop":    func() error { _, err := svc.Stop(ctx, "missing"); return err },
		"requeue": func() error { _, err := svc.Requeue(ctx, "missing"); return err },
		"status":  func() error { _, err := svc.Status(ctx, "missing"); return err },
		"events":  func() error { _, err := svc.Events(ctx, "missing", 0); return err },
		"add": func() error {
			_, err := svc.AddRecipients(ctx, "missing", []model.NewRecipient{{ToEmail: "a@example.com"}})
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
		})
	}
}

func TestJobService_Status(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestJobService(t)
	job := createJob(t, svc)

	list, err := store.ListRecipients(ctx, core.RecipientFilter{JobID: job.ID})
	require.NoError(t, err)
	_, err = store.SetRecipientResult(ctx, model.RecipientResult{
		RecipientID: list[0].ID,
		Status:      model.RecipientStatusSuccess,
		MessageID:   "m1",
	})
	require.NoError(t, err)
	require.NoError(t, store.IncrementCounts(ctx, core.CountDelta{JobID: job.ID, Success: 1}))

	view, err := svc.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, view.Status)
	assert.Equal(t, model.JobCounts{Total: 2, Success: 1, Failed: 0, Pending: 1}, view.Counts)
}

func TestJobService_AddRecipients(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestJobService(t)
	job := createJob(t, svc)

	n, err := svc.AddRecipients(ctx, job.ID, []model.NewRecipient{{ToEmail: "c@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.ClaimNext(ctx)
	require.NoError(t, err)
	_, err = svc.AddRecipients(ctx, job.ID, []model.NewRecipient{{ToEmail: "d@example.com"}})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))

	_, err = svc.AddRecipients(ctx, job.ID, []model.NewRecipient{{ToEmail: "bad"}})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Total)
}

func TestJobService_TrackRelease(t *testing.T) {
	svc, _ := newTestJobService(t)

	first, releaseFirst := svc.Track("a")
	assert.Same(t, first, svc.flags("a"))

	// A newer run of the same job replaces the flags; the stale release must keep them.
	second, releaseSecond := svc.Track("a")
	releaseFirst()
	assert.Same(t, second, svc.flags("a"))

	releaseSecond()
	assert.Nil(t, svc.flags("a"))
}

func TestJobService_RepositoryErrorsAreInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc := MustNewJobService(JobServiceOptions{Repo: repo})

	repo.EXPECT().TransitionStatus(gomock.Any(), gomock.Any()).Return(false, errors.New("connection reset"))

	_, err := svc.Pause(context.Background(), "job-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInternal, apperrors.GetCode(err))
}

func TestJobService_AuditFailureDoesNotFailPause(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc := MustNewJobService(JobServiceOptions{Repo: repo})

	repo.EXPECT().
		TransitionStatus(gomock.Any(), core.TransitionParams{
			JobID: "job-1",
			From:  []model.JobStatus{model.JobStatusRunning},
			To:    model.JobStatusPaused,
		}).
		Return(true, nil)
	repo.EXPECT().AppendEvent(gomock.Any(), gomock.Any()).Return(errors.New("insert failed"))

	changed, err := svc.Pause(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, changed)
}
