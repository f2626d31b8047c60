package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCreateJobRequest() *CreateJobRequest {
	return &CreateJobRequest{
		Tenant:      Tenant{MasterUserID: "mu1", StoreID: "s1"},
		SenderEmail: "sender@example.com",
		Kind:        JobKindCustom,
		Subject:     "Hello [name]",
		TextContent: "Hi [name]",
		MinInterval: 1,
		MaxInterval: 3,
	}
}

func TestJobKind_UnmarshalText(t *testing.T) {
	var k JobKind
	require.NoError(t, k.UnmarshalText([]byte(" Template ")))
	assert.Equal(t, JobKindTemplate, k)
	assert.Error(t, k.UnmarshalText([]byte("bulk")))
}

func TestJobStatus_Valid(t *testing.T) {
	for _, s := range []JobStatus{
		JobStatusQueued, JobStatusRunning, JobStatusPaused,
		JobStatusStopped, JobStatusCompleted, JobStatusError,
	} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, JobStatus("pending").Valid())
}

func TestCreateJobRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *CreateJobRequest)
		wantErr string
	}{
		{name: "valid custom", mutate: func(*CreateJobRequest) {}},
		{
			name:   "valid template without subject",
			mutate: func(r *CreateJobRequest) { r.Kind = JobKindTemplate; r.Subject = "" },
		},
		{
			name:   "equal bounds",
			mutate: func(r *CreateJobRequest) { r.MinInterval, r.MaxInterval = 0, 0 },
		},
		{
			name:    "missing tenant",
			mutate:  func(r *CreateJobRequest) { r.Tenant.StoreID = "" },
			wantErr: "tenant",
		},
		{
			name:    "bad sender",
			mutate:  func(r *CreateJobRequest) { r.SenderEmail = "not-an-email" },
			wantErr: "sender_email",
		},
		{
			name:    "unknown kind",
			mutate:  func(r *CreateJobRequest) { r.Kind = "bulk" },
			wantErr: "kind",
		},
		{
			name:    "custom without subject",
			mutate:  func(r *CreateJobRequest) { r.Subject = " " },
			wantErr: "subject",
		},
		{
			name:    "negative interval",
			mutate:  func(r *CreateJobRequest) { r.MinInterval = -1 },
			wantErr: ">= 0",
		},
		{
			name:    "min greater than max",
			mutate:  func(r *CreateJobRequest) { r.MinInterval, r.MaxInterval = 5, 2 },
			wantErr: "min_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateJobRequest()
			tt.mutate(req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJobStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusQueued, JobStatusRunning, true},
		{JobStatusQueued, JobStatusStopped, true},
		{JobStatusQueued, JobStatusPaused, false},
		{JobStatusRunning, JobStatusPaused, true},
		{JobStatusPaused, JobStatusRunning, true},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusError, true},
		{JobStatusPaused, JobStatusCompleted, false},
		{JobStatusStopped, JobStatusQueued, true},
		{JobStatusStopped, JobStatusRunning, false},
		{JobStatusCompleted, JobStatusQueued, false},
		{JobStatusError, JobStatusRunning, false},
		{JobStatusCompleted, JobStatusStopped, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestSourcesFor(t *testing.T) {
	assert.ElementsMatch(t,
		[]JobStatus{JobStatusQueued, JobStatusRunning, JobStatusPaused},
		SourcesFor(JobStatusStopped))
	assert.ElementsMatch(t, []JobStatus{JobStatusRunning}, SourcesFor(JobStatusPaused))
	assert.ElementsMatch(t, []JobStatus{JobStatusQueued, JobStatusPaused}, SourcesFor(JobStatusRunning))
	assert.Empty(t, SourcesFor(JobStatus("bogus")))
}

func TestJobStatus_TerminalAndActive(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusStopped.IsTerminal())
	assert.False(t, JobStatusPaused.IsTerminal())
	assert.True(t, JobStatusPaused.IsActive())
	assert.False(t, JobStatusQueued.IsActive())
}

func TestNewRecipient_Validate(t *testing.T) {
	r := NewRecipient{ToEmail: "  a@example.com ", Language: " FR "}
	require.NoError(t, r.Validate())
	assert.Equal(t, "a@example.com", r.ToEmail)
	assert.Equal(t, "fr", r.Language)

	r = NewRecipient{ToEmail: "b@example.com"}
	require.NoError(t, r.Validate())
	assert.Equal(t, DefaultLanguage, r.Language)

	r = NewRecipient{ToEmail: "nope"}
	assert.Error(t, r.Validate())
}

func TestRecipientResult_Validate(t *testing.T) {
	assert.NoError(t, RecipientResult{Status: RecipientStatusSuccess}.Validate())
	assert.NoError(t, RecipientResult{Status: RecipientStatusFailed}.Validate())
	assert.Error(t, RecipientResult{Status: RecipientStatusPending}.Validate())
	assert.Error(t, RecipientResult{Status: "sent"}.Validate())
}

func TestNewWebhookPayload(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 123456000, time.FixedZone("x", 3600))
	p := NewWebhookPayload("job-1", JobEventStarted, nil, now)
	assert.Equal(t, "2026-03-04T04:06:07.123456Z", p.Timestamp)
	assert.NotNil(t, p.EventData)
	assert.Equal(t, JobEventStarted, p.EventType)
}

func TestNewJobStatusView(t *testing.T) {
	webhook := "https://hooks.example.com/x"
	j := &Job{ID: "j1", Status: JobStatusRunning, Total: 5, SuccessCount: 2, FailureCount: 1, WebhookURL: &webhook}
	v := NewJobStatusView(j, 2)
	assert.Equal(t, JobCounts{Total: 5, Success: 2, Failed: 1, Pending: 2}, v.Counts)
	assert.Equal(t, webhook, j.Webhook())
	assert.Empty(t, (&Job{}).Webhook())
}
