// Package testutil provides testing utilities and helpers for the bulkmailer job system.
package testutil

import (
	"fmt"
	"time"

	"github.com/target/bulkmailer/internal/domain/model"
)

// DefaultTenant is the tenant used by builders unless overridden.
var DefaultTenant = model.Tenant{MasterUserID: "mu1", StoreID: "s1"}

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a custom-content job request with sensible defaults and no pacing.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Tenant:      DefaultTenant,
			SenderEmail: "sender@example.com",
			Kind:        model.JobKindCustom,
			Subject:     "Hello [name]",
			HTMLContent: "<p>Dear [name]</p>",
		},
	}
}

// WithAttachments sets explicit job attachments.
func (b *JobRequestBuilder) WithAttachments(ids ...string) *JobRequestBuilder {
	b.req.Attachments = ids
	return b
}

// WithInterval sets the pacing bounds in seconds.
func (b *JobRequestBuilder) WithInterval(minSeconds, maxSeconds int) *JobRequestBuilder {
	b.req.MinInterval = minSeconds
	b.req.MaxInterval = maxSeconds
	return b
}

// WithScheduleAt sets when the job becomes due.
func (b *JobRequestBuilder) WithScheduleAt(at time.Time) *JobRequestBuilder {
	b.req.ScheduleAt = &at
	return b
}

// WithRecipients sets the recipients stored with the job.
func (b *JobRequestBuilder) WithRecipients(recipients ...model.NewRecipient) *JobRequestBuilder {
	b.req.Recipients = recipients
	return b
}

// WithNumberedRecipients adds n recipients named user0..user(n-1) at example.com.
func (b *JobRequestBuilder) WithNumberedRecipients(n int) *JobRequestBuilder {
	out := make([]model.NewRecipient, 0, n)
	for i := range n {
		name := fmt.Sprintf("user%d", i)
		out = append(out, Recipient(name+"@example.com", "en", map[string]string{"name": name}))
	}
	b.req.Recipients = out
	return b
}

// Build returns the built CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	out := *b.req
	return &out
}

// Recipient builds one recipient row.
func Recipient(email, language string, vars map[string]string) model.NewRecipient {
	return model.NewRecipient{ToEmail: email, Language: language, Variables: vars}
}

// ScheduledJobRequest creates a custom job due at the given time.
func ScheduledJobRequest(at time.Time) *model.CreateJobRequest {
	return NewJobRequest().WithScheduleAt(at).Build()
}
