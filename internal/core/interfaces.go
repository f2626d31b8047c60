// Package core declares the ports between the bulkmailer services and their adapters.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/target/bulkmailer/internal/domain/model"
)

// This file contains repository and collaborator interfaces (ports in hexagonal architecture).
// Services depend on these interfaces; internal/data and internal/adapters provide implementations.

var (
	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrAssetNotFound is returned by AssetLookup when no asset matches.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrTemplateRowNotFound is returned by TemplateRepository when no template matches.
	ErrTemplateRowNotFound = errors.New("template row not found")
	// ErrSenderNotFound is returned when no credentials exist for a sender identity.
	ErrSenderNotFound = errors.New("sender account not found")
	// ErrClaimLost is returned by ClaimStatus when the job was requeued or claimed again
	// since the caller's claim.
	ErrClaimLost = errors.New("job claim lost")
)

// TransitionParams groups parameters for a compare-and-set status change.
type TransitionParams struct {
	JobID string
	// From lists the statuses the job must currently be in; empty means model.SourcesFor(To).
	From []model.JobStatus
	To   model.JobStatus
	// LastError is recorded on the job when set.
	LastError *string
	// ClaimID, when set, limits the change to the dispatch holding that claim.
	ClaimID string
}

// CountDelta groups parameters for an atomic counter increment.
type CountDelta struct {
	JobID   string
	Success int
	Failure int
}

// AppendEventParams groups parameters for writing a job event.
type AppendEventParams struct {
	JobID string
	Type  model.JobEventType
	Data  model.EventData
}

// RecipientFilter selects recipients of a job, optionally by status.
type RecipientFilter struct {
	JobID  string
	Status *model.RecipientStatus
}

// JobRepository is the persistence collaborator for jobs, recipients and events.
type JobRepository interface {
	CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	// AddRecipients appends recipients in the given order and bumps the job total.
	AddRecipients(ctx context.Context, jobID string, recipients []model.NewRecipient) (int, error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
	GetStatus(ctx context.Context, id string) (model.JobStatus, error)
	// ListRecipients returns recipients in stored order.
	ListRecipients(ctx context.Context, filter RecipientFilter) ([]*model.Recipient, error)
	CountRecipients(ctx context.Context, filter RecipientFilter) (int, error)
	// TransitionStatus atomically moves a job to params.To when its current status is allowed.
	// It reports whether the row changed.
	TransitionStatus(ctx context.Context, params TransitionParams) (bool, error)
	IncrementCounts(ctx context.Context, delta CountDelta) error
	// SetRecipientResult records a terminal outcome; it reports false when the recipient was not pending.
	SetRecipientResult(ctx context.Context, result model.RecipientResult) (bool, error)
	AppendEvent(ctx context.Context, params AppendEventParams) error
	ListEvents(ctx context.Context, jobID string, limit int) ([]*model.JobEvent, error)
	// ClaimNext moves the earliest due queued job to running. Returns model.ErrNoJobsAvailable when none is due.
	ClaimNext(ctx context.Context) (*model.Job, error)
	// ClaimStatus reads the status of a job on behalf of the dispatch holding claimID.
	// It returns ErrClaimLost when the job no longer carries that claim.
	ClaimStatus(ctx context.Context, jobID, claimID string) (model.JobStatus, error)
	// TouchHeartbeat refreshes the heartbeat of an active job still held by claimID.
	TouchHeartbeat(ctx context.Context, jobID, claimID string) error
	// RequeueStale moves running jobs whose heartbeat is older than staleBefore back to queued.
	RequeueStale(ctx context.Context, staleBefore time.Time, limit int) ([]string, error)
	// WaitForNotification blocks until a job is queued or ctx is done.
	WaitForNotification(ctx context.Context) error
}

// TemplateRepository loads stored templates.
type TemplateRepository interface {
	GetByID(ctx context.Context, tenant model.Tenant, id int64) (*model.Template, error)
	// GetActiveByLanguage returns the newest active template for a language.
	GetActiveByLanguage(ctx context.Context, tenant model.Tenant, language string) (*model.Template, error)
}

// AssetRepository loads asset metadata rows.
type AssetRepository interface {
	GetByFileID(ctx context.Context, ref AssetRef) (*model.Asset, error)
}

// SenderRepository loads provider credentials for a sender identity.
type SenderRepository interface {
	Get(ctx context.Context, tenant model.Tenant, email string) (*model.SenderAccount, error)
	// UpdateToken stores a refreshed provider token for the sender.
	UpdateToken(ctx context.Context, tenant model.Tenant, email string, tokenJSON []byte) error
}

// AssetRef addresses one asset of a tenant.
type AssetRef struct {
	Tenant model.Tenant
	Kind   model.AssetKind
	ID     string
}

// AssetLookup resolves an asset reference to embeddable bytes. Returns ErrAssetNotFound when missing.
type AssetLookup interface {
	Resolve(ctx context.Context, ref AssetRef) (*model.ResolvedAsset, error)
}

// Transport sends a composed message for a sender and returns the provider message id.
type Transport interface {
	Send(ctx context.Context, msg *model.Message) (string, error)
}

// SendGate is implemented by transports that hold a send back, such as a rate limiter.
// Callers await the gate on a cancellable context and then send on a detached one.
type SendGate interface {
	AwaitSend(ctx context.Context) error
}

// TransportFactory constructs a Transport for an authenticated sender identity.
type TransportFactory interface {
	ForSender(ctx context.Context, tenant model.Tenant, senderEmail string) (Transport, error)
}

// WebhookRequest is a single fire-and-forget webhook delivery.
type WebhookRequest struct {
	URL     string
	Payload model.WebhookPayload
	Timeout time.Duration
}

// WebhookNotifier posts progress events. Implementations must not block the caller on delivery.
type WebhookNotifier interface {
	PostFireAndForget(ctx context.Context, req WebhookRequest)
}
