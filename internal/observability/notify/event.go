// Package notify defines the payload and sink contract for operator alerts about
// bulk jobs that ended in error.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// JobFailurePayload captures the data emitted when a bulk job aborts.
type JobFailurePayload struct {
	JobID       string
	JobKind     string
	Tenant      string
	SenderEmail string
	Error       string
	ErrorClass  string
	Severity    string
	OccurredAt  time.Time
	// Metadata carries progress at the time of failure (sent, failed, total).
	Metadata map[string]string
}

// Sink describes a destination capable of consuming job failure notifications.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements the Sink interface.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
