package model

import (
	"encoding/json"
	"time"
)

// JobEventType names an append-only audit record.
type JobEventType string

const (
	// JobEventStarted is written when a scheduler begins a job.
	JobEventStarted JobEventType = "started"
	// JobEventRecipientSuccess is written after a successful send.
	JobEventRecipientSuccess JobEventType = "recipient_success"
	// JobEventRecipientFailed is written after a failed render, compose or send.
	JobEventRecipientFailed JobEventType = "recipient_failed"
	// JobEventCompleted is written when every pending recipient was attempted.
	JobEventCompleted JobEventType = "completed"
	// JobEventFailed is written when a job-level error aborts the run.
	JobEventFailed JobEventType = "failed"
	// JobEventStopped is written when a run ends because of a stop request.
	JobEventStopped JobEventType = "stopped"
	// JobEventPaused is written when an operator pauses a job.
	JobEventPaused JobEventType = "paused"
	// JobEventResumed is written when an operator resumes a job.
	JobEventResumed JobEventType = "resumed"
)

// JobEvent is a write-once audit record owned by a job.
type JobEvent struct {
	ID        int64           `json:"id"         db:"id"`
	JobID     string          `json:"job_id"     db:"job_id"`
	Type      JobEventType    `json:"event_type" db:"event_type"`
	Data      json.RawMessage `json:"event_data" db:"event_data"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// EventData is the opaque key-value payload attached to an event.
type EventData map[string]any

// WebhookPayload is the JSON body posted to a job's webhook URL.
type WebhookPayload struct {
	JobID     string       `json:"job_id"`
	EventType JobEventType `json:"event_type"`
	EventData EventData    `json:"event_data"`
	Timestamp string       `json:"timestamp"`
}

// NewWebhookPayload stamps the payload with a UTC, microsecond-precision timestamp suffixed with "Z".
func NewWebhookPayload(jobID string, t JobEventType, data EventData, now time.Time) WebhookPayload {
	if data == nil {
		data = EventData{}
	}
	return WebhookPayload{
		JobID:     jobID,
		EventType: t,
		EventData: data,
		Timestamp: now.UTC().Format("2006-01-02T15:04:05.000000Z"),
	}
}
