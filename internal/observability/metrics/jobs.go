// Package metrics names the bulkmailer metrics and emits them through a statsd.Sink.
package metrics

import (
	"time"

	obserrors "github.com/target/bulkmailer/internal/observability/errors"
	"github.com/target/bulkmailer/internal/observability/statsd"
)

// Metric names shared by every sink.
const (
	JobTransition         = "job.transition"
	JobDuration           = "job.duration"
	RecipientSend         = "recipient.send"
	RecipientSendDuration = "recipient.send_duration"
	PersistenceError      = "persistence.error"
	WebhookDelivery       = "webhook.delivery"
	RunnerActiveJobs      = "runner.active_jobs"
	RecoveryRequeued      = "recovery.requeued"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures a job status change for metric emission.
type JobMetric struct {
	JobKind    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_kind":   in.JobKind,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(JobTransition, 1, tags)
	if in.Duration > 0 {
		sink.Timing(JobDuration, in.Duration, CloneTags(tags))
	}
}

// SendMetric captures one recipient delivery attempt.
type SendMetric struct {
	JobKind  string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitSend emits the per-recipient delivery counter and latency.
func EmitSend(sink statsd.Sink, in SendMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"job_kind": in.JobKind,
		"result":   in.Result,
	}
	if in.Err != nil {
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	sink.Count(RecipientSend, 1, tags)
	if in.Duration > 0 {
		sink.Timing(RecipientSendDuration, in.Duration, map[string]string{"result": in.Result})
	}
}

// EmitPersistenceError counts a best-effort write that failed.
func EmitPersistenceError(sink statsd.Sink, op string) {
	if sink == nil {
		return
	}
	sink.Count(PersistenceError, 1, map[string]string{"op": op})
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
