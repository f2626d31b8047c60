// Package prom exposes bulkmailer metrics to Prometheus by implementing statsd.Sink
// over a fixed set of collectors.
package prom

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/target/bulkmailer/internal/observability/metrics"
	"github.com/target/bulkmailer/internal/observability/statsd"
)

// Sink maps the names in package metrics onto Prometheus collectors. Metrics with
// unknown names are dropped and missing labels are reported as "".
type Sink struct {
	jobTransitions   *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	recipientSends   *prometheus.CounterVec
	sendDuration     *prometheus.HistogramVec
	persistenceErrs  *prometheus.CounterVec
	webhookDelivery  *prometheus.CounterVec
	activeJobs       prometheus.Gauge
	recoveryRequeued prometheus.Counter
}

var _ statsd.Sink = (*Sink)(nil)

// NewSink registers the collectors with reg. Registration failures are logged and the
// affected collector keeps working unexported.
func NewSink(reg prometheus.Registerer, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		jobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkmailer_job_transitions_total",
			Help: "Job status transitions performed by the scheduler and runner.",
		}, []string{"job_kind", "transition", "result", "error_class"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulkmailer_job_duration_seconds",
			Help:    "Wall-clock time of a scheduler run, pauses and pacing included.",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600},
		}, []string{"job_kind", "transition"}),
		recipientSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkmailer_recipient_sends_total",
			Help: "Recipient delivery outcomes.",
		}, []string{"job_kind", "result", "error_class"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulkmailer_recipient_send_duration_seconds",
			Help:    "Render, compose and transport latency per recipient.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"result"}),
		persistenceErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkmailer_persistence_errors_total",
			Help: "Best-effort state writes that failed and were skipped.",
		}, []string{"op"}),
		webhookDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkmailer_webhook_deliveries_total",
			Help: "Webhook POST outcomes.",
		}, []string{"result"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulkmailer_runner_active_jobs",
			Help: "Jobs currently executing in this runner.",
		}),
		recoveryRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bulkmailer_recovery_requeued_total",
			Help: "Stale running jobs returned to the queue by the recovery sweep.",
		}),
	}

	for _, c := range []prometheus.Collector{
		s.jobTransitions, s.jobDuration, s.recipientSends, s.sendDuration,
		s.persistenceErrs, s.webhookDelivery, s.activeJobs, s.recoveryRequeued,
	} {
		if err := reg.Register(c); err != nil {
			logger.Warn("prometheus collector registration failed", "error", err)
		}
	}
	return s
}

// Count implements statsd.Sink.
func (s *Sink) Count(name string, value int64, tags map[string]string) {
	v := float64(value)
	switch name {
	case metrics.JobTransition:
		s.jobTransitions.WithLabelValues(tags["job_kind"], tags["transition"], tags["result"], tags["error_class"]).Add(v)
	case metrics.RecipientSend:
		s.recipientSends.WithLabelValues(tags["job_kind"], tags["result"], tags["error_class"]).Add(v)
	case metrics.PersistenceError:
		s.persistenceErrs.WithLabelValues(tags["op"]).Add(v)
	case metrics.WebhookDelivery:
		s.webhookDelivery.WithLabelValues(tags["result"]).Add(v)
	case metrics.RecoveryRequeued:
		s.recoveryRequeued.Add(v)
	}
}

// Gauge implements statsd.Sink.
func (s *Sink) Gauge(name string, value float64, _ map[string]string) {
	if name == metrics.RunnerActiveJobs {
		s.activeJobs.Set(value)
	}
}

// Timing implements statsd.Sink.
func (s *Sink) Timing(name string, value time.Duration, tags map[string]string) {
	switch name {
	case metrics.JobDuration:
		s.jobDuration.WithLabelValues(tags["job_kind"], tags["transition"]).Observe(value.Seconds())
	case metrics.RecipientSendDuration:
		s.sendDuration.WithLabelValues(tags["result"]).Observe(value.Seconds())
	}
}
