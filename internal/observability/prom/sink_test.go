package prom

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/bulkmailer/internal/observability/metrics"
)

func TestSink_MapsKnownMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewSink(reg, nil)

	metrics.EmitSend(sink, metrics.SendMetric{JobKind: "custom", Result: metrics.ResultSuccess, Duration: 20 * time.Millisecond})
	metrics.EmitSend(sink, metrics.SendMetric{JobKind: "custom", Result: metrics.ResultSuccess})
	metrics.EmitJobLifecycle(sink, metrics.JobMetric{JobKind: "custom", Transition: "running->completed", Result: metrics.ResultSuccess, Duration: time.Minute})
	metrics.EmitPersistenceError(sink, "increment_counts")
	sink.Gauge(metrics.RunnerActiveJobs, 3, nil)
	sink.Count(metrics.RecoveryRequeued, 2, nil)
	sink.Count("unknown.metric", 1, nil)

	assert.InDelta(t, 2, testutil.ToFloat64(sink.recipientSends.WithLabelValues("custom", "success", "")), 0.0001)
	assert.InDelta(t, 1, testutil.ToFloat64(sink.jobTransitions.WithLabelValues("custom", "running->completed", "success", "")), 0.0001)
	assert.InDelta(t, 1, testutil.ToFloat64(sink.persistenceErrs.WithLabelValues("increment_counts")), 0.0001)
	assert.InDelta(t, 3, testutil.ToFloat64(sink.activeJobs), 0.0001)
	assert.InDelta(t, 2, testutil.ToFloat64(sink.recoveryRequeued), 0.0001)
	assert.Equal(t, 1, testutil.CollectAndCount(sink.sendDuration))
}

func TestNewSink_DuplicateRegistrationDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewSink(reg, nil)
	second := NewSink(reg, nil)
	second.Count(metrics.WebhookDelivery, 1, map[string]string{"result": "success"})
}

func TestServer_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewSink(reg, nil)
	sink.Gauge(metrics.RunnerActiveJobs, 1, nil)

	srv := NewServer(ServerOptions{Addr: ":0", Gatherer: reg})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "bulkmailer_runner_active_jobs 1"))
}
