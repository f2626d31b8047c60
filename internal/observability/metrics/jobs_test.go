package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	name  string
	kind  string
	value float64
	tags  map[string]string
}

type captureSink struct{ samples []sample }

func (c *captureSink) Count(name string, value int64, tags map[string]string) {
	c.samples = append(c.samples, sample{name, "count", float64(value), tags})
}

func (c *captureSink) Gauge(name string, value float64, tags map[string]string) {
	c.samples = append(c.samples, sample{name, "gauge", value, tags})
}

func (c *captureSink) Timing(name string, value time.Duration, tags map[string]string) {
	c.samples = append(c.samples, sample{name, "timing", value.Seconds(), tags})
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

func TestEmitJobLifecycle(t *testing.T) {
	sink := &captureSink{}
	EmitJobLifecycle(sink, JobMetric{
		JobKind:    "custom",
		Transition: "running->error",
		Result:     ResultError,
		Duration:   2 * time.Second,
		Err:        errors.Join(boomError{}),
	})

	require.Len(t, sink.samples, 2)
	assert.Equal(t, JobTransition, sink.samples[0].name)
	assert.Equal(t, "custom", sink.samples[0].tags["job_kind"])
	assert.NotEmpty(t, sink.samples[0].tags["error_class"])
	assert.Equal(t, JobDuration, sink.samples[1].name)
	assert.InDelta(t, 2.0, sink.samples[1].value, 0.001)
}

func TestEmitJobLifecycle_NoErrorClassOnSuccess(t *testing.T) {
	sink := &captureSink{}
	EmitJobLifecycle(sink, JobMetric{JobKind: "template", Transition: "running->completed", Result: ResultSuccess, Err: boomError{}})
	require.Len(t, sink.samples, 1)
	assert.NotContains(t, sink.samples[0].tags, "error_class")
}

func TestEmitSend(t *testing.T) {
	sink := &captureSink{}
	EmitSend(sink, SendMetric{JobKind: "custom", Result: ResultError, Duration: time.Millisecond, Err: boomError{}})
	require.Len(t, sink.samples, 2)
	assert.Equal(t, RecipientSend, sink.samples[0].name)
	assert.Equal(t, "metrics_boomerror", sink.samples[0].tags["error_class"])
	assert.Equal(t, RecipientSendDuration, sink.samples[1].name)
}

func TestNilSinkIsSafe(t *testing.T) {
	EmitJobLifecycle(nil, JobMetric{})
	EmitSend(nil, SendMetric{})
	EmitPersistenceError(nil, "increment_counts")
}

func TestEmitPersistenceError(t *testing.T) {
	sink := &captureSink{}
	EmitPersistenceError(sink, "append_event")
	require.Len(t, sink.samples, 1)
	assert.Equal(t, map[string]string{"op": "append_event"}, sink.samples[0].tags)
}
