package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/bulkmailer/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	require.NoError(t, err)

	ev := client.buildEvent(notify.JobFailurePayload{
		JobID:       "job-123",
		JobKind:     "template",
		Tenant:      "mu1:s1",
		SenderEmail: "shop@example.com",
		Error:       "sender credentials missing",
		ErrorClass:  "errors_deliveryerror",
		Metadata:    map[string]string{"sent": "4", "error": "ignored"},
	})

	assert.Equal(t, "trigger", ev.EventAction)
	assert.Equal(t, "bulkmailer:job-123", ev.DedupKey)
	assert.Equal(t, notify.SeverityCritical, ev.Payload.Severity)
	assert.Equal(t, "bulkmailer", ev.Payload.Source)
	assert.Contains(t, ev.Payload.Summary, "job-123")
	assert.Contains(t, ev.Payload.Summary, "shop@example.com")
	assert.Equal(t, "4", ev.Payload.CustomDetails["sent"])
	assert.Equal(t, "sender credentials missing", ev.Payload.CustomDetails["error"], "metadata must not override built-in keys")
}

func TestSendJobFailure_PostsEvent(t *testing.T) {
	var got event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL})
	require.NoError(t, err)
	require.NoError(t, client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-9", Severity: "Warning"}))

	assert.Equal(t, "key", got.RoutingKey)
	assert.Equal(t, "warning", got.Payload.Severity)
}

func TestSendJobFailure_ReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid routing key", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL})
	require.NoError(t, err)
	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-9"})
	require.ErrorContains(t, err, "invalid routing key")
}
