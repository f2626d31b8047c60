package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON_RetriesThenGivesUp(t *testing.T) {
	old := RetryBackoff
	RetryBackoff = time.Millisecond
	t.Cleanup(func() { RetryBackoff = old })

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := PostJSON(context.Background(), srv.Client(), "sink", srv.URL, []byte(`{}`), 2)
	require.ErrorContains(t, err, "sink 503")
	assert.Equal(t, int32(3), calls.Load())
}

func TestPostJSON_StopsOnCancel(t *testing.T) {
	old := RetryBackoff
	RetryBackoff = time.Hour
	t.Cleanup(func() { RetryBackoff = old })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := PostJSON(ctx, srv.Client(), "sink", srv.URL, []byte(`{}`), 5)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
