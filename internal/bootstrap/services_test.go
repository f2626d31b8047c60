package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/bulkmailer/config"
	"github.com/target/bulkmailer/internal/adapters/transport"
	"github.com/target/bulkmailer/internal/data"
	"github.com/target/bulkmailer/internal/observability/metrics"
	"github.com/target/bulkmailer/internal/testutil"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{name: "no services enabled", want: 0},
		{name: "runner only", modes: []config.ServiceMode{config.ServiceModeRunner}, want: 1},
		{name: "all services enabled", modes: config.ValidServiceModes(), want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
			if got := errorChannelBufferSize(enabled); got != tt.want+1 {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want+1)
			}
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	assert.Empty(t, GetEnabledServices(nil))
	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
	assert.Equal(t, []string{"metrics", "recovery", "runner"},
		GetEnabledServices(&config.AppConfig{Services: "runner,metrics,recovery"}))

	require.Error(t, ValidateServiceConfig(nil))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: ""}))
	require.NoError(t, ValidateServiceConfig(&config.AppConfig{Services: "runner"}))
}

func TestLaunchBackground(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	errCh := make(chan error, 2)
	deps := &serviceStartupDeps{
		ctx:             context.Background(),
		logger:          logger,
		enabledServices: map[config.ServiceMode]bool{config.ServiceModeRunner: true},
		errCh:           errCh,
	}

	disabled := launchBackground(deps.ctx, deps, backgroundService{
		mode:  config.ServiceModeRecovery,
		name:  "recovery",
		start: func(context.Context) error { return nil },
	})
	assert.Nil(t, disabled)

	done := launchBackground(deps.ctx, deps, backgroundService{
		mode:  config.ServiceModeRunner,
		name:  "job runner",
		start: func(context.Context) error { return errors.New("boom") },
	})
	require.NotNil(t, done)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background service did not finish")
	}
	err := <-errCh
	require.ErrorContains(t, err, "job runner failed: boom")
}

func TestBuildObservability_PrometheusAlwaysOn(t *testing.T) {
	obs := buildObservability(slog.New(slog.DiscardHandler), config.ObservabilityConfig{})
	require.NotNil(t, obs.MetricsSink)
	require.NotNil(t, obs.Registry)
	assert.Nil(t, obs.Statsd)
	assert.False(t, obs.FailureNotifier.Enabled())

	obs.MetricsSink.Gauge(metrics.RunnerActiveJobs, 3, nil)
	families, err := obs.Registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "bulkmailer_runner_active_jobs" {
			found = true
			assert.InDelta(t, 3, f.GetMetric()[0].GetGauge().GetValue(), 0)
		}
	}
	assert.True(t, found)
}

func TestBuildTransports(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	f, err := buildTransports(config.DeliveryConfig{Transport: config.TransportLog}, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &transport.LogFactory{}, f)

	f, err = buildTransports(config.DeliveryConfig{Transport: config.TransportLog, RatePerSecond: 5, RateBurst: 1}, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &transport.RateLimited{}, f)

	_, err = buildTransports(config.DeliveryConfig{Transport: config.TransportGmail}, nil, logger)
	require.Error(t, err)

	f, err = buildTransports(config.DeliveryConfig{Transport: config.TransportGmail}, data.NewSenderRepo(nil, nil, nil), logger)
	require.NoError(t, err)
	assert.IsType(t, &transport.GmailFactory{}, f)
}

func TestNewServices_Integration(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	db := testutil.SetupTestDB(t)
	cfg := &config.AppConfig{Services: "runner"}
	cfg.Delivery.Transport = config.TransportLog
	cfg.Delivery.AssetsRoot = t.TempDir()
	cfg.Sanitize()

	svcs, err := NewServices(&ServiceDeps{Config: cfg, DB: db, Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)
	require.NotNil(t, svcs.Jobs)
	require.NotNil(t, svcs.Scheduler)
	require.NotNil(t, svcs.JobRepo)
	require.NotNil(t, svcs.Webhooks)

	_, err = NewServices(&ServiceDeps{Config: cfg})
	require.Error(t, err)
}

func TestCreateEncryptor(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	assert.Nil(t, CreateEncryptor("", logger))

	enc := CreateEncryptor("a passphrase", logger)
	require.NotNil(t, enc)
	sealed, err := enc.Encrypt([]byte(`{"token":"t"}`), []byte("m:s|a@example.com"))
	require.NoError(t, err)
	opened, err := enc.Decrypt(sealed, []byte("m:s|a@example.com"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"t"}`, string(opened))
}
