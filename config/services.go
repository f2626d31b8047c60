package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeRunner claims queued jobs and sends their messages.
	ServiceModeRunner ServiceMode = "runner"
	// ServiceModeRecovery requeues running jobs whose process stopped heartbeating.
	ServiceModeRecovery ServiceMode = "recovery"
	// ServiceModeMetrics serves the Prometheus endpoint.
	ServiceModeMetrics ServiceMode = "metrics"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeRunner,
		ServiceModeRecovery,
		ServiceModeMetrics,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeRunner, ServiceModeRecovery, ServiceModeMetrics:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: runner, recovery, metrics)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// RunnerConfig contains job runner configuration.
type RunnerConfig struct {
	// PollInterval is how often an idle runner looks for due jobs.
	PollInterval time.Duration `env:"RUNNER_POLL_INTERVAL" envDefault:"2s"`

	// Concurrency is the maximum number of jobs sent at once by this process.
	Concurrency int `env:"RUNNER_CONCURRENCY" envDefault:"4"`

	// PausePoll is how often pacing waits check for pause and stop requests.
	PausePoll time.Duration `env:"RUNNER_PAUSE_POLL" envDefault:"100ms"`

	// StatusRefresh throttles reads of the persisted job status during waits.
	StatusRefresh time.Duration `env:"RUNNER_STATUS_REFRESH" envDefault:"1s"`

	// HeartbeatEvery is how often a running job refreshes its heartbeat while waiting.
	HeartbeatEvery time.Duration `env:"RUNNER_HEARTBEAT_EVERY" envDefault:"30s"`
}

// Sanitize applies guardrails to runner configuration values.
func (r *RunnerConfig) Sanitize() {
	if r.PollInterval < 100*time.Millisecond {
		r.PollInterval = 100 * time.Millisecond
	}
	if r.Concurrency < 1 {
		r.Concurrency = 1
	}
	if r.PausePoll <= 0 || r.PausePoll > 200*time.Millisecond {
		r.PausePoll = 100 * time.Millisecond
	}
	if r.StatusRefresh < r.PausePoll {
		r.StatusRefresh = r.PausePoll
	}
	if r.HeartbeatEvery < time.Second {
		r.HeartbeatEvery = time.Second
	}
}

// RecoveryConfig contains stale job recovery configuration.
type RecoveryConfig struct {
	// Schedule is a cron expression or descriptor such as "@every 1m".
	Schedule string `env:"RECOVERY_SCHEDULE" envDefault:"@every 1m"`

	// StaleAfter is how old a running job's heartbeat may get before it is requeued.
	StaleAfter time.Duration `env:"RECOVERY_STALE_AFTER" envDefault:"5m"`

	// BatchSize is the maximum number of jobs requeued per statement.
	BatchSize int `env:"RECOVERY_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to recovery configuration values.
func (r *RecoveryConfig) Sanitize() {
	r.Schedule = strings.TrimSpace(r.Schedule)
	if r.Schedule == "" {
		r.Schedule = "@every 1m"
	}
	if r.StaleAfter < time.Minute {
		r.StaleAfter = time.Minute
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// StaleAfterFor returns the effective stale threshold for a runner configuration: a job
// must be allowed at least a few heartbeats before it is considered abandoned.
func (r *RecoveryConfig) StaleAfterFor(runner RunnerConfig) time.Duration {
	if floor := 3 * runner.HeartbeatEvery; r.StaleAfter < floor {
		return floor
	}
	return r.StaleAfter
}
