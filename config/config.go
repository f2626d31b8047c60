package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and cache configuration
//   - services.go: Service modes, runner and recovery configuration
//   - delivery.go: Transport, webhook and asset configuration
//   - observability.go: Logging, metrics and failure notifications
type AppConfig struct {
	// IsDev relaxes production guardrails (plaintext sender tokens, log transport).
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// SecretsEncryptionKey seals stored sender tokens. Optional for development.
	SecretsEncryptionKey string `env:"SECRETS_ENCRYPTION_KEY"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"runner,recovery"`

	Runner   RunnerConfig
	Recovery RecoveryConfig
	Delivery DeliveryConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Cache.Sanitize()
	c.Runner.Sanitize()
	c.Recovery.Sanitize()
	c.Delivery.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode falls back to APP_ENV when DEV is unset.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsRunnerEnabled returns true if the job runner service is enabled.
func (c *AppConfig) IsRunnerEnabled() bool {
	return c.isEnabled(ServiceModeRunner)
}

// IsRecoveryEnabled returns true if the stale job recovery service is enabled.
func (c *AppConfig) IsRecoveryEnabled() bool {
	return c.isEnabled(ServiceModeRecovery)
}

// IsMetricsEnabled returns true if the Prometheus metrics server is enabled.
func (c *AppConfig) IsMetricsEnabled() bool {
	return c.isEnabled(ServiceModeMetrics)
}

func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
