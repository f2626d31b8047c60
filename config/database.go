package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"bulkmailer"`
	Password string `env:"PASSWORD" envDefault:"bulkmailer"`
	Name     string `env:"NAME"     envDefault:"bulkmailer"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// ApplicationName is reported to Postgres so runner sessions show up in pg_stat_activity.
	ApplicationName string        `env:"APPLICATION_NAME" envDefault:"bulkmailer"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT"  envDefault:"5s"`
	// MaxOpenConns must cover one LISTEN connection plus the runner's concurrent jobs.
	MaxOpenConns int `env:"MAX_OPEN_CONNS" envDefault:"25"`
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheConfig controls the shared Redis cache of resolved template bodies.
type CacheConfig struct {
	// Enabled turns on the Redis second-level template cache. The in-process cache is always on.
	Enabled bool `env:"CACHE_ENABLED" envDefault:"false"`

	// TemplateTTL is the TTL for cached template bodies.
	TemplateTTL time.Duration `env:"CACHE_TEMPLATE_TTL" envDefault:"30m"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.TemplateTTL < time.Minute {
		c.TemplateTTL = time.Minute
	}
}
