package config

import (
	"os"
	"strings"
)

// AppConfig is the main client configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - identity.go: Identity provider configuration
//   - database.go: Database, Redis and local cache configuration
//   - session.go: Session store timeouts and login throttling
//   - observability.go: Logging and StatsD metrics
type AppConfig struct {
	// IsDev controls development mode behavior (dev identity provider, seeding).
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	Identity IdentityConfig

	// Database configuration
	Postgres   DBConfig    `envPrefix:"DB_"`
	Redis      RedisConfig `envPrefix:"REDIS_"`
	LocalCache LocalCacheConfig

	Session SessionConfig

	Log     LogConfig
	Metrics MetricsConfig `envPrefix:"STATSD_"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Identity.Sanitize()
	c.LocalCache.Sanitize()
	c.Session.Sanitize()
	c.Log.Sanitize()

	c.detectDevMode()
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c *AppConfig) NeedsRedis() bool {
	return c.LocalCache.Backend == CacheBackendRedis || c.Session.Limiter == LimiterRedis
}

// NeedsPostgres reports whether any configured component talks to Postgres.
// The document store always does.
func (c *AppConfig) NeedsPostgres() bool { return true }

// detectDevMode checks both DEV and APP_ENV environment variables.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}
