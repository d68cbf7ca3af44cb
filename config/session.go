package config

import (
	"strings"
	"time"
)

// LimiterBackend selects how login attempts are throttled.
type LimiterBackend string

const (
	LimiterOff    LimiterBackend = "off"
	LimiterMemory LimiterBackend = "memory"
	// LimiterCache keeps token buckets in the local cache so separate CLI runs
	// share one budget. LimiterMemory only helps long-lived embedders.
	LimiterCache  LimiterBackend = "cache"
	LimiterRedis  LimiterBackend = "redis"
)

// SessionConfig controls the session store.
type SessionConfig struct {
	RemoteTimeout time.Duration `env:"SESSION_REMOTE_TIMEOUT" envDefault:"10s"`
	CacheTimeout  time.Duration `env:"SESSION_CACHE_TIMEOUT"  envDefault:"2s"`
	// RejectConcurrent fails overlapping Login/Logout calls with busy instead of queueing them.
	RejectConcurrent bool `env:"SESSION_REJECT_CONCURRENT" envDefault:"false"`

	Limiter LimiterBackend `env:"LOGIN_LIMITER"        envDefault:"cache"`
	// LoginInterval is the token refill interval of the cache and memory limiters.
	LoginInterval time.Duration `env:"LOGIN_INTERVAL"       envDefault:"10s"`
	LoginBurst    int           `env:"LOGIN_BURST"          envDefault:"5"`
	LoginWindow   time.Duration `env:"LOGIN_WINDOW"         envDefault:"1m"`
	LoginMax      int           `env:"LOGIN_MAX_ATTEMPTS"   envDefault:"5"`
}

// Sanitize applies guardrails to session configuration values.
func (c *SessionConfig) Sanitize() {
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = 10 * time.Second
	}
	if c.CacheTimeout <= 0 {
		c.CacheTimeout = 2 * time.Second
	}
	switch LimiterBackend(strings.ToLower(string(c.Limiter))) {
	case LimiterOff, LimiterRedis, LimiterMemory:
		c.Limiter = LimiterBackend(strings.ToLower(string(c.Limiter)))
	default:
		c.Limiter = LimiterCache
	}
	if c.LoginInterval <= 0 {
		c.LoginInterval = 10 * time.Second
	}
	if c.LoginBurst < 1 {
		c.LoginBurst = 1
	}
	if c.LoginWindow <= 0 {
		c.LoginWindow = time.Minute
	}
	if c.LoginMax < 1 {
		c.LoginMax = 1
	}
}
