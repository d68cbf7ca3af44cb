package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"fixdesk"`
	Password string `env:"PASSWORD" envDefault:"fixdesk"`
	Name     string `env:"NAME"     envDefault:"fixdesk"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // 'require' outside local dev
	// RunMigrationsOnStart applies pending migrations when the client connects.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"false"`
}

// DSN renders the connection URL; credentials are escaped.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig locates the Redis deployment shared by a fleet of clients.
// URL takes a redis:// or rediss:// URL or a bare host:port. Addrs lists
// cluster nodes, or sentinels when MasterName is set.
type RedisConfig struct {
	URL        string   `env:"URL"         envDefault:"localhost:6379"`
	Addrs      []string `env:"ADDRS"`
	MasterName string   `env:"MASTER_NAME"`
	Username   string   `env:"USERNAME"`
	Password   string   `env:"PASSWORD"`
	DB         int      `env:"DB"          envDefault:"0"`
}

// CacheBackend selects where the persisted session lives.
type CacheBackend string

const (
	CacheBackendFile  CacheBackend = "file"
	CacheBackendRedis CacheBackend = "redis"
)

// LocalCacheConfig controls the local persistent cache.
type LocalCacheConfig struct {
	Backend CacheBackend `env:"LOCAL_CACHE_BACKEND" envDefault:"file"`
	// Dir is the file backend directory; empty means the user cache dir.
	Dir string `env:"LOCAL_CACHE_DIR"`
	// Prefix namespaces Redis keys, typically per device.
	Prefix string `env:"LOCAL_CACHE_PREFIX" envDefault:"fixdesk:cache:"`
	// TTL expires Redis entries; zero keeps them until logout.
	TTL time.Duration `env:"LOCAL_CACHE_TTL" envDefault:"0s"`
	// Key enables encryption at rest: 64 hex characters, or any passphrase (hashed).
	Key string `env:"LOCAL_CACHE_KEY"`
}

// Sanitize falls back to the file backend for unknown values.
func (c *LocalCacheConfig) Sanitize() {
	c.Backend = CacheBackend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	if c.Backend != CacheBackendRedis {
		c.Backend = CacheBackendFile
	}
	c.Dir = strings.TrimSpace(c.Dir)
	if c.TTL < 0 {
		c.TTL = 0
	}
}
