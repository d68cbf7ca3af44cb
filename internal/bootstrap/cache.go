package bootstrap

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/fixdesk/fixdesk/config"
	"github.com/fixdesk/fixdesk/internal/adapters/filecache"
	"github.com/fixdesk/fixdesk/internal/adapters/ratelimit"
	redisadapter "github.com/fixdesk/fixdesk/internal/adapters/redis"
	"github.com/fixdesk/fixdesk/internal/adapters/sealedcache"
	"github.com/fixdesk/fixdesk/internal/ports"
)

// NewLocalCache returns the configured local persistent cache, sealed when
// LOCAL_CACHE_KEY is set.
//
//nolint:ireturn // the backend is chosen at runtime.
func NewLocalCache(cfg config.LocalCacheConfig, client redis.UniversalClient) (ports.LocalCache, error) {
	base, err := newBaseCache(cfg, client)
	if err != nil || cfg.Key == "" {
		return base, err
	}
	sealed, err := sealedcache.New(base, sealedcache.KeyFromString(cfg.Key))
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

//nolint:ireturn // the backend is chosen at runtime.
func newBaseCache(cfg config.LocalCacheConfig, client redis.UniversalClient) (ports.LocalCache, error) {
	switch cfg.Backend {
	case config.CacheBackendRedis:
		if client == nil {
			return nil, errors.New("redis cache backend requires a redis client")
		}
		return redisadapter.NewCache(client, redisadapter.CacheOptions{Prefix: cfg.Prefix, TTL: cfg.TTL}), nil
	default:
		dir := cfg.Dir
		if dir == "" {
			d, err := filecache.DefaultDir()
			if err != nil {
				return nil, err
			}
			dir = d
		}
		c, err := filecache.New(dir)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// NewAttemptLimiter returns the configured login throttle, or nil when disabled.
// The cache backend stores its buckets in cache.
//
//nolint:ireturn // the backend is chosen at runtime.
func NewAttemptLimiter(
	cfg config.SessionConfig,
	cache ports.LocalCache,
	client redis.UniversalClient,
) (ports.AttemptLimiter, error) {
	switch cfg.Limiter {
	case config.LimiterOff:
		return nil, nil
	case config.LimiterRedis:
		if client == nil {
			return nil, errors.New("redis login limiter requires a redis client")
		}
		return redisadapter.NewAttemptLimiter(client, redisadapter.AttemptLimiterOptions{
			MaxAttempts: cfg.LoginMax,
			Window:      cfg.LoginWindow,
		}), nil
	case config.LimiterMemory:
		return ratelimit.New(bucketConfig(cfg)), nil
	default:
		if cache == nil {
			return nil, errors.New("cache login limiter requires a local cache")
		}
		return ratelimit.NewCached(cache, bucketConfig(cfg)), nil
	}
}

func bucketConfig(cfg config.SessionConfig) ratelimit.Config {
	return ratelimit.Config{
		Rate:  rate.Every(cfg.LoginInterval),
		Burst: cfg.LoginBurst,
	}
}
