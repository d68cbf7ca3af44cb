// Package ratelimit throttles login attempts with per-key token buckets held
// in process or in the local cache.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fixdesk/fixdesk/internal/ports"
)

// Config controls the per-key token bucket.
type Config struct {
	Rate  rate.Limit // attempts per second, default one every 10s
	Burst int        // default 5
	// IdleTTL drops buckets not used for this long, default 10m.
	IdleTTL time.Duration
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// KeyedLimiter keeps one rate.Limiter per key.
type KeyedLimiter struct {
	mu      sync.Mutex
	cfg     Config
	buckets map[string]*bucket
	now     func() time.Time
}

var _ ports.AttemptLimiter = (*KeyedLimiter)(nil)

// New creates a keyed limiter.
func New(cfg Config) *KeyedLimiter {
	if cfg.Rate <= 0 {
		cfg.Rate = rate.Every(10 * time.Second)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &KeyedLimiter{cfg: cfg, buckets: make(map[string]*bucket), now: time.Now}
}

// Allow consumes a token for key.
func (l *KeyedLimiter) Allow(_ context.Context, key string) (bool, error) {
	key = strings.ToLower(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.cfg.Rate, l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1), nil
}

func (l *KeyedLimiter) sweepLocked(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.cfg.IdleTTL {
			delete(l.buckets, k)
		}
	}
}
