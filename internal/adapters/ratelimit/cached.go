package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fixdesk/fixdesk/internal/ports"
)

// StateKey is the cache entry holding bucket state for every e-mail.
const StateKey = "loginAttempts"

type bucketState struct {
	Tokens float64   `json:"tokens"`
	At     time.Time `json:"at"`
}

// CachedLimiter keeps token bucket state in a LocalCache so that the budget
// carries over between short-lived processes sharing the cache.
// Concurrent processes may race on the entry; the last writer wins.
type CachedLimiter struct {
	mu    sync.Mutex
	cfg   Config
	cache ports.LocalCache
	now   func() time.Time
}

var _ ports.AttemptLimiter = (*CachedLimiter)(nil)

// NewCached creates a limiter persisting its buckets in cache.
func NewCached(cache ports.LocalCache, cfg Config) *CachedLimiter {
	cfg = New(cfg).cfg
	return &CachedLimiter{cfg: cfg, cache: cache, now: time.Now}
}

// Allow consumes a token for key and saves the remaining budget.
func (l *CachedLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = strings.ToLower(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	states, err := l.load(ctx)
	if err != nil {
		return false, err
	}
	lim := l.restore(states[key])
	ok := lim.AllowN(now, 1)
	states[key] = bucketState{Tokens: lim.TokensAt(now), At: now}

	for k, st := range states {
		if now.Sub(st.At) > l.cfg.IdleTTL {
			delete(states, k)
		}
	}
	raw, err := json.Marshal(states)
	if err != nil {
		return false, fmt.Errorf("encode login attempts: %w", err)
	}
	if err := l.cache.Write(ctx, StateKey, raw); err != nil {
		return false, fmt.Errorf("save login attempts: %w", err)
	}
	return ok, nil
}

// load treats a missing or corrupt entry as a fresh budget.
func (l *CachedLimiter) load(ctx context.Context) (map[string]bucketState, error) {
	states := make(map[string]bucketState)
	raw, err := l.cache.Read(ctx, StateKey)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return states, nil
	case err != nil:
		return nil, fmt.Errorf("load login attempts: %w", err)
	}
	if json.Unmarshal(raw, &states) != nil {
		return make(map[string]bucketState), nil
	}
	return states, nil
}

// restore rebuilds a limiter holding st.Tokens at st.At. Fractional tokens are
// rounded down.
func (l *CachedLimiter) restore(st bucketState) *rate.Limiter {
	lim := rate.NewLimiter(l.cfg.Rate, l.cfg.Burst)
	if st.At.IsZero() {
		return lim
	}
	spent := int(math.Ceil(float64(l.cfg.Burst) - st.Tokens))
	if spent > l.cfg.Burst {
		spent = l.cfg.Burst
	}
	if spent > 0 {
		lim.AllowN(st.At, spent)
	}
	return lim
}
