package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	fakes "github.com/fixdesk/fixdesk/internal/mocks/auth"
)

func TestKeyedLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := New(Config{Rate: rate.Every(time.Second), Burst: 2})
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "ann@example.com")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "ANN@example.com")
	assert.False(t, ok, "keys are case-insensitive")

	ok, _ = l.Allow(ctx, "bob@example.com")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "ann@example.com")
	assert.True(t, ok)
}

func TestKeyedLimiter_SweepsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := New(Config{IdleTTL: time.Minute})
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "ann@example.com")
	now = now.Add(2 * time.Minute)
	_, _ = l.Allow(context.Background(), "bob@example.com")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.buckets, 1)
	assert.Contains(t, l.buckets, "bob@example.com")
}

func TestCachedLimiter_BudgetSurvivesNewInstance(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cache := fakes.NewMemoryCache()
	ctx := context.Background()
	cfg := Config{Rate: rate.Every(10 * time.Second), Burst: 2}

	attempt := func(key string) bool {
		l := NewCached(cache, cfg)
		l.now = func() time.Time { return now }
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, attempt("ann@example.com"))
	assert.True(t, attempt("ann@example.com"))
	assert.False(t, attempt("ANN@example.com"), "budget is shared across instances")
	assert.True(t, attempt("bob@example.com"))

	now = now.Add(10 * time.Second)
	assert.True(t, attempt("ann@example.com"))
	assert.False(t, attempt("ann@example.com"))
}

func TestCachedLimiter_CorruptStateStartsFresh(t *testing.T) {
	cache := fakes.NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, cache.Write(ctx, StateKey, []byte("{broken")))

	l := NewCached(cache, Config{Burst: 1})
	ok, err := l.Allow(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	raw, err := cache.Read(ctx, StateKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ann@example.com")
}

func TestCachedLimiter_DropsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cache := fakes.NewMemoryCache()
	l := NewCached(cache, Config{IdleTTL: time.Minute})
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = l.Allow(ctx, "ann@example.com")
	now = now.Add(2 * time.Minute)
	_, _ = l.Allow(ctx, "bob@example.com")

	raw, err := cache.Read(ctx, StateKey)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "ann@example.com")
	assert.Contains(t, string(raw), "bob@example.com")
}
