package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixdesk/fixdesk/internal/ports"
	"github.com/fixdesk/fixdesk/internal/testutil"
)

func TestCache_WriteReadDelete(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	cache := NewCache(client, CacheOptions{})
	ctx := context.Background()

	_, err := cache.Read(ctx, "userLogin")
	require.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, cache.Write(ctx, "userLogin", []byte(`{"email":"ann@example.com"}`)))
	got, err := cache.Read(ctx, "userLogin")
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"ann@example.com"}`, string(got))

	raw, err := client.Get(ctx, "fixdesk:cache:userLogin").Result()
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	require.NoError(t, cache.Delete(ctx, "userLogin"))
	require.NoError(t, cache.Delete(ctx, "userLogin"))
	_, err = cache.Read(ctx, "userLogin")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestCache_TTL(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	cache := NewCache(client, CacheOptions{Prefix: "dev1:", TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, cache.Write(ctx, "userLogin", []byte("x")))
	ttl, err := client.TTL(ctx, "dev1:userLogin").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestCache_EmptyKey(t *testing.T) {
	cache := NewCache(nil, CacheOptions{})
	ctx := context.Background()

	_, err := cache.Read(ctx, "")
	require.Error(t, err)
	require.Error(t, cache.Write(ctx, "", nil))
	require.NoError(t, cache.Delete(ctx, ""))
}

func TestAttemptLimiter_Window(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	lim := NewAttemptLimiter(client, AttemptLimiterOptions{MaxAttempts: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := lim.Allow(ctx, "Ann@example.com")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := lim.Allow(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = lim.Allow(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := client.TTL(ctx, "fixdesk:attempts:ann@example.com").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, lim.Reset(ctx, "ann@example.com"))
	ok, err = lim.Allow(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
}
