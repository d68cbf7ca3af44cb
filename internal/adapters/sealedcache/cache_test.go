package sealedcache

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fakes "github.com/fixdesk/fixdesk/internal/mocks/auth"
	"github.com/fixdesk/fixdesk/internal/ports"
)

func testKey(b byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = b
	}
	return k
}

func TestCache_RoundTrip(t *testing.T) {
	inner := fakes.NewMemoryCache()
	c, err := New(inner, testKey(1))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Write(ctx, "userLogin", []byte(`{"email":"ann@example.com"}`)))

	stored, err := inner.Read(ctx, "userLogin")
	require.NoError(t, err)
	assert.NotContains(t, string(stored), "ann@example.com")
	assert.True(t, strings.HasPrefix(string(stored), "v1:"))

	got, err := c.Read(ctx, "userLogin")
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"ann@example.com"}`, string(got))

	require.NoError(t, c.Delete(ctx, "userLogin"))
	_, err = c.Read(ctx, "userLogin")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestCache_RejectsForeignEntries(t *testing.T) {
	inner := fakes.NewMemoryCache()
	ctx := context.Background()
	a, err := New(inner, testKey(1))
	require.NoError(t, err)
	b, err := New(inner, testKey(2))
	require.NoError(t, err)

	require.NoError(t, a.Write(ctx, "userLogin", []byte("secret")))
	_, err = b.Read(ctx, "userLogin")
	assert.ErrorIs(t, err, ErrUnsealed)

	require.NoError(t, inner.Write(ctx, "plain", []byte(`{"email":"x"}`)))
	_, err = a.Read(ctx, "plain")
	assert.ErrorIs(t, err, ErrUnsealed)

	// A sealed value copied under another key does not open.
	raw, err := inner.Read(ctx, "userLogin")
	require.NoError(t, err)
	require.NoError(t, inner.Write(ctx, "other", raw))
	_, err = a.Read(ctx, "other")
	assert.ErrorIs(t, err, ErrUnsealed)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, testKey(1))
	require.Error(t, err)
	_, err = New(fakes.NewMemoryCache(), []byte("short"))
	require.Error(t, err)
}

func TestKeyFromString(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	assert.Equal(t, testKey(0xab), KeyFromString(hexKey))

	k := KeyFromString("correct horse battery staple")
	assert.Len(t, k, 32)
	assert.Equal(t, k, KeyFromString("correct horse battery staple"))
}
