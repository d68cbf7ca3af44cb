// Package sealedcache encrypts local cache entries with AES-256-GCM so the cached
// profile (phone, address) is not readable at rest.
package sealedcache

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/fixdesk/fixdesk/internal/ports"
)

// Versioned prefix to allow future key/algorithm rotations.
var sealedPrefixV1 = []byte("v1:")

// ErrUnsealed is returned when an entry was not written by this cache or
// fails authentication (wrong key or tampering).
var ErrUnsealed = errors.New("cache entry is not sealed with the configured key")

// Cache wraps another ports.LocalCache and seals every value before it is stored.
type Cache struct {
	inner ports.LocalCache
	aead  cipher.AEAD
}

var _ ports.LocalCache = (*Cache)(nil)

// New wraps inner with AES-256-GCM. key must be 32 bytes.
func New(inner ports.LocalCache, key []byte) (*Cache, error) {
	if inner == nil {
		return nil, errors.New("sealed cache: inner cache is required")
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("sealed cache: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("sealed cache: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("sealed cache: %w", err)
	}
	return &Cache{inner: inner, aead: aead}, nil
}

// KeyFromString turns a configured secret into a 32-byte key. A 64-character hex
// string is used as is; anything else is hashed with SHA-256.
func KeyFromString(secret string) []byte {
	if decoded, err := hex.DecodeString(secret); err == nil && len(decoded) == 32 {
		return decoded
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Read returns the opened value. ports.ErrNotFound passes through.
func (c *Cache) Read(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.inner.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	pt, err := c.open(key, raw)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return pt, nil
}

// Write seals value with a fresh nonce and stores it.
func (c *Cache) Write(ctx context.Context, key string, value []byte) error {
	sealed, err := c.seal(key, value)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return c.inner.Write(ctx, key, sealed)
}

// Delete removes the entry from the inner cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, key)
}

// The entry key is bound as additional data so a sealed value cannot be moved to another key.
func (c *Cache) seal(key string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := make([]byte, 0, len(sealedPrefixV1)+len(nonce)+len(plaintext)+c.aead.Overhead())
	out = append(out, sealedPrefixV1...)
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, plaintext, []byte(key)), nil
}

func (c *Cache) open(key string, raw []byte) ([]byte, error) {
	if !bytes.HasPrefix(raw, sealedPrefixV1) {
		return nil, ErrUnsealed
	}
	data := raw[len(sealedPrefixV1):]
	n := c.aead.NonceSize()
	if len(data) < n {
		return nil, ErrUnsealed
	}
	pt, err := c.aead.Open(nil, data[:n], data[n:], []byte(key))
	if err != nil {
		return nil, ErrUnsealed
	}
	return pt, nil
}
