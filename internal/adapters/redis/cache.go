package redis

// Package redis provides Redis-backed local cache and login attempt limiter adapters.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fixdesk/fixdesk/internal/ports"
)

// Cache is a Redis-based ports.LocalCache. Keys are namespaced per device so
// several clients can share one Redis.
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ ports.LocalCache = (*Cache)(nil)

// CacheOptions configures a Cache.
type CacheOptions struct {
	Prefix string        // default "fixdesk:cache:"
	TTL    time.Duration // zero keeps entries until deleted
}

// NewCache creates a new Redis-based local cache.
func NewCache(client redis.UniversalClient, opts CacheOptions) *Cache {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "fixdesk:cache:"
	}
	return &Cache{client: client, prefix: prefix, ttl: opts.TTL}
}

func (c *Cache) Read(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (c *Cache) Write(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil // Nothing to delete
	}
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
