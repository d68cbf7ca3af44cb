package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fixdesk/fixdesk/internal/ports"
)

// AttemptLimiter counts login attempts per e-mail in fixed windows shared by
// every client pointed at the same Redis.
type AttemptLimiter struct {
	client redis.UniversalClient
	prefix string
	max    int64
	window time.Duration
}

var _ ports.AttemptLimiter = (*AttemptLimiter)(nil)

// AttemptLimiterOptions configures an AttemptLimiter.
type AttemptLimiterOptions struct {
	Prefix      string        // default "fixdesk:attempts:"
	MaxAttempts int           // per window, default 5
	Window      time.Duration // default 1m
}

// NewAttemptLimiter creates a Redis-backed attempt limiter.
func NewAttemptLimiter(client redis.UniversalClient, opts AttemptLimiterOptions) *AttemptLimiter {
	if opts.Prefix == "" {
		opts.Prefix = "fixdesk:attempts:"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	return &AttemptLimiter{
		client: client,
		prefix: opts.Prefix,
		max:    int64(opts.MaxAttempts),
		window: opts.Window,
	}
}

// Allow increments the counter for key and reports whether it is still within the window budget.
// The expiry is set only when the counter is created so the window does not slide.
func (l *AttemptLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}
	k := l.prefix + strings.ToLower(key)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis incr: %w", err)
	}
	return incr.Val() <= l.max, nil
}

// Reset clears the counter for key, e.g. after a successful login.
func (l *AttemptLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+strings.ToLower(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
