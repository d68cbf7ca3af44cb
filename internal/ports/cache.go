package ports

import "context"

// LocalCache is a small key-value store that survives process restarts.
type LocalCache interface {
	// Read returns the stored bytes or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// AttemptLimiter throttles login attempts per e-mail.
type AttemptLimiter interface {
	// Allow reports whether another attempt for key may proceed now.
	Allow(ctx context.Context, key string) (bool, error)
}
