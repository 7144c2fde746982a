package domain

import (
	"context"
	"time"
)

// CacheStore persists one opaque entry per name. Load returns ErrNotFound
// when nothing is stored.
type CacheStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	// Acquire takes the lock named key and keeps it alive until unlock is
	// called. lost is closed when another holder took the lock over or no
	// refresh succeeded for a whole ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), lost <-chan struct{}, err error)
}
