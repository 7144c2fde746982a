package redis

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

const waitPollInterval = 50 * time.Millisecond

// Limit is a request budget per sliding window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimit applies to keys without a configured limit.
var DefaultLimit = Limit{Requests: 1, Window: time.Second}

// RateLimiter implements domain.RateLimiter as a sliding window over a
// Redis sorted set, so every process sharing the API key shares the budget.
type RateLimiter struct {
	c             *Client
	slidingWindow *redis.Script

	mu     sync.RWMutex
	limits map[string]Limit
}

// NewRateLimiter creates a RateLimiter backed by c.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		c:             c,
		slidingWindow: redis.NewScript(slidingWindowLua),
		limits:        make(map[string]Limit),
	}
}

// SetLimit configures the budget Wait applies to key.
func (rl *RateLimiter) SetLimit(key string, l Limit) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limits[key] = l
}

func (rl *RateLimiter) limitFor(key string) Limit {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if l, ok := rl.limits[key]; ok && l.Requests > 0 && l.Window > 0 {
		return l
	}
	return DefaultLimit
}

// Allow reports whether one more request for key fits in the window, and
// counts it if so.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	result, err := rl.slidingWindow.Run(
		ctx,
		rl.c.Underlying(),
		[]string{rl.c.key("ratelimit", key)},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}
	return result[0] == 1, nil
}

// Wait blocks until key's configured limit admits one more request.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	l := rl.limitFor(key)
	for {
		allowed, err := rl.Allow(ctx, key, l.Requests, l.Window)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
