package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// unlockLua deletes the lock only when it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// refreshLua extends the TTL only when the caller still holds the lock.
const refreshLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager implements domain.LockManager with SET NX and a token-checked
// unlock. A held lock is refreshed at a third of its TTL until released.
type LockManager struct {
	c         *Client
	unlockSc  *redis.Script
	refreshSc *redis.Script
	logger    *slog.Logger
}

// NewLockManager creates a LockManager backed by c.
func NewLockManager(c *Client, logger *slog.Logger) *LockManager {
	return &LockManager{
		c:         c,
		unlockSc:  redis.NewScript(unlockLua),
		refreshSc: redis.NewScript(refreshLua),
		logger:    logger.With(slog.String("component", "redis_lock")),
	}
}

// Acquire takes the lock named key. It returns domain.ErrLockHeld when
// another process holds it. The returned unlock is safe to call more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), <-chan struct{}, error) {
	if ttl <= 0 {
		return nil, nil, fmt.Errorf("redis: lock %s: ttl must be positive", key)
	}
	token := uuid.New().String()
	lk := lm.c.key("lock", key)
	rdb := lm.c.Underlying()

	ok, err := rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
	}

	refresh := func(ctx context.Context) (bool, error) {
		n, err := lm.refreshSc.Run(ctx, rdb, []string{lk}, token, ttl.Milliseconds()).Int()
		return n == 1, err
	}
	stop := make(chan struct{})
	lost := make(chan struct{})
	go keepAlive(ttl, refresh, stop, lost, lm.logger.With(slog.String("lock", key)))

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			close(stop)
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lm.unlockSc.Run(unlockCtx, rdb, []string{lk}, token).Err(); err != nil {
				lm.logger.Warn("unlock failed", slog.String("lock", key), slog.String("error", err.Error()))
			}
		})
	}
	return unlock, lost, nil
}

// keepAlive calls refresh every ttl/3 until stop is closed. It closes lost
// and returns when refresh reports the token gone, or when no refresh has
// succeeded for a whole ttl.
func keepAlive(ttl time.Duration, refresh func(context.Context) (bool, error), stop <-chan struct{}, lost chan<- struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	lastOK := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		rctx, cancel := context.WithTimeout(context.Background(), ttl/3)
		held, err := refresh(rctx)
		cancel()
		switch {
		case err != nil:
			logger.Warn("lock refresh failed", slog.String("error", err.Error()))
			if time.Since(lastOK) < ttl {
				continue
			}
			logger.Error("lock expired without a successful refresh")
		case !held:
			logger.Error("lock taken over by another holder")
		default:
			lastOK = time.Now()
			continue
		}
		close(lost)
		return
	}
}

var _ domain.LockManager = (*LockManager)(nil)
