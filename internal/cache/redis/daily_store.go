package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// DailyStore keeps daily-cache entries in Redis strings. Entries expire
// after ttl so stale days do not accumulate.
type DailyStore struct {
	c   *Client
	ttl time.Duration
}

// NewDailyStore creates a DailyStore. A ttl of zero keeps entries for 48 hours.
func NewDailyStore(c *Client, ttl time.Duration) *DailyStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &DailyStore{c: c, ttl: ttl}
}

// Load returns the entry stored under name.
func (s *DailyStore) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := s.c.Underlying().Get(ctx, s.c.key("dailycache", name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load %s: %w", name, err)
	}
	return data, nil
}

// Save overwrites the entry stored under name.
func (s *DailyStore) Save(ctx context.Context, name string, data []byte) error {
	if err := s.c.Underlying().Set(ctx, s.c.key("dailycache", name), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: save %s: %w", name, err)
	}
	return nil
}

var _ domain.CacheStore = (*DailyStore)(nil)
