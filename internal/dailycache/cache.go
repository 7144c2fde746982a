// Package dailycache memoizes expensive remote lookups for one UTC
// calendar day. An entry is honored only when its stored digest equals the
// digest of the current call's arguments and today's UTC date; anything
// else is a miss that recomputes and overwrites the entry.
package dailycache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

const dayLayout = "2006-01-02"

// entry is the persisted form of a cached call.
type entry struct {
	Digest string          `json:"digest"`
	Body   json.RawMessage `json:"body"`
}

// Observer is told about every lookup outcome.
type Observer func(name string, hit bool)

// Cache binds a store to a clock.
type Cache struct {
	store    domain.CacheStore
	now      func() time.Time
	observer Observer
	logger   *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithObserver registers a hit/miss callback.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// New creates a Cache over store.
func New(store domain.CacheStore, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		now:    time.Now,
		logger: logger.With(slog.String("component", "dailycache")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Digest hashes the serialized arguments together with the UTC calendar
// day of at.
func Digest(args any, at time.Time) (string, error) {
	raw, err := sonic.ConfigStd.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("dailycache: encode args: %w", err)
	}
	sum := md5.Sum(append(append(raw, "||"...), at.UTC().Format(dayLayout)...))
	return hex.EncodeToString(sum[:]), nil
}

// Wrap returns fn memoized under name. The argument value is part of the
// digest, so calls with different arguments overwrite each other's entry.
func Wrap[A, T any](c *Cache, name string, fn func(context.Context, A) (T, error)) func(context.Context, A) (T, error) {
	return func(ctx context.Context, args A) (T, error) {
		digest, err := Digest(args, c.now())
		if err != nil {
			c.logger.Warn("uncacheable call",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
			return fn(ctx, args)
		}

		if v, err := lookup[T](ctx, c, name, digest); err == nil {
			c.observe(name, true)
			return v, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			c.logger.Info("daily cache miss",
				slog.String("name", name),
				slog.String("reason", err.Error()),
			)
		}
		c.observe(name, false)

		v, err := fn(ctx, args)
		if err != nil {
			return v, err
		}
		if err := store(ctx, c, name, digest, v); err != nil {
			c.logger.Warn("daily cache write failed",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
		}
		return v, nil
	}
}

func lookup[T any](ctx context.Context, c *Cache, name, digest string) (T, error) {
	var zero T
	raw, err := c.store.Load(ctx, name)
	if err != nil {
		return zero, err
	}
	var e entry
	if err := sonic.ConfigStd.Unmarshal(raw, &e); err != nil {
		return zero, fmt.Errorf("dailycache: decode entry %s: %w", name, err)
	}
	if e.Digest != digest {
		return zero, fmt.Errorf("dailycache: %s: %w", name, domain.ErrCacheMismatch)
	}
	var v T
	if err := sonic.ConfigStd.Unmarshal(e.Body, &v); err != nil {
		return zero, fmt.Errorf("dailycache: decode body %s: %w", name, err)
	}
	return v, nil
}

func store[T any](ctx context.Context, c *Cache, name, digest string, v T) error {
	body, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return fmt.Errorf("dailycache: encode body %s: %w", name, err)
	}
	raw, err := sonic.ConfigStd.Marshal(entry{Digest: digest, Body: body})
	if err != nil {
		return fmt.Errorf("dailycache: encode entry %s: %w", name, err)
	}
	return c.store.Save(ctx, name, raw)
}

func (c *Cache) observe(name string, hit bool) {
	if c.observer != nil {
		c.observer(name, hit)
	}
}
