package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPrefix(t *testing.T) {
	assert.Equal(t, "momobot:lock:trader", (&Client{prefix: "momobot"}).key("lock", "trader"))
	assert.Equal(t, "dailycache:iex_financials", (&Client{}).key("dailycache", "iex_financials"))
}

func TestRateLimiterLimitLookup(t *testing.T) {
	rl := NewRateLimiter(&Client{})
	rl.SetLimit("alpaca:rest", Limit{Requests: 200, Window: time.Minute})
	rl.SetLimit("broken", Limit{})

	assert.Equal(t, Limit{Requests: 200, Window: time.Minute}, rl.limitFor("alpaca:rest"))
	assert.Equal(t, DefaultLimit, rl.limitFor("polygon:rest"))
	assert.Equal(t, DefaultLimit, rl.limitFor("broken"))
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	assert.Contains(t, slidingWindowLua, "ZADD")
}

func TestDailyStoreDefaultTTL(t *testing.T) {
	assert.Equal(t, 48*time.Hour, NewDailyStore(&Client{}, 0).ttl)
	assert.Equal(t, time.Hour, NewDailyStore(&Client{}, time.Hour).ttl)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func runKeepAlive(ttl time.Duration, refresh func(context.Context) (bool, error)) (stop chan struct{}, lost chan struct{}) {
	stop = make(chan struct{})
	lost = make(chan struct{})
	go keepAlive(ttl, refresh, stop, lost, quietLogger())
	return stop, lost
}

func TestKeepAliveSignalsTakeover(t *testing.T) {
	_, lost := runKeepAlive(30*time.Millisecond, func(context.Context) (bool, error) { return false, nil })

	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("lost not closed after takeover")
	}
}

func TestKeepAliveSignalsExpiryAfterFailedRefreshes(t *testing.T) {
	var calls atomic.Int32
	_, lost := runKeepAlive(30*time.Millisecond, func(context.Context) (bool, error) {
		calls.Add(1)
		return false, errors.New("i/o timeout")
	})

	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("lost not closed after refreshes kept failing")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(2), "a single failed refresh is tolerated")
}

func TestKeepAliveHealthyUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop, lost := runKeepAlive(15*time.Millisecond, func(context.Context) (bool, error) {
		calls.Add(1)
		return true, nil
	})

	require.Eventually(t, func() bool { return calls.Load() >= 4 }, time.Second, time.Millisecond)
	close(stop)
	select {
	case <-lost:
		t.Fatal("healthy lock reported lost")
	case <-time.After(30 * time.Millisecond):
	}
}
