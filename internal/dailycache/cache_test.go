package dailycache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type companyArgs struct {
	Symbols []string `json:"symbols"`
	Detail  bool     `json:"detail"`
}

type company struct {
	Symbol  string `json:"symbol"`
	Country string `json:"country"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newCountingLookup() (*int, func(context.Context, companyArgs) (map[string]company, error)) {
	calls := 0
	return &calls, func(_ context.Context, a companyArgs) (map[string]company, error) {
		calls++
		out := make(map[string]company, len(a.Symbols))
		for _, s := range a.Symbols {
			out[s] = company{Symbol: s, Country: "us"}
		}
		return out, nil
	}
}

func TestWrapSameDaySameArgsHits(t *testing.T) {
	clk := &clock{t: time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)}
	var hits, misses int
	c := New(NewFileStore(t.TempDir()), testLogger(), WithClock(clk.now),
		WithObserver(func(_ string, hit bool) {
			if hit {
				hits++
			} else {
				misses++
			}
		}))
	calls, fn := newCountingLookup()
	cached := Wrap(c, "companies", fn)

	args := companyArgs{Symbols: []string{"AAPL", "F"}}
	first, err := cached(context.Background(), args)
	require.NoError(t, err)

	clk.t = clk.t.Add(8 * time.Hour) // 22:00 UTC, same calendar day
	second, err := cached(context.Background(), args)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestWrapArgumentChangeRecomputes(t *testing.T) {
	clk := &clock{t: time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)}
	c := New(NewFileStore(t.TempDir()), testLogger(), WithClock(clk.now))
	calls, fn := newCountingLookup()
	cached := Wrap(c, "companies", fn)

	_, err := cached(context.Background(), companyArgs{Symbols: []string{"AAPL"}})
	require.NoError(t, err)
	out, err := cached(context.Background(), companyArgs{Symbols: []string{"AAPL"}, Detail: true})
	require.NoError(t, err)

	assert.Equal(t, 2, *calls)
	assert.Contains(t, out, "AAPL")
}

func TestWrapDayChangeRecomputes(t *testing.T) {
	clk := &clock{t: time.Date(2024, 3, 4, 23, 59, 0, 0, time.UTC)}
	c := New(NewFileStore(t.TempDir()), testLogger(), WithClock(clk.now))
	calls, fn := newCountingLookup()
	cached := Wrap(c, "companies", fn)
	args := companyArgs{Symbols: []string{"AAPL"}}

	_, err := cached(context.Background(), args)
	require.NoError(t, err)
	clk.t = clk.t.Add(2 * time.Minute)
	_, err = cached(context.Background(), args)
	require.NoError(t, err)

	assert.Equal(t, 2, *calls)
}

func TestWrapCorruptEntryIsAMiss(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "companies.json"), []byte("{not json"), 0o644))

	c := New(NewFileStore(dir), testLogger())
	calls, fn := newCountingLookup()
	out, err := Wrap(c, "companies", fn)(context.Background(), companyArgs{Symbols: []string{"F"}})

	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, "us", out["F"].Country)

	// The corrupt file was overwritten with a valid entry.
	_, err = Wrap(c, "companies", fn)(context.Background(), companyArgs{Symbols: []string{"F"}})
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
}

func TestWrapErrorIsNotCached(t *testing.T) {
	c := New(NewFileStore(t.TempDir()), testLogger())
	boom := errors.New("upstream down")
	calls := 0
	cached := Wrap(c, "fin", func(context.Context, string) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 7, nil
	})

	_, err := cached(context.Background(), "x")
	require.ErrorIs(t, err, boom)
	v, err := cached(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestDigestDependsOnUTCDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	a, err := Digest([]string{"AAPL"}, time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	// 20:30 New York on March 3rd is 01:30 UTC on March 4th.
	b, err := Digest([]string{"AAPL"}, time.Date(2024, 3, 3, 20, 30, 0, 0, ny))
	require.NoError(t, err)
	c, err := Digest([]string{"AAPL"}, time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
