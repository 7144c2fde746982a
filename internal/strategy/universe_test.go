package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/marketdata"
)

type maskFunc struct {
	name string
	fn   func([]domain.Instrument) ([]bool, error)
}

func (m maskFunc) Name() string { return m.name }

func (m maskFunc) ComputeMask(_ context.Context, in []domain.Instrument) ([]bool, error) {
	return m.fn(in)
}

func universeBroker(now time.Time) *fakeBroker {
	b := newFakeBroker()
	add := func(sym string, close, volume float64, age time.Duration) {
		b.assets = append(b.assets, domain.Instrument{ID: "id-" + sym, Symbol: sym})
		b.daily[sym] = []domain.Bar{
			{Time: now.Add(-age - 24*time.Hour), Close: close, Volume: volume},
			{Time: now.Add(-age), Close: close, Volume: volume},
		}
	}
	day := 24 * time.Hour
	add("GOOD", 5.00, 400_000, day)
	add("PRICEY", 15.00, 400_000, day)
	add("STALE", 5.00, 400_000, 8*day)
	add("THIN", 5.00, 300_000, day)
	add("CHEAP", 1.99, 900_000, day)
	add("FLOOR", 2.00, 900_000, day)
	add("CEIL", 13.00, 900_000, day)
	add("FRIDAY", 12.99, 300_001, 3*day)
	b.assets = append(b.assets, domain.Instrument{ID: "id-NOBARS", Symbol: "NOBARS"})
	return b
}

func newUniverse(b *fakeBroker, now time.Time, batch int, filters ...domain.MaskFilter) *UniverseFilter {
	params := DefaultUniverseParams()
	params.BatchSize = batch
	f := NewUniverseFilter(b, marketdata.NewAssetFinder(b, testPolicy(), quietLogger()),
		params, testPolicy(), nyc, quietLogger(), filters...)
	f.now = fixedClock(now)
	return f
}

func symbolsOf(list []domain.Instrument) []string {
	out := make([]string, len(list))
	for i, in := range list {
		out[i] = in.Symbol
	}
	return out
}

func TestUniverseScenarios(t *testing.T) {
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, nyc)
	b := universeBroker(now.Add(-8 * time.Hour))

	for _, batch := range []int{200, 3, 1} {
		got, err := newUniverse(b, now, batch).Select(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"GOOD", "FLOOR", "FRIDAY"}, symbolsOf(got), "batch=%d", batch)
		assert.Equal(t, "id-GOOD", got[0].ID)
	}
}

func TestUniverseSkipsFailedBatch(t *testing.T) {
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, nyc)
	b := universeBroker(now.Add(-8 * time.Hour))
	b.failBar["PRICEY"] = true

	// Batches of two: [GOOD PRICEY] fails, the rest are scanned.
	got, err := newUniverse(b, now, 2).Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"FLOOR", "FRIDAY"}, symbolsOf(got))
}

func TestUniverseAppliesMaskFilters(t *testing.T) {
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, nyc)
	b := universeBroker(now.Add(-8 * time.Hour))

	onlyGood := maskFunc{name: "us_company", fn: func(in []domain.Instrument) ([]bool, error) {
		out := make([]bool, len(in))
		for i, x := range in {
			out[i] = x.Symbol != "FLOOR"
		}
		return out, nil
	}}
	broken := maskFunc{name: "financials", fn: func([]domain.Instrument) ([]bool, error) {
		return nil, errors.New("iex unavailable")
	}}

	got, err := newUniverse(b, now, 200, onlyGood, broken).Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"GOOD", "FRIDAY"}, symbolsOf(got))
}

func TestUniverseBarsEndBeforeToday(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, nyc)
	b := newFakeBroker()
	b.assets = []domain.Instrument{{ID: "1", Symbol: "TODAY"}}
	// Only today's bar passes the screen; it must not be considered.
	b.daily["TODAY"] = []domain.Bar{
		{Time: time.Date(2024, 3, 1, 0, 0, 0, 0, nyc), Close: 20, Volume: 400_000},
		{Time: time.Date(2024, 3, 4, 0, 0, 0, 0, nyc), Close: 5, Volume: 400_000},
	}

	got, err := newUniverse(b, now, 200).Select(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
