package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// valleySeries falls into index k and rises after it.
func valleySeries(n, k int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i <= k {
			out[i] = 10 - 0.1*float64(i)
		} else {
			out[i] = out[k] + 0.05*float64(i-k)
		}
	}
	return out
}

func TestFindStopSingleValley(t *testing.T) {
	for n := 3; n <= 12; n++ {
		for k := 1; k < n-1; k++ {
			lows := valleySeries(n, k)
			stop, ok := FindStop(lows, 0.01)
			require.True(t, ok, "n=%d k=%d", n, k)
			assert.InDelta(t, lows[k]-0.01, stop, 1e-9, "n=%d k=%d", n, k)
		}
	}
}

func TestFindStopNoValley(t *testing.T) {
	cases := map[string][]float64{
		"rising":  {1, 2, 3, 4},
		"falling": {4, 3, 2, 1},
		"flat":    {2, 2, 2, 2},
		"short":   {3, 1},
		"empty":   nil,
		"peak":    {1, 3, 1},
	}
	for name, lows := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := FindStop(lows, 0.01)
			assert.False(t, ok)
		})
	}
}

func TestFindStopFlatBottomAndLastValleyWins(t *testing.T) {
	// Flat into index 2 then up counts as a valley.
	stop, ok := FindStop([]float64{5, 4, 4, 4.5}, 0.01)
	require.True(t, ok)
	assert.InDelta(t, 3.99, stop, 1e-9)

	stop, ok = FindStop([]float64{5, 3, 4, 4.2, 3.5, 3.8, 3.9}, 0.01)
	require.True(t, ok)
	assert.InDelta(t, 3.49, stop, 1e-9)
}

func TestStopDetectorIgnoresPreviousDay(t *testing.T) {
	b := newFakeBroker()
	yesterday := openPlus(-24 * 60)
	b.minute["AAA"] = []domain.Bar{
		{Time: yesterday, Low: 5},
		{Time: yesterday.Add(time.Minute), Low: 4},
		{Time: yesterday.Add(2 * time.Minute), Low: 4.5},
		{Time: openPlus(0), Low: 6},
		{Time: openPlus(1), Low: 6.1},
		{Time: openPlus(2), Low: 6.2},
	}
	d := NewStopDetector(newTestPortal(b), DefaultParams(), nyc)

	_, ok, err := d.Find(context.Background(), "AAA", openPlus(3))
	require.NoError(t, err)
	assert.False(t, ok)

	b.minute["AAA"] = append(b.minute["AAA"], domain.Bar{Time: openPlus(3), Low: 6.0}, domain.Bar{Time: openPlus(4), Low: 6.3})
	stop, ok, err := d.Find(context.Background(), "AAA", openPlus(5))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 5.99, stop, 1e-9)
}

func TestStopDetectorFetchFailure(t *testing.T) {
	b := newFakeBroker()
	b.failRT = true
	d := NewStopDetector(newTestPortal(b), DefaultParams(), nyc)

	_, ok, err := d.Find(context.Background(), "AAA", openPlus(20))
	require.ErrorIs(t, err, domain.ErrTransientData)
	assert.False(t, ok)
}
