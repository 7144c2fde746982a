package strategy

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

func TestPositionSizeScenario(t *testing.T) {
	// 2% of 100k over a 0.50 stop distance is 4000 shares; the 100 notional
	// cap brings it down to 9.
	assert.Equal(t, int64(9), PositionSize(100_000, 10.50, 10.00, 0.02, 100))
	assert.InDelta(t, 12.00, Target(10.50, 10.00, 3), 1e-9)
}

func TestPositionSizeMatchesFormula(t *testing.T) {
	for _, value := range []float64{0, 50, 1_000, 25_000, 100_000} {
		for _, price := range []float64{0.5, 2, 7.25, 12.99, 150} {
			for _, dist := range []float64{0.01, 0.1, 0.5, 3} {
				stop := price - dist
				got := PositionSize(value, price, stop, 0.02, 100)
				want := math.Floor(math.Min(value*0.02/dist, 100/price))
				assert.Equal(t, int64(want), got, "value=%v price=%v stop=%v", value, price, stop)
				assert.GreaterOrEqual(t, got, int64(0))
			}
		}
	}
}

func TestPositionSizeCentAlignedStop(t *testing.T) {
	// 1.00 of risk over a 0.10 distance is exactly 10 shares.
	assert.Equal(t, int64(10), PositionSize(50, 2.00, 1.90, 0.02, 100))
	assert.Equal(t, int64(100), PositionSize(50, 0.50, 0.49, 0.02, 100))
	assert.Equal(t, int64(100), PositionSize(10_000, 10.00, 8.00, 0.02, 0))
}

func TestPositionSizeDegenerate(t *testing.T) {
	assert.Zero(t, PositionSize(100_000, 10, 10, 0.02, 100))
	assert.Zero(t, PositionSize(100_000, 10, 11, 0.02, 100))
	assert.Zero(t, PositionSize(-5, 10, 9, 0.02, 100))
	assert.Zero(t, PositionSize(100_000, 0, -1, 0.02, 100))
	// Risk budget of 0.02 cannot cover one share risking 0.05.
	assert.Zero(t, PositionSize(1, 10, 9.95, 0.02, 100))
}

// seedEntryMarket prepares a symbol with yesterday's close, today's minute
// bars whose lows carry one swing low, and a last price.
func seedEntryMarket(b *fakeBroker, sym string, prevClose float64, lows []float64, last float64) {
	day := testSession().Date
	b.daily[sym] = []domain.Bar{
		{Time: day.AddDate(0, 0, -4), Close: prevClose * 0.98},
		{Time: day.AddDate(0, 0, -3), Close: prevClose},
		{Time: day, Close: last},
	}
	var bars []domain.Bar
	for i, l := range lows {
		bars = append(bars, domain.Bar{Time: openPlus(i), Low: l, Close: l + 0.05})
	}
	bars[len(bars)-1].Close = last
	b.minute[sym] = bars
}

func risingLows(valley float64) []float64 {
	lows := []float64{valley + 0.29, valley + 0.19, valley}
	for i := 1; lows[len(lows)-1] < valley+0.4; i++ {
		lows = append(lows, valley+0.03*float64(i))
	}
	return lows
}

func newScanner(b *fakeBroker, now time.Time) *EntryScanner {
	portal := newTestPortal(b)
	params := DefaultParams()
	e := NewEntryScanner(portal, b, b, NewStopDetector(portal, params, nyc), nil, params, testPolicy(), nyc, quietLogger())
	e.now = fixedClock(now)
	return e
}

func TestEntryScanScenario(t *testing.T) {
	b := newFakeBroker()
	b.portfolio.Value = 100_000
	seedEntryMarket(b, "AAA", 10.00, risingLows(10.01), 10.50)
	seedEntryMarket(b, "GAP", 10.00, risingLows(10.01), 10.30) // 3% move
	seedEntryMarket(b, "NOR", 10.00, risingLows(10.01), 10.50) // no opening range
	seedEntryMarket(b, "PND", 10.00, risingLows(10.01), 10.50) // pending order
	seedEntryMarket(b, "HLD", 10.00, risingLows(10.01), 10.50) // already held
	seedEntryMarket(b, "LOW", 10.00, risingLows(10.01), 10.50) // not above opening high
	b.open = []domain.Order{{Symbol: "PND"}}
	b.hold("HLD", 5, 10.2)

	sess := NewSession(testSession(), nil, quietLogger())
	sess.SetUniverse([]domain.Instrument{
		{ID: "1", Symbol: "AAA"}, {ID: "2", Symbol: "GAP"}, {ID: "3", Symbol: "NOR"},
		{ID: "4", Symbol: "PND"}, {ID: "5", Symbol: "HLD"}, {ID: "6", Symbol: "LOW"},
	})
	sess.SetOpeningRange(map[string]float64{"AAA": 10.40, "GAP": 10.0, "PND": 10.4, "HLD": 10.4, "LOW": 10.50})

	now := openPlus(16)
	require.NoError(t, newScanner(b, now).Scan(context.Background(), sess))

	require.Len(t, b.submitted, 1)
	assert.Equal(t, "AAA", b.submitted[0].Symbol)
	assert.Equal(t, int64(9), b.submitted[0].Quantity)

	pos, ok := sess.Position("AAA")
	require.True(t, ok)
	assert.InDelta(t, 10.00, pos.Stop, 1e-9)
	assert.InDelta(t, 12.00, pos.Target, 1e-9)
	assert.Equal(t, int64(9), pos.Shares)
	assert.Equal(t, now, pos.EnteredAt)
	assert.Len(t, sess.Positions(), 1)
}

func TestEntryScanSkipsOpenPosition(t *testing.T) {
	b := newFakeBroker()
	b.portfolio.Value = 100_000
	seedEntryMarket(b, "AAA", 10.00, risingLows(10.01), 10.50)

	sess := NewSession(testSession(), nil, quietLogger())
	sess.SetUniverse([]domain.Instrument{{ID: "1", Symbol: "AAA"}})
	sess.SetOpeningRange(map[string]float64{"AAA": 10.40})
	sess.Open(context.Background(), domain.Position{Symbol: "AAA", Stop: 9, Target: 13})

	require.NoError(t, newScanner(b, openPlus(17)).Scan(context.Background(), sess))
	assert.Empty(t, b.submitted)
}

func TestEntryScanAbortsOnFetchFailure(t *testing.T) {
	b := newFakeBroker()
	b.portfolio.Value = 100_000
	b.failRT = true
	seedEntryMarket(b, "AAA", 10.00, risingLows(10.01), 10.50)

	sess := NewSession(testSession(), nil, quietLogger())
	sess.SetUniverse([]domain.Instrument{{ID: "1", Symbol: "AAA"}})
	sess.SetOpeningRange(map[string]float64{"AAA": 10.40})

	err := newScanner(b, openPlus(16)).Scan(context.Background(), sess)
	require.ErrorIs(t, err, domain.ErrTransientData)
	assert.Empty(t, b.submitted)
	assert.Empty(t, sess.Positions())
}

func TestEntryScanSkipsWithoutStop(t *testing.T) {
	b := newFakeBroker()
	b.portfolio.Value = 100_000
	// Lows only rise: no swing low today.
	seedEntryMarket(b, "AAA", 10.00, []float64{10.1, 10.2, 10.3, 10.4}, 10.50)

	sess := NewSession(testSession(), nil, quietLogger())
	sess.SetUniverse([]domain.Instrument{{ID: "1", Symbol: "AAA"}})
	sess.SetOpeningRange(map[string]float64{"AAA": 10.40})

	require.NoError(t, newScanner(b, openPlus(16)).Scan(context.Background(), sess))
	assert.Empty(t, b.submitted)
}
