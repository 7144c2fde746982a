package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/indicator"
	"github.com/ankhone/alpacahq-zipline/internal/marketdata"
)

// FindStop locates the most recent swing low in lows and returns it less
// offset. A swing low at i is a point where the series was falling or flat
// into i and rises out of it. ok is false with fewer than three points or
// no swing low.
func FindStop(lows []float64, offset float64) (stop float64, ok bool) {
	if len(lows) < 3 {
		return 0, false
	}
	d := indicator.Diff(lows)
	valley := -1
	for i := 1; i < len(d); i++ {
		if d[i-1] <= 0 && d[i] > 0 {
			valley = i
		}
	}
	if valley < 0 {
		return 0, false
	}
	return lows[valley] - offset, true
}

// StopDetector derives protective stops from today's minute lows.
type StopDetector struct {
	prices Prices
	params Params
	loc    *time.Location
}

// NewStopDetector creates a detector. loc defines the trading calendar day.
func NewStopDetector(prices Prices, params Params, loc *time.Location) *StopDetector {
	return &StopDetector{prices: prices, params: params, loc: loc}
}

// Find returns the stop for symbol as of now.
func (d *StopDetector) Find(ctx context.Context, symbol string, now time.Time) (float64, bool, error) {
	w, err := d.prices.History(ctx, marketdata.HistoryRequest{
		Symbols:   []string{symbol},
		Field:     domain.FieldLow,
		Lookback:  d.params.StopLookback,
		Frequency: domain.FrequencyMinute,
		AsOf:      now,
	})
	if err != nil {
		return 0, false, fmt.Errorf("strategy: stop %s: %w", symbol, err)
	}
	lows := w.Since(startOfDay(now, d.loc)).Column(symbol)
	stop, ok := FindStop(lows, d.params.StopOffset)
	return stop, ok, nil
}
