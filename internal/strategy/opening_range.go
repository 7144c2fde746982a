package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/marketdata"
)

// OpeningRangeTracker records each instrument's high over the first
// minutes of the session.
type OpeningRangeTracker struct {
	prices Prices
	params Params
	now    func() time.Time
	logger *slog.Logger
}

// NewOpeningRangeTracker creates a tracker.
func NewOpeningRangeTracker(prices Prices, params Params, logger *slog.Logger) *OpeningRangeTracker {
	return &OpeningRangeTracker{
		prices: prices,
		params: params,
		now:    time.Now,
		logger: logger.With(slog.String("component", "opening_range")),
	}
}

// Window returns the opening range interval [open, open+N minutes).
func (t *OpeningRangeTracker) Window(ts domain.TradingSession) (time.Time, time.Time) {
	return ts.Open, ts.Open.Add(time.Duration(t.params.OpeningRangeMinutes) * time.Minute)
}

// Elapsed reports whether the opening range window has closed at now.
func (t *OpeningRangeTracker) Elapsed(ts domain.TradingSession, now time.Time) bool {
	_, end := t.Window(ts)
	return !now.Before(end)
}

// Mark computes the highs and stores them on the session. Instruments with
// no samples in the window are left out, so prices are not gap filled here.
func (t *OpeningRangeTracker) Mark(ctx context.Context, sess *Session) error {
	symbols := sess.Symbols()
	if len(symbols) == 0 {
		sess.SetOpeningRange(nil)
		return nil
	}
	w, err := t.prices.History(ctx, marketdata.HistoryRequest{
		Symbols:   symbols,
		Field:     domain.FieldPrice,
		Lookback:  t.params.OpeningRangeLookback,
		Frequency: domain.FrequencyMinute,
		AsOf:      t.now(),
	})
	if err != nil {
		return fmt.Errorf("strategy: opening range: %w", err)
	}

	from, to := t.Window(sess.TradingSession())
	window := w.Between(from, to)
	highs := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		if hi, ok := window.Max(sym); ok {
			highs[sym] = hi
		}
	}
	sess.SetOpeningRange(highs)
	t.logger.Info("opening range marked",
		slog.Int("universe", len(symbols)),
		slog.Int("with_range", len(highs)),
	)
	return nil
}
