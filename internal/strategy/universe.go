package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/marketdata"
	"github.com/ankhone/alpacahq-zipline/internal/metrics"
	"github.com/ankhone/alpacahq-zipline/internal/retry"
)

// UniverseParams bounds the liquidity and price screen.
type UniverseParams struct {
	BatchSize int
	Lookback  int
	MaxBarAge time.Duration
	MinVolume float64
	MinPrice  float64 // inclusive
	MaxPrice  float64 // exclusive
}

// DefaultUniverseParams returns the small-cap liquidity screen.
func DefaultUniverseParams() UniverseParams {
	return UniverseParams{
		BatchSize: 200,
		Lookback:  5,
		MaxBarAge: 6 * 24 * time.Hour,
		MinVolume: 300_000,
		MinPrice:  2.0,
		MaxPrice:  13.0,
	}
}

// UniverseFilter selects the day's tradable instruments.
type UniverseFilter struct {
	source  domain.MarketData
	assets  *marketdata.AssetFinder
	filters []domain.MaskFilter
	params  UniverseParams
	policy  retry.Policy
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
}

// NewUniverseFilter creates a filter. Mask filters are applied after the
// price and volume screen and must all pass.
func NewUniverseFilter(
	source domain.MarketData,
	assets *marketdata.AssetFinder,
	params UniverseParams,
	policy retry.Policy,
	loc *time.Location,
	logger *slog.Logger,
	filters ...domain.MaskFilter,
) *UniverseFilter {
	logger = logger.With(slog.String("component", "universe"))
	if policy.Logger == nil {
		policy.Logger = logger
	}
	return &UniverseFilter{
		source:  source,
		assets:  assets,
		filters: filters,
		params:  params,
		policy:  policy,
		loc:     loc,
		now:     time.Now,
		logger:  logger,
	}
}

// Select scans every listed instrument and returns those that pass, in
// listing order.
func (f *UniverseFilter) Select(ctx context.Context) ([]domain.Instrument, error) {
	listing, err := f.assets.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("strategy: universe: %w", err)
	}

	now := f.now().In(f.loc)
	end := startOfDay(now, f.loc).Add(-time.Minute)
	size := f.params.BatchSize
	if size <= 0 {
		size = 200
	}

	var out []domain.Instrument
	for start := 0; start < len(listing); start += size {
		batch := listing[start:min(start+size, len(listing))]
		symbols := make([]string, len(batch))
		for i, in := range batch {
			symbols[i] = in.Symbol
		}

		bars, err := retry.DoValue(ctx, f.policy, func(ctx context.Context) (map[string][]domain.Bar, error) {
			return f.source.ListBars(ctx, symbols, domain.FrequencyDaily, f.params.Lookback, end)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.FetchFailures.WithLabelValues("universe_bars").Inc()
			f.logger.Error("universe batch skipped",
				slog.Int("offset", start),
				slog.Int("size", len(batch)),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, sym := range symbols {
			series, ok := bars[sym]
			if !ok {
				continue
			}
			in, err := f.assets.Lookup(sym)
			if err != nil {
				f.logger.Warn("skipping symbol", slog.String("error", err.Error()))
				continue
			}
			if err := f.screen(series, now); err != nil {
				if !errors.Is(err, errRejected) {
					f.logger.Debug("excluded", slog.String("symbol", sym), slog.String("reason", err.Error()))
				}
				continue
			}
			out = append(out, in)
		}
	}

	out = f.applyMasks(ctx, out)
	metrics.UniverseSize.Set(float64(len(out)))
	f.logger.Info("universe selected",
		slog.Int("listed", len(listing)),
		slog.Int("selected", len(out)),
	)
	return out, nil
}

var errRejected = errors.New("rejected")

// screen applies the age, volume and price rules to a symbol's daily bars.
func (f *UniverseFilter) screen(series []domain.Bar, now time.Time) error {
	if len(series) == 0 {
		return errRejected
	}
	last := series[len(series)-1]
	if now.Sub(last.Time) > f.params.MaxBarAge {
		return fmt.Errorf("last bar %s: %w", last.Time.Format(time.DateOnly), domain.ErrStaleData)
	}
	if last.Volume <= f.params.MinVolume {
		return errRejected
	}
	if last.Close < f.params.MinPrice || last.Close >= f.params.MaxPrice {
		return errRejected
	}
	return nil
}

func (f *UniverseFilter) applyMasks(ctx context.Context, list []domain.Instrument) []domain.Instrument {
	for _, mf := range f.filters {
		if len(list) == 0 {
			break
		}
		mask, err := mf.ComputeMask(ctx, list)
		if err != nil || len(mask) != len(list) {
			msg := "mask length mismatch"
			if err != nil {
				msg = err.Error()
			}
			f.logger.Warn("mask filter ignored",
				slog.String("filter", mf.Name()),
				slog.String("error", msg),
			)
			continue
		}
		kept := list[:0:0]
		for i, in := range list {
			if mask[i] {
				kept = append(kept, in)
			}
		}
		f.logger.Info("mask filter applied",
			slog.String("filter", mf.Name()),
			slog.Int("before", len(list)),
			slog.Int("after", len(kept)),
		)
		list = kept
	}
	return list
}
