package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/marketdata"
	"github.com/ankhone/alpacahq-zipline/internal/metrics"
	"github.com/ankhone/alpacahq-zipline/internal/retry"
)

// sizeEpsilon absorbs binary rounding in price-stop, which otherwise sizes
// a cent-aligned stop one share short (2.00-1.90 is 0.10000000000000009).
const sizeEpsilon = 1e-9

// PositionSize returns the share count for an entry at price with a stop
// at stop: the risk budget divided by the per-share risk, capped so the
// notional stays within maxNotional. It is never negative.
func PositionSize(portfolioValue, price, stop, riskFraction, maxNotional float64) int64 {
	if price <= 0 || price <= stop || portfolioValue <= 0 || riskFraction <= 0 {
		return 0
	}
	shares := portfolioValue * riskFraction / (price - stop)
	if maxNotional > 0 {
		shares = math.Min(shares, maxNotional/price)
	}
	shares = math.Floor(shares + sizeEpsilon)
	if shares < 0 {
		return 0
	}
	return int64(shares)
}

// Target returns the profit objective for an entry at price with a stop at
// stop.
func Target(price, stop, rewardRisk float64) float64 {
	return price + (price-stop)*rewardRisk
}

// EntryScanner opens positions on breakouts above the opening range.
type EntryScanner struct {
	prices   Prices
	trading  domain.Trading
	orders   OrderSubmitter
	stops    *StopDetector
	notifier domain.Notifier
	params   Params
	policy   retry.Policy
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewEntryScanner creates a scanner. notifier may be nil.
func NewEntryScanner(
	prices Prices,
	trading domain.Trading,
	orders OrderSubmitter,
	stops *StopDetector,
	notifier domain.Notifier,
	params Params,
	policy retry.Policy,
	loc *time.Location,
	logger *slog.Logger,
) *EntryScanner {
	logger = logger.With(slog.String("component", "entry_scanner"))
	if policy.Logger == nil {
		policy.Logger = logger
	}
	return &EntryScanner{
		prices:   prices,
		trading:  trading,
		orders:   orders,
		stops:    stops,
		notifier: notifier,
		params:   params,
		policy:   policy,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

// Scan evaluates every universe instrument once. A failed price or account
// lookup aborts the whole scan before any state changes.
func (e *EntryScanner) Scan(ctx context.Context, sess *Session) error {
	symbols := sess.Symbols()
	if len(symbols) == 0 {
		return nil
	}
	now := e.now()

	closes, err := e.prices.History(ctx, marketdata.HistoryRequest{
		Symbols:   symbols,
		Field:     domain.FieldClose,
		Lookback:  e.params.DailyLookback,
		Frequency: domain.FrequencyDaily,
		AsOf:      now,
	})
	if err != nil {
		metrics.FetchFailures.WithLabelValues("entry_closes").Inc()
		return fmt.Errorf("strategy: entry scan: %w", err)
	}
	current, err := e.prices.History(ctx, marketdata.HistoryRequest{
		Symbols:   symbols,
		Field:     domain.FieldPrice,
		Lookback:  1,
		Frequency: domain.FrequencyMinute,
		AsOf:      now,
		Fill:      true,
	})
	if err != nil {
		metrics.FetchFailures.WithLabelValues("entry_prices").Inc()
		return fmt.Errorf("strategy: entry scan: %w", err)
	}
	acct, err := loadAccount(ctx, e.trading, e.policy)
	if err != nil {
		return fmt.Errorf("strategy: entry scan: %w", err)
	}

	prior := closes.Until(startOfDay(now, e.loc).Add(-time.Minute))
	for _, sym := range symbols {
		if acct.pending[sym] {
			continue
		}
		if _, held := acct.portfolio.Holdings[sym]; held {
			continue
		}
		if _, open := sess.Position(sym); open {
			continue
		}
		lastClose, ok := prior.Last(sym)
		if !ok || lastClose <= 0 {
			continue
		}
		price, ok := current.Last(sym)
		if !ok {
			continue
		}
		if (price-lastClose)/lastClose <= e.params.MinGap {
			continue
		}
		high, ok := sess.OpeningHigh(sym)
		if !ok || price <= high {
			continue
		}

		if err := e.enter(ctx, sess, sym, price, acct.portfolio.Value, now); err != nil {
			e.logger.Warn("entry failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (e *EntryScanner) enter(ctx context.Context, sess *Session, sym string, price, value float64, now time.Time) error {
	stop, ok, err := e.stops.Find(ctx, sym, now)
	if err != nil {
		return err
	}
	if !ok || stop >= price {
		metrics.EntriesSkipped.WithLabelValues("no_stop").Inc()
		return nil
	}
	target := Target(price, stop, e.params.RewardRisk)
	shares := PositionSize(value, price, stop, e.params.RiskFraction, e.params.MaxNotional)
	if shares == 0 {
		metrics.EntriesSkipped.WithLabelValues("zero_shares").Inc()
		e.logger.Info("zero shares, skipping",
			slog.String("symbol", sym),
			slog.Float64("price", price),
			slog.Float64("stop", stop),
		)
		return nil
	}

	if _, err := e.orders.Submit(ctx, domain.OrderRequest{
		Symbol:   sym,
		Quantity: shares,
		Reason:   "entry",
	}); err != nil {
		return err
	}

	sess.Open(ctx, domain.Position{
		Symbol:    sym,
		Stop:      stop,
		Target:    target,
		Shares:    shares,
		EnteredAt: now,
	})
	metrics.OpenPositions.Set(float64(len(sess.Positions())))
	e.logger.Info("entered",
		slog.String("symbol", sym),
		slog.Int64("shares", shares),
		slog.Float64("price", price),
		slog.Float64("stop", stop),
		slog.Float64("target", target),
	)
	notify(ctx, e.notifier, e.logger, "position_opened",
		fmt.Sprintf("BUY %d %s @ %.2f stop %.2f target %.2f", shares, sym, price, stop, target))
	return nil
}

func notify(ctx context.Context, n domain.Notifier, logger *slog.Logger, event, msg string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, event, msg); err != nil {
		logger.Warn("notify failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
