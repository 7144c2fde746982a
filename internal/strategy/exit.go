package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/indicator"
	"github.com/ankhone/alpacahq-zipline/internal/marketdata"
	"github.com/ankhone/alpacahq-zipline/internal/metrics"
	"github.com/ankhone/alpacahq-zipline/internal/retry"
)

// ExitSignal evaluates the exit rules for one position. prices is the
// symbol's full price series and sinceEntry the part of it at or after the
// entry time. When several rules fire, profit beats stop and stop beats
// MACD.
func ExitSignal(prices, sinceEntry []float64, pos domain.Position, fast, slow, signal int) (domain.ExitReason, bool) {
	if len(prices) == 0 {
		return "", false
	}
	price := prices[len(prices)-1]
	macd, _, hist := indicator.MACD(prices, fast, slow, signal)

	var reason domain.ExitReason
	if indicator.Last(hist) < 0 {
		reason = domain.ExitMACD
	}
	if pos.Stop >= price {
		reason = domain.ExitStop
	}
	if reachedTarget(sinceEntry, pos.Target) && indicator.Last(indicator.Diff(macd)) <= 0 {
		reason = domain.ExitProfit
	}
	return reason, reason != ""
}

func reachedTarget(series []float64, target float64) bool {
	for _, v := range series {
		if !math.IsNaN(v) && v >= target {
			return true
		}
	}
	return false
}

// ExitMonitor closes positions on stop, MACD reversal or profit taking.
type ExitMonitor struct {
	prices   Prices
	trading  domain.Trading
	orders   OrderSubmitter
	notifier domain.Notifier
	params   Params
	policy   retry.Policy
	now      func() time.Time
	logger   *slog.Logger
}

// NewExitMonitor creates a monitor. notifier may be nil.
func NewExitMonitor(
	prices Prices,
	trading domain.Trading,
	orders OrderSubmitter,
	notifier domain.Notifier,
	params Params,
	policy retry.Policy,
	logger *slog.Logger,
) *ExitMonitor {
	logger = logger.With(slog.String("component", "exit_monitor"))
	if policy.Logger == nil {
		policy.Logger = logger
	}
	return &ExitMonitor{
		prices:   prices,
		trading:  trading,
		orders:   orders,
		notifier: notifier,
		params:   params,
		policy:   policy,
		now:      time.Now,
		logger:   logger,
	}
}

// Check settles positions whose orders completed, then evaluates every
// holding once. An exit leaves the position recorded until its sell fills.
func (m *ExitMonitor) Check(ctx context.Context, sess *Session) error {
	acct, err := loadAccount(ctx, m.trading, m.policy)
	if err != nil {
		return fmt.Errorf("strategy: exit check: %w", err)
	}
	if settled := sess.Settle(ctx, acct.portfolio.Holdings, acct.pending); len(settled) > 0 {
		metrics.OpenPositions.Set(float64(len(sess.Positions())))
	}
	holdings := sortedHoldings(acct.portfolio)
	if len(holdings) == 0 {
		return nil
	}
	symbols := make([]string, len(holdings))
	for i, h := range holdings {
		symbols[i] = h.Symbol
	}

	now := m.now()
	w, err := m.prices.History(ctx, marketdata.HistoryRequest{
		Symbols:   symbols,
		Field:     domain.FieldPrice,
		Lookback:  m.params.ExitLookback,
		Frequency: domain.FrequencyMinute,
		AsOf:      now,
		Fill:      true,
	})
	if err != nil {
		metrics.FetchFailures.WithLabelValues("exit_prices").Inc()
		return fmt.Errorf("strategy: exit check: %w", err)
	}

	for _, h := range holdings {
		if acct.pending[h.Symbol] || !w.Has(h.Symbol) {
			continue
		}
		pos, ok := sess.Position(h.Symbol)
		if !ok {
			m.logger.Warn("holding without position, cannot determine stop",
				slog.String("symbol", h.Symbol),
				slog.Int64("shares", h.Shares),
				slog.String("error", domain.ErrInvariantViolation.Error()),
			)
			continue
		}

		series := w.Column(h.Symbol)
		sinceEntry := w.Since(pos.EnteredAt).Column(h.Symbol)
		reason, exit := ExitSignal(series, sinceEntry, pos, m.params.MACDFast, m.params.MACDSlow, m.params.MACDSignal)
		if !exit {
			continue
		}
		price := series[len(series)-1]
		if err := m.exit(ctx, sess, h, price, reason); err != nil {
			m.logger.Warn("exit failed",
				slog.String("symbol", h.Symbol),
				slog.String("reason", string(reason)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (m *ExitMonitor) exit(ctx context.Context, sess *Session, h domain.Holding, price float64, reason domain.ExitReason) error {
	if _, err := m.orders.Submit(ctx, domain.OrderRequest{
		Symbol:   h.Symbol,
		Quantity: -h.Shares,
		Reason:   string(reason),
	}); err != nil {
		return err
	}
	metrics.ExitsTotal.WithLabelValues(string(reason)).Inc()

	pct := 0.0
	if h.CostBasis > 0 {
		pct = (price - h.CostBasis) / h.CostBasis * 100
	}
	m.logger.Info("exited",
		slog.String("symbol", h.Symbol),
		slog.String("reason", string(reason)),
		slog.Int64("shares", h.Shares),
		slog.Float64("price", price),
		slog.Float64("cost_basis", h.CostBasis),
		slog.Float64("pct", pct),
	)
	notify(ctx, m.notifier, m.logger, "position_closed",
		fmt.Sprintf("SELL %d %s @ %.2f (%s) %+.2f%%", h.Shares, h.Symbol, price, reason, pct))
	return nil
}
