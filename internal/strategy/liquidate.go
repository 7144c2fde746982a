package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/metrics"
	"github.com/ankhone/alpacahq-zipline/internal/retry"
)

// Liquidator closes every holding unconditionally.
type Liquidator struct {
	trading  domain.Trading
	orders   OrderSubmitter
	notifier domain.Notifier
	policy   retry.Policy
	logger   *slog.Logger
}

// NewLiquidator creates a liquidator. notifier may be nil.
func NewLiquidator(trading domain.Trading, orders OrderSubmitter, notifier domain.Notifier, policy retry.Policy, logger *slog.Logger) *Liquidator {
	logger = logger.With(slog.String("component", "liquidator"))
	if policy.Logger == nil {
		policy.Logger = logger
	}
	return &Liquidator{trading: trading, orders: orders, notifier: notifier, policy: policy, logger: logger}
}

// Liquidate sells every holding that is not already covered by a pending
// order, so repeating it before fills arrive submits nothing new.
func (l *Liquidator) Liquidate(ctx context.Context, sess *Session) error {
	acct, err := loadAccount(ctx, l.trading, l.policy)
	if err != nil {
		return fmt.Errorf("strategy: liquidate: %w", err)
	}
	sess.Settle(ctx, acct.portfolio.Holdings, acct.pending)

	var sold int
	for _, h := range sortedHoldings(acct.portfolio) {
		if h.Shares == 0 || acct.pending[h.Symbol] {
			continue
		}
		if _, err := l.orders.Submit(ctx, domain.OrderRequest{
			Symbol:   h.Symbol,
			Quantity: -h.Shares,
			Reason:   string(domain.ExitLiquidate),
		}); err != nil {
			l.logger.Warn("liquidation order failed",
				slog.String("symbol", h.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		metrics.ExitsTotal.WithLabelValues(string(domain.ExitLiquidate)).Inc()
		sold++
	}
	metrics.OpenPositions.Set(float64(len(sess.Positions())))

	if sold > 0 {
		l.logger.Info("liquidated", slog.Int("orders", sold))
		notify(ctx, l.notifier, l.logger, "liquidation", fmt.Sprintf("liquidated %d holdings", sold))
	}
	return nil
}

func sortedHoldings(pf domain.Portfolio) []domain.Holding {
	out := make([]domain.Holding, 0, len(pf.Holdings))
	for sym, h := range pf.Holdings {
		if h.Symbol == "" {
			h.Symbol = sym
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
