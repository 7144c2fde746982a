package strategy

import (
	"context"
	"fmt"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/retry"
)

// account is the broker state a decision cycle starts from.
type account struct {
	pending   map[string]bool
	portfolio domain.Portfolio
}

func loadAccount(ctx context.Context, trading domain.Trading, policy retry.Policy) (account, error) {
	orders, err := retry.DoValue(ctx, policy, trading.ListOpenOrders)
	if err != nil {
		return account{}, fmt.Errorf("strategy: open orders: %w: %w", domain.ErrTransientData, err)
	}
	pf, err := retry.DoValue(ctx, policy, trading.Portfolio)
	if err != nil {
		return account{}, fmt.Errorf("strategy: portfolio: %w: %w", domain.ErrTransientData, err)
	}
	pending := make(map[string]bool, len(orders))
	for _, o := range orders {
		pending[o.Symbol] = true
	}
	if pf.Holdings == nil {
		pf.Holdings = map[string]domain.Holding{}
	}
	return account{pending: pending, portfolio: pf}, nil
}
