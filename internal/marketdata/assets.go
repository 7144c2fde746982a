package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/retry"
)

// AssetFinder maps symbols to instruments using the broker's listing.
type AssetFinder struct {
	source domain.MarketData
	policy retry.Policy

	mu       sync.RWMutex
	bySymbol map[string]domain.Instrument
}

// NewAssetFinder creates a finder. Call Refresh before Lookup.
func NewAssetFinder(source domain.MarketData, policy retry.Policy, logger *slog.Logger) *AssetFinder {
	if policy.Logger == nil {
		policy.Logger = logger.With(slog.String("component", "assets"))
	}
	return &AssetFinder{source: source, policy: policy, bySymbol: map[string]domain.Instrument{}}
}

// Refresh lists the broker's instruments, rebuilds the index and returns
// the listing in broker order.
func (f *AssetFinder) Refresh(ctx context.Context) ([]domain.Instrument, error) {
	list, err := retry.DoValue(ctx, f.policy, f.source.ListInstruments)
	if err != nil {
		return nil, fmt.Errorf("marketdata: list instruments: %w: %w", domain.ErrTransientData, err)
	}
	idx := make(map[string]domain.Instrument, len(list))
	for _, in := range list {
		idx[in.Symbol] = in
	}
	f.mu.Lock()
	f.bySymbol = idx
	f.mu.Unlock()
	return list, nil
}

// Lookup resolves symbol.
func (f *AssetFinder) Lookup(symbol string) (domain.Instrument, error) {
	f.mu.RLock()
	in, ok := f.bySymbol[symbol]
	f.mu.RUnlock()
	if !ok {
		return domain.Instrument{}, fmt.Errorf("marketdata: %s: %w", symbol, domain.ErrUnresolvedInstrument)
	}
	return in, nil
}
