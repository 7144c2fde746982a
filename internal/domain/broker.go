package domain

import (
	"context"
	"time"
)

// MarketData is the broker's data API. Implementations are remote and may
// fail transiently; callers wrap them in retries.
type MarketData interface {
	ListInstruments(ctx context.Context) ([]Instrument, error)
	// ListBars returns at most limit bars per symbol ending at or before end.
	ListBars(ctx context.Context, symbols []string, freq Frequency, limit int, end time.Time) (map[string][]Bar, error)
	// RealtimeBars returns the latest count bars per symbol.
	RealtimeBars(ctx context.Context, symbols []string, freq Frequency, count int) (map[string][]Bar, error)
	// LastTrade returns the latest trade price and its time.
	LastTrade(ctx context.Context, symbol string) (float64, time.Time, error)
}

// Trading is the broker's order execution API.
type Trading interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (Order, error)
	ListOpenOrders(ctx context.Context) ([]Order, error)
	Portfolio(ctx context.Context) (Portfolio, error)
}

// OrderLookup finds an order by the client order id it was submitted with.
type OrderLookup interface {
	OrderByClientID(ctx context.Context, clientOrderID string) (Order, error)
}

// Calendar resolves exchange trading sessions.
type Calendar interface {
	// Session returns the trading session on day's date, or ok=false when
	// the exchange is closed that day.
	Session(ctx context.Context, day time.Time) (TradingSession, bool, error)
}

// MaskFilter decides per instrument whether it passes some external
// criterion. The result is aligned with the input.
type MaskFilter interface {
	Name() string
	ComputeMask(ctx context.Context, instruments []Instrument) ([]bool, error)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event string, message string) error
}
