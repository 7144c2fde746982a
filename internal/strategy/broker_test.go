package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/marketdata"
	"github.com/ankhone/alpacahq-zipline/internal/retry"
)

// fakeBroker serves bars, account state and order submission from memory.
// Submitted orders stay open until fill is called.
type fakeBroker struct {
	mu sync.Mutex

	assets  []domain.Instrument
	daily   map[string][]domain.Bar
	minute  map[string][]domain.Bar
	failBar map[string]bool // ListBars fails for batches containing these symbols
	failRT  bool

	portfolio domain.Portfolio
	open      []domain.Order
	submitted []domain.OrderRequest
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		daily:     map[string][]domain.Bar{},
		minute:    map[string][]domain.Bar{},
		failBar:   map[string]bool{},
		portfolio: domain.Portfolio{Holdings: map[string]domain.Holding{}},
	}
}

func (b *fakeBroker) ListInstruments(context.Context) ([]domain.Instrument, error) {
	return b.assets, nil
}

func (b *fakeBroker) ListBars(_ context.Context, symbols []string, _ domain.Frequency, limit int, end time.Time) (map[string][]domain.Bar, error) {
	out := map[string][]domain.Bar{}
	for _, s := range symbols {
		if b.failBar[s] {
			return nil, errors.New("504 gateway timeout")
		}
		var kept []domain.Bar
		for _, bar := range b.daily[s] {
			if !bar.Time.After(end) {
				kept = append(kept, bar)
			}
		}
		if len(kept) > limit {
			kept = kept[len(kept)-limit:]
		}
		if kept != nil {
			out[s] = kept
		}
	}
	return out, nil
}

func (b *fakeBroker) RealtimeBars(_ context.Context, symbols []string, freq domain.Frequency, count int) (map[string][]domain.Bar, error) {
	if b.failRT {
		return nil, errors.New("connection reset")
	}
	src := b.minute
	if freq == domain.FrequencyDaily {
		src = b.daily
	}
	out := map[string][]domain.Bar{}
	for _, s := range symbols {
		bars := src[s]
		if len(bars) > count {
			bars = bars[len(bars)-count:]
		}
		if len(bars) > 0 {
			out[s] = bars
		}
	}
	return out, nil
}

func (b *fakeBroker) LastTrade(context.Context, string) (float64, time.Time, error) {
	return 0, time.Time{}, domain.ErrNotFound
}

func (b *fakeBroker) SubmitOrder(_ context.Context, req domain.OrderRequest) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, req)
	o := domain.Order{Symbol: req.Symbol, Quantity: req.Quantity, Side: req.Side(), Status: domain.OrderStatusNew}
	b.open = append(b.open, o)
	return o, nil
}

func (b *fakeBroker) Submit(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	return b.SubmitOrder(ctx, req)
}

func (b *fakeBroker) ListOpenOrders(context.Context) ([]domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Order(nil), b.open...), nil
}

func (b *fakeBroker) Portfolio(context.Context) (domain.Portfolio, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pf := domain.Portfolio{Value: b.portfolio.Value, Holdings: map[string]domain.Holding{}}
	for k, v := range b.portfolio.Holdings {
		pf.Holdings[k] = v
	}
	return pf, nil
}

func (b *fakeBroker) hold(symbol string, shares int64, cost float64) {
	b.portfolio.Holdings[symbol] = domain.Holding{Symbol: symbol, Shares: shares, CostBasis: cost}
}

// fill completes symbol's open orders against the held position.
func (b *fakeBroker) fill(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.open[:0]
	for _, o := range b.open {
		if o.Symbol != symbol {
			kept = append(kept, o)
			continue
		}
		h := b.portfolio.Holdings[symbol]
		h.Symbol = symbol
		h.Shares += o.Quantity
		if h.Shares == 0 {
			delete(b.portfolio.Holdings, symbol)
		} else {
			b.portfolio.Holdings[symbol] = h
		}
	}
	b.open = kept
}

// reject drops symbol's open orders without touching holdings.
func (b *fakeBroker) reject(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.open[:0]
	for _, o := range b.open {
		if o.Symbol != symbol {
			kept = append(kept, o)
		}
	}
	b.open = kept
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleep(context.Context, time.Duration) error { return nil }

func testPolicy() retry.Policy {
	return retry.Policy{Attempts: 2, Sleep: noSleep}
}

func newTestPortal(b *fakeBroker) *marketdata.Portal {
	return marketdata.NewPortal(b, marketdata.PortalConfig{
		MemoSize: 10,
		Retry:    retry.Policy{Attempts: 5, Sleep: noSleep},
	}, quietLogger())
}

var nyc = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// testSession is Monday 2024-03-04, 09:30 to 16:00 New York.
func testSession() domain.TradingSession {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, nyc)
	return domain.TradingSession{
		Date:  day,
		Open:  time.Date(2024, 3, 4, 9, 30, 0, 0, nyc),
		Close: time.Date(2024, 3, 4, 16, 0, 0, 0, nyc),
	}
}

func openPlus(m int) time.Time {
	return testSession().Open.Add(time.Duration(m) * time.Minute)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
