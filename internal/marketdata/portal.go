// Package marketdata fetches price windows from the broker's data API with
// retries, short-lived memoization and gap filling.
package marketdata

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/retry"
)

// HistoryRequest describes one trailing window.
type HistoryRequest struct {
	Symbols   []string
	Field     domain.Field
	Lookback  int
	Frequency domain.Frequency
	AsOf      time.Time
	// Fill forward- then back-fills gaps. Only honored for FieldPrice.
	Fill bool
}

// PortalConfig tunes the portal.
type PortalConfig struct {
	MemoSize int
	MemoTTL  time.Duration
	Retry    retry.Policy
}

// Portal serves price windows. Identical fetches within the memo TTL are
// served from memory; concurrent identical fetches share one upstream call.
type Portal struct {
	source   domain.MarketData
	memo     *expirable.LRU[string, map[string][]domain.Bar]
	group    singleflight.Group
	policy   retry.Policy
	observer func(hit bool)
	logger   *slog.Logger
}

// NewPortal creates a Portal over source.
func NewPortal(source domain.MarketData, cfg PortalConfig, logger *slog.Logger) *Portal {
	size := cfg.MemoSize
	if size <= 0 {
		size = 10
	}
	policy := cfg.Retry
	if policy.Attempts == 0 {
		policy.Attempts = retry.DataAttempts
	}
	logger = logger.With(slog.String("component", "marketdata"))
	if policy.Logger == nil {
		policy.Logger = logger
	}
	return &Portal{
		source: source,
		memo:   expirable.NewLRU[string, map[string][]domain.Bar](size, nil, cfg.MemoTTL),
		policy: policy,
		logger: logger,
	}
}

// OnMemo registers a callback for memo hits and misses.
func (p *Portal) OnMemo(fn func(hit bool)) {
	p.observer = fn
}

// History returns the requested window. When the upstream keeps failing the
// window is empty and the error wraps domain.ErrTransientData.
func (p *Portal) History(ctx context.Context, req HistoryRequest) (domain.PriceWindow, error) {
	if len(req.Symbols) == 0 {
		return domain.PriceWindow{Series: map[string][]float64{}}, nil
	}
	bars, err := p.bars(ctx, req)
	if err != nil {
		return domain.PriceWindow{Series: map[string][]float64{}},
			fmt.Errorf("marketdata: history %s x%d: %w: %w", req.Frequency, req.Lookback, domain.ErrTransientData, err)
	}
	fill := req.Fill && req.Field == domain.FieldPrice
	return BuildWindow(bars, req.Field, req.Lookback, fill), nil
}

func (p *Portal) bars(ctx context.Context, req HistoryRequest) (map[string][]domain.Bar, error) {
	key := memoKey(req)
	if bars, ok := p.memo.Get(key); ok {
		p.observe(true)
		return bars, nil
	}
	p.observe(false)

	v, err, _ := p.group.Do(key, func() (any, error) {
		bars, err := retry.DoValue(ctx, p.policy, func(ctx context.Context) (map[string][]domain.Bar, error) {
			return p.source.RealtimeBars(ctx, req.Symbols, req.Frequency, req.Lookback)
		})
		if err != nil {
			return nil, err
		}
		p.memo.Add(key, bars)
		return bars, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string][]domain.Bar), nil
}

func (p *Portal) observe(hit bool) {
	if p.observer != nil {
		p.observer(hit)
	}
}

// memoKey identifies a fetch by symbol set, frequency, lookback and the
// minute it is made in. The field is not part of the key because the memo
// holds whole bars.
func memoKey(req HistoryRequest) string {
	h := fnv.New64a()
	h.Write([]byte(strings.Join(req.Symbols, ",")))
	return fmt.Sprintf("%s|%d|%d|%x", req.Frequency, req.Lookback,
		req.AsOf.Truncate(time.Minute).Unix(), h.Sum64())
}
