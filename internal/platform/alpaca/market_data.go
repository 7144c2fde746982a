package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// maxPageSize is the largest page the bars endpoint serves.
const maxPageSize = 10000

// ListInstruments returns every active, tradable US equity.
func (c *Client) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	q := url.Values{}
	q.Set("status", "active")
	q.Set("asset_class", "us_equity")

	body, err := c.do(ctx, http.MethodGet, c.cfg.TradingURL, "/v2/assets", q, nil)
	if err != nil {
		return nil, fmt.Errorf("alpaca: list assets: %w", err)
	}
	var assets []APIAsset
	if err := json.Unmarshal(body, &assets); err != nil {
		return nil, fmt.Errorf("alpaca: decode assets: %w", err)
	}

	out := make([]domain.Instrument, 0, len(assets))
	for _, a := range assets {
		if !a.Tradable {
			continue
		}
		out = append(out, domain.Instrument{ID: a.ID, Symbol: a.Symbol})
	}
	return out, nil
}

// ListBars returns up to limit bars per symbol ending at end. Minute bars
// are requested over progressively wider windows: only symbols still short
// of limit bars are fetched again with the next span.
func (c *Client) ListBars(ctx context.Context, symbols []string, freq domain.Frequency, limit int, end time.Time) (map[string][]domain.Bar, error) {
	if len(symbols) == 0 {
		return map[string][]domain.Bar{}, nil
	}
	timeframe, err := timeframeOf(freq)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]domain.Bar, len(symbols))
	want := symbols
	for _, span := range lookbackSpans(freq, limit) {
		got, err := c.fetchBars(ctx, want, timeframe, end.Add(-span), end)
		if err != nil {
			return nil, err
		}
		var short []string
		for _, sym := range want {
			bars, ok := got[sym]
			if !ok {
				short = append(short, sym)
				continue
			}
			out[sym] = bars
			if limit > 0 && len(bars) < limit {
				short = append(short, sym)
			}
		}
		if len(short) == 0 {
			break
		}
		want = short
	}

	if limit > 0 {
		for sym, bars := range out {
			if len(bars) > limit {
				out[sym] = bars[len(bars)-limit:]
			}
		}
	}
	return out, nil
}

func (c *Client) fetchBars(ctx context.Context, symbols []string, timeframe string, start, end time.Time) (map[string][]domain.Bar, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("timeframe", timeframe)
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	q.Set("adjustment", "raw")
	q.Set("limit", strconv.Itoa(maxPageSize))
	if c.cfg.Feed != "" {
		q.Set("feed", c.cfg.Feed)
	}

	out := make(map[string][]domain.Bar, len(symbols))
	for {
		body, err := c.do(ctx, http.MethodGet, c.cfg.DataURL, "/v2/stocks/bars", q, nil)
		if err != nil {
			return nil, fmt.Errorf("alpaca: list bars: %w", err)
		}
		var page BarsResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("alpaca: decode bars: %w", err)
		}
		for sym, bars := range page.Bars {
			for _, b := range bars {
				out[sym] = append(out[sym], b.ToDomain())
			}
		}
		if page.NextPageToken == nil || *page.NextPageToken == "" {
			break
		}
		q.Set("page_token", *page.NextPageToken)
	}
	return out, nil
}

// RealtimeBars returns the latest count bars per symbol. A single minute
// bar comes from the latest-bars endpoint.
func (c *Client) RealtimeBars(ctx context.Context, symbols []string, freq domain.Frequency, count int) (map[string][]domain.Bar, error) {
	if freq == domain.FrequencyMinute && count == 1 {
		return c.latestBars(ctx, symbols)
	}
	return c.ListBars(ctx, symbols, freq, count, c.now())
}

func (c *Client) latestBars(ctx context.Context, symbols []string) (map[string][]domain.Bar, error) {
	out := make(map[string][]domain.Bar, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	if c.cfg.Feed != "" {
		q.Set("feed", c.cfg.Feed)
	}
	body, err := c.do(ctx, http.MethodGet, c.cfg.DataURL, "/v2/stocks/bars/latest", q, nil)
	if err != nil {
		return nil, fmt.Errorf("alpaca: latest bars: %w", err)
	}
	var resp LatestBarsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("alpaca: decode latest bars: %w", err)
	}
	for sym, b := range resp.Bars {
		out[sym] = []domain.Bar{b.ToDomain()}
	}
	return out, nil
}

// LastTrade returns the most recent trade for symbol.
func (c *Client) LastTrade(ctx context.Context, symbol string) (float64, time.Time, error) {
	q := url.Values{}
	if c.cfg.Feed != "" {
		q.Set("feed", c.cfg.Feed)
	}
	path := fmt.Sprintf("/v2/stocks/%s/trades/latest", url.PathEscape(symbol))
	body, err := c.do(ctx, http.MethodGet, c.cfg.DataURL, path, q, nil)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("alpaca: latest trade %s: %w", symbol, err)
	}
	var resp LatestTradeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, time.Time{}, fmt.Errorf("alpaca: decode latest trade: %w", err)
	}
	return resp.Trade.P, resp.Trade.T, nil
}

func timeframeOf(freq domain.Frequency) (string, error) {
	switch freq {
	case domain.FrequencyMinute:
		return "1Min", nil
	case domain.FrequencyDaily:
		return "1Day", nil
	default:
		return "", fmt.Errorf("alpaca: unsupported frequency %q", freq)
	}
}

// lookbackSpans lists the calendar spans tried in turn to collect limit
// bars. Daily bars use one span wide enough for weekends and holidays.
// Minute bars start with limit minutes plus slack and widen to cover
// overnight gaps, then several sessions.
func lookbackSpans(freq domain.Frequency, limit int) []time.Duration {
	day := 24 * time.Hour
	if freq == domain.FrequencyDaily {
		return []time.Duration{time.Duration(limit*2+7) * day}
	}
	tight := time.Duration(limit)*time.Minute + 30*time.Minute
	wide := time.Duration(limit/390+4) * day
	var spans []time.Duration
	for _, s := range []time.Duration{tight, day, wide} {
		if len(spans) == 0 || s > spans[len(spans)-1] {
			spans = append(spans, s)
		}
	}
	return spans
}
