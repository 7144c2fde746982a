// Package iex reads issuer financials from IEX Cloud.
package iex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// MaxBatch is the most symbols IEX accepts in one batch request.
const MaxBatch = 99

// Client is an IEX Cloud REST client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client. baseURL is e.g. "https://cloud.iexapis.com/stable".
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, string(body))
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, string(body))
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, string(body))
	case resp.StatusCode >= 300:
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

type refSymbol struct {
	Symbol    string `json:"symbol"`
	IsEnabled bool   `json:"isEnabled"`
}

// AvailableSymbols lists the symbols IEX has reference data for.
func (c *Client) AvailableSymbols(ctx context.Context) ([]string, error) {
	var refs []refSymbol
	if err := c.get(ctx, "/ref-data/symbols", nil, &refs); err != nil {
		return nil, fmt.Errorf("iex: list symbols: %w", err)
	}
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.IsEnabled {
			out = append(out, r.Symbol)
		}
	}
	return out, nil
}

type financialsEnvelope struct {
	Financials struct {
		Symbol     string                   `json:"symbol"`
		Financials []domain.FinancialReport `json:"financials"`
	} `json:"financials"`
}

// Financials fetches the latest reports for up to MaxBatch symbols.
func (c *Client) Financials(ctx context.Context, symbols []string) (map[string][]domain.FinancialReport, error) {
	if len(symbols) > MaxBatch {
		return nil, fmt.Errorf("iex: financials: %d symbols exceeds batch limit %d", len(symbols), MaxBatch)
	}
	if len(symbols) == 0 {
		return map[string][]domain.FinancialReport{}, nil
	}

	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("types", "financials")

	var batch map[string]financialsEnvelope
	if err := c.get(ctx, "/stock/market/batch", q, &batch); err != nil {
		return nil, fmt.Errorf("iex: financials: %w", err)
	}
	out := make(map[string][]domain.FinancialReport, len(batch))
	for sym, env := range batch {
		out[sym] = env.Financials.Financials
	}
	return out, nil
}

var _ domain.FinancialsSource = (*Client)(nil)
