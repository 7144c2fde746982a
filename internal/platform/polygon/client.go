// Package polygon is a small client for Polygon's reference data API.
package polygon

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

// Client fetches company metadata from Polygon.
type Client struct {
	baseURL    string
	apiKey     string
	limiter    domain.RateLimiter
	httpClient *http.Client
}

// NewClient creates a Polygon client. baseURL is e.g. "https://api.polygon.io";
// limiter may be nil.
func NewClient(baseURL, apiKey string, limiter domain.RateLimiter) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		limiter: limiter,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// companyResponse mirrors GET /v1/meta/symbols/{symbol}/company.
type companyResponse struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Exchange  string  `json:"exchange"`
	Industry  string  `json:"industry"`
	Sector    string  `json:"sector"`
	MarketCap float64 `json:"marketcap"`
}

// Company returns the issuer metadata for symbol.
func (c *Client) Company(ctx context.Context, symbol string) (domain.Company, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "polygon:rest"); err != nil {
			return domain.Company{}, fmt.Errorf("polygon: rate limit wait: %w", err)
		}
	}

	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	u := fmt.Sprintf("%s/v1/meta/symbols/%s/company?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Company{}, fmt.Errorf("polygon: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Company{}, fmt.Errorf("polygon: company %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Company{}, fmt.Errorf("polygon: read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Company{}, fmt.Errorf("polygon: company %s: %w", symbol, domain.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.Company{}, fmt.Errorf("polygon: company %s: %w", symbol, domain.ErrUnauthorized)
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.Company{}, fmt.Errorf("polygon: company %s: %w", symbol, domain.ErrRateLimited)
	case resp.StatusCode >= 300:
		return domain.Company{}, fmt.Errorf("polygon: company %s: HTTP %d: %s", symbol, resp.StatusCode, string(body))
	}

	var cr companyResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return domain.Company{}, fmt.Errorf("polygon: decode company: %w", err)
	}
	if cr.Symbol == "" {
		cr.Symbol = symbol
	}
	return domain.Company(cr), nil
}

var _ domain.CompanySource = (*Client)(nil)
