// Package alpaca adapts the Alpaca brokerage REST and streaming APIs to the
// engine's market data, trading and calendar interfaces.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// Config holds credentials and endpoints.
type Config struct {
	KeyID     string
	SecretKey string
	// TradingURL is e.g. "https://paper-api.alpaca.markets".
	TradingURL string
	// DataURL is e.g. "https://data.alpaca.markets".
	DataURL string
	// StreamURL is e.g. "wss://paper-api.alpaca.markets/stream".
	StreamURL string
	// Feed selects the data feed ("iex" or "sip").
	Feed string
}

// Client is the Alpaca REST client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    domain.RateLimiter
	loc        *time.Location
	now        func() time.Time
}

// NewClient creates a client. limiter may be nil; loc is the exchange time
// zone used to interpret calendar entries.
func NewClient(cfg Config, limiter domain.RateLimiter, loc *time.Location) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
		loc:     loc,
		now:     time.Now,
	}
}

// rateKey is the limiter bucket shared by all Alpaca calls.
const rateKey = "alpaca:rest"

// do sends an authenticated request and returns the response body.
func (c *Client) do(ctx context.Context, method, base, path string, query url.Values, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateKey); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("APCA-API-KEY-ID", c.cfg.KeyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.cfg.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInvalidOrder, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

var (
	_ domain.MarketData  = (*Client)(nil)
	_ domain.Trading     = (*Client)(nil)
	_ domain.OrderLookup = (*Client)(nil)
	_ domain.Calendar    = (*Client)(nil)
)
