package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// SubmitOrder places a day market order for req's signed quantity.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if req.Quantity == 0 || req.Symbol == "" {
		return domain.Order{}, fmt.Errorf("alpaca: submit order: %w", domain.ErrInvalidOrder)
	}
	qty := req.Quantity
	if qty < 0 {
		qty = -qty
	}
	body := APIOrderRequest{
		Symbol:        req.Symbol,
		Qty:           strconv.FormatInt(qty, 10),
		Side:          string(req.Side()),
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: req.ClientOrderID,
	}

	resp, err := c.do(ctx, http.MethodPost, c.cfg.TradingURL, "/v2/orders", nil, body)
	if err != nil {
		return domain.Order{}, fmt.Errorf("alpaca: submit order %s: %w", req.Symbol, err)
	}
	var order APIOrder
	if err := json.Unmarshal(resp, &order); err != nil {
		return domain.Order{}, fmt.Errorf("alpaca: decode order: %w", err)
	}
	return order.ToDomain(), nil
}

// OrderByClientID returns the order submitted with clientOrderID.
func (c *Client) OrderByClientID(ctx context.Context, clientOrderID string) (domain.Order, error) {
	q := url.Values{}
	q.Set("client_order_id", clientOrderID)
	body, err := c.do(ctx, http.MethodGet, c.cfg.TradingURL, "/v2/orders:by_client_order_id", q, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("alpaca: order %s: %w", clientOrderID, err)
	}
	var order APIOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return domain.Order{}, fmt.Errorf("alpaca: decode order: %w", err)
	}
	return order.ToDomain(), nil
}

// ListOpenOrders returns orders that have not reached a final state.
func (c *Client) ListOpenOrders(ctx context.Context) ([]domain.Order, error) {
	q := url.Values{}
	q.Set("status", "open")
	q.Set("limit", "500")

	body, err := c.do(ctx, http.MethodGet, c.cfg.TradingURL, "/v2/orders", q, nil)
	if err != nil {
		return nil, fmt.Errorf("alpaca: list open orders: %w", err)
	}
	var orders []APIOrder
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("alpaca: decode orders: %w", err)
	}
	out := make([]domain.Order, len(orders))
	for i, o := range orders {
		out[i] = o.ToDomain()
	}
	return out, nil
}

// Portfolio returns the account value and open positions.
func (c *Client) Portfolio(ctx context.Context) (domain.Portfolio, error) {
	body, err := c.do(ctx, http.MethodGet, c.cfg.TradingURL, "/v2/account", nil, nil)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("alpaca: get account: %w", err)
	}
	var acct APIAccount
	if err := json.Unmarshal(body, &acct); err != nil {
		return domain.Portfolio{}, fmt.Errorf("alpaca: decode account: %w", err)
	}

	body, err = c.do(ctx, http.MethodGet, c.cfg.TradingURL, "/v2/positions", nil, nil)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("alpaca: list positions: %w", err)
	}
	var positions []APIPosition
	if err := json.Unmarshal(body, &positions); err != nil {
		return domain.Portfolio{}, fmt.Errorf("alpaca: decode positions: %w", err)
	}

	pf := domain.Portfolio{
		Value:    parseFloat(acct.PortfolioValue),
		Holdings: make(map[string]domain.Holding, len(positions)),
	}
	if pf.Value == 0 {
		pf.Value = parseFloat(acct.Equity)
	}
	for _, p := range positions {
		pf.Holdings[p.Symbol] = p.ToDomain()
	}
	return pf, nil
}
