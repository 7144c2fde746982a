package alpaca

import (
	"strconv"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// APIAsset is an entry of GET /v2/assets.
type APIAsset struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Status   string `json:"status"`
	Tradable bool   `json:"tradable"`
}

// APIBar is a bar from the market data API.
type APIBar struct {
	T time.Time `json:"t"`
	O float64   `json:"o"`
	H float64   `json:"h"`
	L float64   `json:"l"`
	C float64   `json:"c"`
	V float64   `json:"v"`
}

// ToDomain converts the bar.
func (b APIBar) ToDomain() domain.Bar {
	return domain.Bar{Time: b.T, Open: b.O, High: b.H, Low: b.L, Close: b.C, Volume: b.V}
}

// BarsResponse is the body of GET /v2/stocks/bars.
type BarsResponse struct {
	Bars          map[string][]APIBar `json:"bars"`
	NextPageToken *string             `json:"next_page_token"`
}

// LatestBarsResponse is the body of GET /v2/stocks/bars/latest.
type LatestBarsResponse struct {
	Bars map[string]APIBar `json:"bars"`
}

// LatestTradeResponse is the body of GET /v2/stocks/{symbol}/trades/latest.
type LatestTradeResponse struct {
	Symbol string `json:"symbol"`
	Trade  struct {
		T time.Time `json:"t"`
		P float64   `json:"p"`
	} `json:"trade"`
}

// APIAccount is the body of GET /v2/account.
type APIAccount struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	PortfolioValue string `json:"portfolio_value"`
	Equity         string `json:"equity"`
	Cash           string `json:"cash"`
}

// APIPosition is an entry of GET /v2/positions.
type APIPosition struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
	Side          string `json:"side"`
}

// ToDomain converts the position to a holding. Short positions carry a
// negative share count.
func (p APIPosition) ToDomain() domain.Holding {
	qty := parseInt(p.Qty)
	if p.Side == "short" && qty > 0 {
		qty = -qty
	}
	return domain.Holding{Symbol: p.Symbol, Shares: qty, CostBasis: parseFloat(p.AvgEntryPrice)}
}

// APIOrderRequest is the body of POST /v2/orders.
type APIOrderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// APIOrder is an order as returned by the trading API.
type APIOrder struct {
	ID             string     `json:"id"`
	ClientOrderID  string     `json:"client_order_id"`
	Symbol         string     `json:"symbol"`
	Side           string     `json:"side"`
	Qty            string     `json:"qty"`
	FilledQty      string     `json:"filled_qty"`
	FilledAvgPrice *string    `json:"filled_avg_price"`
	Status         string     `json:"status"`
	SubmittedAt    *time.Time `json:"submitted_at"`
}

// ToDomain converts the order. Quantity is signed by side.
func (o APIOrder) ToDomain() domain.Order {
	qty := parseInt(o.Qty)
	if o.Side == string(domain.OrderSideSell) {
		qty = -qty
	}
	out := domain.Order{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          domain.OrderSide(o.Side),
		Quantity:      qty,
		FilledQty:     parseInt(o.FilledQty),
		Status:        domain.OrderStatus(o.Status),
	}
	if o.FilledAvgPrice != nil {
		out.FilledPrice = parseFloat(*o.FilledAvgPrice)
	}
	if o.SubmittedAt != nil {
		out.SubmittedAt = *o.SubmittedAt
	}
	return out
}

// APICalendarDay is an entry of GET /v2/calendar.
type APICalendarDay struct {
	Date  string `json:"date"`
	Open  string `json:"open"`
	Close string `json:"close"`
}

// APITradeUpdate is the payload of a trade_updates stream message.
type APITradeUpdate struct {
	Event     string    `json:"event"`
	Price     string    `json:"price"`
	Qty       string    `json:"qty"`
	Timestamp time.Time `json:"timestamp"`
	Order     APIOrder  `json:"order"`
}

// ToDomain converts the update.
func (u APITradeUpdate) ToDomain() domain.TradeUpdate {
	return domain.TradeUpdate{
		Event:     u.Event,
		Order:     u.Order.ToDomain(),
		Price:     parseFloat(u.Price),
		Qty:       parseInt(u.Qty),
		Timestamp: u.Timestamp,
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// parseInt accepts fractional quantities and truncates them.
func parseInt(s string) int64 {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	return int64(parseFloat(s))
}
