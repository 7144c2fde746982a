package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the order lifecycle as reported by the broker.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusPartial   OrderStatus = "partially_filled"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "canceled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// OrderRequest asks for a market order of a signed share count: positive
// buys, negative sells.
type OrderRequest struct {
	Symbol        string
	Quantity      int64
	ClientOrderID string
	Reason        string
}

// Side derives the order side from the sign of Quantity.
func (r OrderRequest) Side() OrderSide {
	if r.Quantity < 0 {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Order is a broker order.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Quantity      int64
	FilledQty     int64
	FilledPrice   float64
	Status        OrderStatus
	SubmittedAt   time.Time
}

// TradeUpdate is a streamed order lifecycle event.
type TradeUpdate struct {
	Event     string // new, fill, partial_fill, canceled, rejected, ...
	Order     Order
	Price     float64
	Qty       int64
	Timestamp time.Time
}
