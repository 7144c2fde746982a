package domain

import "time"

// Position is the engine's record of an entry it made: the protective stop,
// the profit objective and when it was opened. There is at most one per
// symbol per trading day.
type Position struct {
	Symbol    string    `json:"symbol"`
	Stop      float64   `json:"stop"`
	Target    float64   `json:"target"`
	Shares    int64     `json:"shares"`
	EnteredAt time.Time `json:"entered_at"`
}

// Holding is the broker's view of an open position.
type Holding struct {
	Symbol    string  `json:"symbol"`
	Shares    int64   `json:"shares"`
	CostBasis float64 `json:"cost_basis"` // average entry price per share
}

// Portfolio is the broker account snapshot used for sizing and exits.
type Portfolio struct {
	Value    float64            `json:"value"`
	Holdings map[string]Holding `json:"holdings"`
}

// ExitReason names the condition that closed a position.
type ExitReason string

const (
	ExitMACD      ExitReason = "MACD"
	ExitStop      ExitReason = "stop"
	ExitProfit    ExitReason = "profit"
	ExitLiquidate ExitReason = "liquidate"
)
