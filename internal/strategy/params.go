package strategy

import (
	"context"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/marketdata"
)

// Params holds the momentum rules. Offsets are minutes relative to the
// session open or close.
type Params struct {
	MinGap       float64 // minimum move over yesterday's close
	RiskFraction float64 // share of portfolio value risked per entry
	MaxNotional  float64 // cap on a single entry's notional
	RewardRisk   float64 // target distance as a multiple of stop distance
	StopOffset   float64 // distance below the swing low

	OpeningRangeMinutes  int
	OpeningRangeLookback int
	StopLookback         int
	ExitLookback         int
	DailyLookback        int

	MACDFast   int
	MACDSlow   int
	MACDSignal int

	EntryFrom, EntryTo   int
	ExitFrom, ExitTo     int
	LiquidateAfterOpen   int
	LiquidateBeforeClose int
}

// DefaultParams returns the production rule set.
func DefaultParams() Params {
	return Params{
		MinGap:               0.04,
		RiskFraction:         0.02,
		MaxNotional:          100,
		RewardRisk:           3,
		StopOffset:           0.01,
		OpeningRangeMinutes:  15,
		OpeningRangeLookback: 500,
		StopLookback:         100,
		ExitLookback:         3000,
		DailyLookback:        5,
		MACDFast:             13,
		MACDSlow:             21,
		MACDSignal:           8,
		EntryFrom:            16,
		EntryTo:              29,
		ExitFrom:             24,
		ExitTo:               359,
		LiquidateAfterOpen:   1,
		LiquidateBeforeClose: 25,
	}
}

// Prices serves trailing price windows.
type Prices interface {
	History(ctx context.Context, req marketdata.HistoryRequest) (domain.PriceWindow, error)
}

// OrderSubmitter places orders.
type OrderSubmitter interface {
	Submit(ctx context.Context, req domain.OrderRequest) (domain.Order, error)
}

// startOfDay returns local midnight of t in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
