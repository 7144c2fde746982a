package domain

import "time"

// Instrument is a tradable security. It is immutable once resolved.
type Instrument struct {
	ID     string
	Symbol string
}

// Frequency is the bar aggregation period.
type Frequency string

const (
	FrequencyMinute Frequency = "1m"
	FrequencyDaily  Frequency = "1d"
)

// Field selects one column of a bar.
type Field string

const (
	FieldOpen   Field = "open"
	FieldHigh   Field = "high"
	FieldLow    Field = "low"
	FieldClose  Field = "close"
	FieldVolume Field = "volume"
	// FieldPrice is the last traded price of the bar (its close) and is the
	// only field eligible for gap filling.
	FieldPrice Field = "price"
)

// Bar is a single OHLCV sample. Time is the start of the bar.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Value returns the requested field of the bar.
func (b Bar) Value(f Field) float64 {
	switch f {
	case FieldOpen:
		return b.Open
	case FieldHigh:
		return b.High
	case FieldLow:
		return b.Low
	case FieldVolume:
		return b.Volume
	default:
		return b.Close
	}
}

// TradingSession is one exchange trading day. Open and Close carry the
// exchange's local time zone.
type TradingSession struct {
	Date  time.Time
	Open  time.Time
	Close time.Time
}

// MinutesSinceOpen reports the number of whole minutes elapsed since the
// session opened.
func (s TradingSession) MinutesSinceOpen(t time.Time) int {
	return int(t.Sub(s.Open) / time.Minute)
}
