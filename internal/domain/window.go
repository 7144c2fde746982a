package domain

import (
	"math"
	"sort"
	"time"
)

// PriceWindow is a time-indexed block of one field for a set of symbols.
// Every series is aligned to Index and uses NaN for a missing sample.
// Windows are never mutated; the helpers below return new windows.
type PriceWindow struct {
	Index  []time.Time
	Series map[string][]float64
}

// Empty reports whether the window holds no samples.
func (w PriceWindow) Empty() bool {
	return len(w.Index) == 0 || len(w.Series) == 0
}

// Has reports whether symbol has a column in the window.
func (w PriceWindow) Has(symbol string) bool {
	_, ok := w.Series[symbol]
	return ok
}

// Symbols returns the window's symbols in sorted order.
func (w PriceWindow) Symbols() []string {
	out := make([]string, 0, len(w.Series))
	for s := range w.Series {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Column returns the non-NaN values of symbol in time order.
func (w PriceWindow) Column(symbol string) []float64 {
	col := w.Series[symbol]
	out := make([]float64, 0, len(col))
	for _, v := range col {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Last returns the most recent non-NaN value of symbol.
func (w PriceWindow) Last(symbol string) (float64, bool) {
	col := w.Series[symbol]
	for i := len(col) - 1; i >= 0; i-- {
		if !math.IsNaN(col[i]) {
			return col[i], true
		}
	}
	return 0, false
}

// Max returns the largest non-NaN value of symbol.
func (w PriceWindow) Max(symbol string) (float64, bool) {
	found := false
	best := math.Inf(-1)
	for _, v := range w.Series[symbol] {
		if math.IsNaN(v) {
			continue
		}
		found = true
		if v > best {
			best = v
		}
	}
	return best, found
}

// Between keeps samples with from <= t < to.
func (w PriceWindow) Between(from, to time.Time) PriceWindow {
	return w.slice(func(t time.Time) bool { return !t.Before(from) && t.Before(to) })
}

// Since keeps samples with t >= from.
func (w PriceWindow) Since(from time.Time) PriceWindow {
	return w.slice(func(t time.Time) bool { return !t.Before(from) })
}

// Until keeps samples with t <= to.
func (w PriceWindow) Until(to time.Time) PriceWindow {
	return w.slice(func(t time.Time) bool { return !t.After(to) })
}

// Tail keeps the last n samples.
func (w PriceWindow) Tail(n int) PriceWindow {
	if n >= len(w.Index) {
		return w
	}
	if n < 0 {
		n = 0
	}
	start := len(w.Index) - n
	out := PriceWindow{
		Index:  append([]time.Time(nil), w.Index[start:]...),
		Series: make(map[string][]float64, len(w.Series)),
	}
	for sym, col := range w.Series {
		out.Series[sym] = append([]float64(nil), col[start:]...)
	}
	return out
}

func (w PriceWindow) slice(keep func(time.Time) bool) PriceWindow {
	var idx []int
	for i, t := range w.Index {
		if keep(t) {
			idx = append(idx, i)
		}
	}
	out := PriceWindow{
		Index:  make([]time.Time, len(idx)),
		Series: make(map[string][]float64, len(w.Series)),
	}
	for j, i := range idx {
		out.Index[j] = w.Index[i]
	}
	for sym, col := range w.Series {
		vals := make([]float64, len(idx))
		for j, i := range idx {
			vals[j] = col[i]
		}
		out.Series[sym] = vals
	}
	return out
}
