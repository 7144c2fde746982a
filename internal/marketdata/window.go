package marketdata

import (
	"math"
	"sort"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// BuildWindow aligns per-symbol bars on the union of their timestamps and
// keeps the last lookback rows. Symbols without bars are omitted. When fill
// is set, gaps are forward-filled first and any leading gap is then
// back-filled from the earliest available value.
func BuildWindow(bars map[string][]domain.Bar, field domain.Field, lookback int, fill bool) domain.PriceWindow {
	seen := make(map[int64]time.Time)
	for _, series := range bars {
		for _, b := range series {
			seen[b.Time.UnixNano()] = b.Time
		}
	}
	if len(seen) == 0 {
		return domain.PriceWindow{Series: map[string][]float64{}}
	}

	index := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		index = append(index, t)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })
	pos := make(map[int64]int, len(index))
	for i, t := range index {
		pos[t.UnixNano()] = i
	}

	w := domain.PriceWindow{Index: index, Series: make(map[string][]float64, len(bars))}
	for sym, series := range bars {
		if len(series) == 0 {
			continue
		}
		col := make([]float64, len(index))
		for i := range col {
			col[i] = math.NaN()
		}
		for _, b := range series {
			col[pos[b.Time.UnixNano()]] = b.Value(field)
		}
		if fill {
			forwardFill(col)
			backFill(col)
		}
		w.Series[sym] = col
	}
	if lookback > 0 {
		w = w.Tail(lookback)
	}
	return w
}

func forwardFill(col []float64) {
	last := math.NaN()
	for i, v := range col {
		if math.IsNaN(v) {
			col[i] = last
			continue
		}
		last = v
	}
}

func backFill(col []float64) {
	next := math.NaN()
	for i := len(col) - 1; i >= 0; i-- {
		if math.IsNaN(col[i]) {
			col[i] = next
			continue
		}
		next = col[i]
	}
}
