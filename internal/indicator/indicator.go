// Package indicator implements the technical indicators used by the exit
// logic. Outputs are aligned to the input; indices before the first full
// lookback hold NaN.
package indicator

import "math"

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA returns the n-period simple moving average of values.
func SMA(values []float64, n int) []float64 {
	out := nanSlice(len(values))
	if n <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// EMA returns the n-period exponential moving average, seeded with the
// simple average of the first n values.
func EMA(values []float64, n int) []float64 {
	return emaFrom(values, n, n-1)
}

// emaFrom starts the average at index start, seeded with the simple average
// of the n values ending there.
func emaFrom(values []float64, n, start int) []float64 {
	out := nanSlice(len(values))
	if n <= 0 || start < n-1 || start >= len(values) {
		return out
	}
	var sum float64
	for i := start - n + 1; i <= start; i++ {
		sum += values[i]
	}
	prev := sum / float64(n)
	out[start] = prev
	k := 2.0 / float64(n+1)
	for i := start + 1; i < len(values); i++ {
		prev = (values[i]-prev)*k + prev
		out[i] = prev
	}
	return out
}

// MACD computes the moving average convergence/divergence line, its signal
// line and the histogram (macd - signal). Both averages start on the slow
// period's first full window, matching TA-Lib's seeding.
func MACD(values []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	if slow < fast {
		fast, slow = slow, fast
	}
	n := len(values)
	macd = nanSlice(n)
	sig = nanSlice(n)
	hist = nanSlice(n)
	if fast <= 0 || signal <= 0 || n < slow {
		return macd, sig, hist
	}

	start := slow - 1
	fastEMA := emaFrom(values, fast, start)
	slowEMA := emaFrom(values, slow, start)
	for i := start; i < n; i++ {
		macd[i] = fastEMA[i] - slowEMA[i]
	}

	signalEMA := emaFrom(macd[start:], signal, signal-1)
	for i, v := range signalEMA {
		j := start + i
		sig[j] = v
		if !math.IsNaN(v) {
			hist[j] = macd[j] - v
		}
	}
	return macd, sig, hist
}

// Diff returns the first difference: out[i] = values[i+1] - values[i].
func Diff(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := range out {
		out[i] = values[i+1] - values[i]
	}
	return out
}

// Last returns the final element, or NaN for an empty slice.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}
