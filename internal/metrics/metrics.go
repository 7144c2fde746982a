// Package metrics holds the engine's Prometheus collectors. They are
// registered in init() and served by the HTTP server at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// OrdersTotal counts submitted orders by side and outcome (ok|error|duplicate).
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "momobot_orders_total",
			Help: "Orders submitted",
		},
		[]string{"side", "result"},
	)

	// EntriesSkipped counts candidates that passed the signal checks but
	// could not be entered.
	EntriesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "momobot_entries_skipped_total",
			Help: "Entry candidates skipped after signalling",
		},
		[]string{"reason"},
	)

	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "momobot_exits_total",
			Help: "Position exits by reason",
		},
		[]string{"reason"},
	)

	UniverseSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "momobot_universe_size",
			Help: "Instruments selected for the current session",
		},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "momobot_open_positions",
			Help: "Positions recorded by the engine",
		},
	)

	// FetchFailures counts upstream calls that exhausted their retries.
	FetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "momobot_fetch_failures_total",
			Help: "Upstream fetches that exhausted their retry budget",
		},
		[]string{"op"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "momobot_cache_lookups_total",
			Help: "Cache lookups by cache and result (hit|miss)",
		},
		[]string{"cache", "result"},
	)

	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "momobot_job_runs_total",
			Help: "Scheduled job executions by job and result",
		},
		[]string{"job", "result"},
	)

	Fills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "momobot_fills_total",
			Help: "Fill events received from the trade stream",
		},
		[]string{"side"},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersTotal,
		EntriesSkipped,
		ExitsTotal,
		UniverseSize,
		OpenPositions,
		FetchFailures,
		CacheLookups,
		JobRuns,
		Fills,
	)
}

// CacheObserver returns a hit/miss callback for the named cache.
func CacheObserver(cache string) func(hit bool) {
	return func(hit bool) {
		result := "miss"
		if hit {
			result = "hit"
		}
		CacheLookups.WithLabelValues(cache, result).Inc()
	}
}
