package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total ledger operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	ledgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	cachePrecheckTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_cache_precheck_total",
			Help: "Cache pre-check lookups by state",
		},
		[]string{"state"},
	)

	sideEffectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_side_effect_failures_total",
			Help: "Best effort cache and event failures after commit",
		},
		[]string{"kind"},
	)
)

// ObserveOperation records one finished operation. result is "ok" or an
// error class such as "invalid_amount".
func ObserveOperation(operation, result string, started time.Time) {
	ledgerOperationsTotal.WithLabelValues(operation, result).Inc()
	ledgerOperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func ObservePrecheck(state string) {
	cachePrecheckTotal.WithLabelValues(state).Inc()
}

// SideEffectFailed counts a cache or publish failure that was swallowed.
func SideEffectFailed(kind string) {
	sideEffectFailuresTotal.WithLabelValues(kind).Inc()
}
