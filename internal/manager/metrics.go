package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheBytesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shrimp",
		Subsystem: "manager",
		Name:      "cache_bytes",
		Help:      "Bytes currently held by the transformed-image cache",
	})

	cacheEntriesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shrimp",
		Subsystem: "manager",
		Name:      "cache_entries",
		Help:      "Entries currently held by the transformed-image cache",
	})

	pendingKeysGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shrimp",
		Subsystem: "manager",
		Name:      "pending_unique_keys",
		Help:      "Distinct keys waiting for a free worker",
	})

	freeWorkersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shrimp",
		Subsystem: "manager",
		Name:      "free_workers",
		Help:      "Workers with no outstanding job",
	})

	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shrimp",
		Subsystem: "manager",
		Name:      "cache_hits_total",
		Help:      "Requests served directly from the cache",
	})

	transformsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shrimp",
		Subsystem: "manager",
		Name:      "transforms_total",
		Help:      "Successful transformations",
	})

	transformFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shrimp",
		Subsystem: "manager",
		Name:      "transform_failures_total",
		Help:      "Failed transformations (every coalesced waiter gets 404)",
	})

	overloadRejectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shrimp",
		Subsystem: "manager",
		Name:      "overload_rejects_total",
		Help:      "Admissions rejected with 503 because the pending queue was full",
	})

	timeoutRejectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shrimp",
		Subsystem: "manager",
		Name:      "timeout_rejects_total",
		Help:      "Pending requests rejected with 504 by the timeout sweep",
	})
)

func init() {
	prometheus.MustRegister(
		cacheBytesGauge,
		cacheEntriesGauge,
		pendingKeysGauge,
		freeWorkersGauge,
		cacheHitsTotal,
		transformsTotal,
		transformFailuresTotal,
		overloadRejectsTotal,
		timeoutRejectsTotal,
	)
}
