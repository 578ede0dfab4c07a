package router

import "github.com/prometheus/client_golang/prometheus"

// Query outcomes.
const (
	outcomeRouted   = "routed"
	outcomeNoRoute  = "no_route"
	outcomeDegraded = "degenerate"
	outcomeError    = "error"
)

// Metrics holds the router's collectors.
type Metrics struct {
	queryDuration   *prometheus.HistogramVec
	queries         *prometheus.CounterVec
	notConverged    *prometheus.CounterVec
	degenerate      prometheus.Counter
	candidatePaths  prometheus.Gauge
	indexedPools    prometheus.Gauge
	poolSetDuration prometheus.Histogram
}

// NewMetrics creates the router collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sor_query_duration_seconds",
				Help:    "Time spent answering a swap query, by swap type.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
			},
			[]string{"swap_type"},
		),
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sor_queries_total",
				Help: "Total number of swap queries by outcome.",
			},
			[]string{"swap_type", "outcome"},
		),
		notConverged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sor_not_converged_total",
				Help: "Iterative estimates that hit their iteration cap, by stage.",
			},
			[]string{"stage"},
		),
		degenerate: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sor_degenerate_trials_total",
				Help: "Allocation trials abandoned as degenerate.",
			},
		),
		candidatePaths: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sor_candidate_paths",
				Help: "Number of priced candidate paths in the last query.",
			},
		),
		indexedPools: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sor_indexed_pools",
				Help: "Number of pools in the current snapshot.",
			},
		),
		poolSetDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sor_set_pools_duration_seconds",
				Help:    "Time spent replacing the pool snapshot.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(
		m.queryDuration,
		m.queries,
		m.notConverged,
		m.degenerate,
		m.candidatePaths,
		m.indexedPools,
		m.poolSetDuration,
	)
	return m
}
