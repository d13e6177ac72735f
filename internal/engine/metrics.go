package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atmn_jobs_total",
			Help: "Total number of finished simulation jobs.",
		},
		[]string{"status"},
	)

	budgetFreeKB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "atmn_memory_budget_free_kb",
			Help: "Unreserved portion of the memory budget in kilobytes.",
		},
	)

	simulateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "atmn_simulate_duration_seconds",
			Help:    "Wall-clock duration of the simulate stage in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal)
	prometheus.MustRegister(budgetFreeKB)
	prometheus.MustRegister(simulateDuration)
}
