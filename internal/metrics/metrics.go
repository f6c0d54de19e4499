// Package metrics exposes the Prometheus collectors for the pipeline
// service. Collectors are registered on the default registry at init and
// served from /metrics in cmd/main.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "pipeline_"

var transitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "transitions_total",
		Help: "Confirmed stage transitions by target stage",
	},
	[]string{"target_stage"},
)

var transitionFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "transition_failures_total",
		Help: "Rejected or failed transition requests by reason",
	},
	[]string{"reason"},
)

var funnelComputeSeconds = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    prefix + "funnel_compute_seconds",
		Help:    "Wall time spent computing a funnel report from a snapshot",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	},
)

var funnelCacheLookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "funnel_cache_lookups_total",
		Help: "Funnel report cache lookups by result",
	},
	[]string{"result"},
)

// RecordTransition counts one confirmed transition into targetStage.
func RecordTransition(targetStage string) {
	transitionsTotal.WithLabelValues(targetStage).Inc()
}

// RecordTransitionFailure counts one failed transition request.
// reason is one of not_found, invalid_stage, lock_timeout, persistence.
func RecordTransitionFailure(reason string) {
	transitionFailuresTotal.WithLabelValues(reason).Inc()
}

// ObserveFunnelCompute records the duration of one funnel computation.
func ObserveFunnelCompute(d time.Duration) {
	funnelComputeSeconds.Observe(d.Seconds())
}

// RecordFunnelCacheLookup counts one cache hit or miss.
func RecordFunnelCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	funnelCacheLookupsTotal.WithLabelValues(result).Inc()
}
