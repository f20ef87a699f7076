package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search and ranking metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of search requests by profile and outcome",
		},
		[]string{"profile", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"profile"},
	)

	RankingCandidates = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ranking_candidates",
			Help:      "Number of candidates scored per ranking phase",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"profile", "phase"},
	)
)

func searchCollectors() []prometheus.Collector {
	return []prometheus.Collector{SearchRequestsTotal, SearchDuration, RankingCandidates}
}
