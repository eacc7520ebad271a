package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search pipeline Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoutdex",
			Name:      "search_requests_total",
			Help:      "Total number of search requests",
		},
		[]string{"status"}, // "ok" / "degraded" / "error"
	)

	SearchStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scoutdex",
			Name:      "search_stage_duration_seconds",
			Help:      "Search stage duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"stage"}, // "retrieve" / "rank" / "total"
	)

	SearchShortlistSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scoutdex",
			Name:      "search_shortlist_size",
			Help:      "Shortlist size entering the ranking stage",
			Buckets:   []float64{0, 1, 5, 10, 15, 20, 25, 30, 40, 50},
		},
	)

	RerankHintsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoutdex",
			Name:      "rerank_hints_total",
			Help:      "Re-rank hint outcomes",
		},
		[]string{"result"}, // "applied" / "fallback" / "disabled"
	)

	RerankHintCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoutdex",
			Name:      "rerank_hint_cache_total",
			Help:      "Re-rank hint cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	FeedbackEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoutdex",
			Name:      "feedback_events_total",
			Help:      "Accepted feedback events by signal",
		},
		[]string{"signal"},
	)

	FeedbackDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scoutdex",
			Name:      "feedback_dropped_total",
			Help:      "Feedback events dropped due to a full buffer",
		},
	)

	LearningCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoutdex",
			Name:      "learning_cycles_total",
			Help:      "Learning cycle outcomes",
		},
		[]string{"status"}, // "applied" / "skipped" / "error"
	)

	WeightsGeneration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scoutdex",
			Name:      "weights_generation",
			Help:      "Active ranking weights generation",
		},
	)

	CorpusRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scoutdex",
			Name:      "corpus_records",
			Help:      "Records in the active corpus snapshot",
		},
	)

	VectorIndexReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scoutdex",
			Name:      "vector_index_ready",
			Help:      "Whether the vector index is built for the active corpus (1/0)",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchStageDuration)
	prometheus.MustRegister(SearchShortlistSize)
	prometheus.MustRegister(RerankHintsTotal)
	prometheus.MustRegister(RerankHintCacheTotal)
	prometheus.MustRegister(FeedbackEventsTotal)
	prometheus.MustRegister(FeedbackDroppedTotal)
	prometheus.MustRegister(LearningCyclesTotal)
	prometheus.MustRegister(WeightsGeneration)
	prometheus.MustRegister(CorpusRecords)
	prometheus.MustRegister(VectorIndexReady)
	pipelineMetricsRegistered = true
}
