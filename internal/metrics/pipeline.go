package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Indexing and query pipeline metrics.
var (
	IndexedDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_documents_total",
			Help:      "Documents processed by the indexing pipeline",
		},
		[]string{"status"}, // "indexed" / "skipped" / "error"
	)

	IndexedPagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_pages_total",
			Help:      "Page records inserted into storage",
		},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Query pipeline runs",
		},
		[]string{"status"}, // "success" / "degraded" / "error"
	)

	SearchDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_degraded_total",
			Help:      "Searches that failed and were downgraded to an empty passage list",
		},
		[]string{"strategy"},
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"pipeline", "stage"},
	)
)

var pipelineMetricsOnce sync.Once

// RegisterPipelineMetrics registers the pipeline metrics.
func RegisterPipelineMetrics() {
	register(&pipelineMetricsOnce,
		IndexedDocumentsTotal,
		IndexedPagesTotal,
		QueriesTotal,
		SearchDegradedTotal,
		PipelineStageDuration,
	)
}
