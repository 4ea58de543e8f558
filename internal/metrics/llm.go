package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Language model Prometheus metrics.
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of language model invocations",
		},
		[]string{"provider", "model", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Language model invocation duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Total tokens reported by the language model",
		},
		[]string{"provider", "model", "type"}, // "prompt" / "completion"
	)
)

var llmMetricsOnce sync.Once

// RegisterLLMMetrics registers the language model metrics.
func RegisterLLMMetrics() {
	register(&llmMetricsOnce,
		LLMRequestsTotal,
		LLMRequestDuration,
		LLMTokensTotal,
	)
}

// ObserveLLM records a successful invocation.
func ObserveLLM(provider, model string, d time.Duration, promptTokens, completionTokens int) {
	LLMRequestsTotal.WithLabelValues(provider, model, "success").Inc()
	LLMRequestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
	if promptTokens > 0 || completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
		LLMTokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// LLMFailed records a failed invocation.
func LLMFailed(provider, model string) {
	LLMRequestsTotal.WithLabelValues(provider, model, "error").Inc()
}
