package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Embedding provider metrics. Labels: provider is the configured provider
// name, model the provider-side model id.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docreview", Subsystem: "embedding", Name: "requests_total",
		Help: "Embedding provider calls by status",
	}, []string{"provider", "model", "status"})

	EmbeddingRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "docreview", Subsystem: "embedding", Name: "request_duration_seconds",
		Help:    "Latency of successful embedding provider calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"provider", "model"})

	EmbeddingTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docreview", Subsystem: "embedding", Name: "tokens_total",
		Help: "Tokens billed by the embedding provider",
	}, []string{"provider", "model", "type"})

	EmbeddingErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docreview", Subsystem: "embedding", Name: "errors_total",
		Help: "Failed embedding calls by kind (auth, rate_limit, timeout, short_response, ...)",
	}, []string{"provider", "model", "kind"})

	EmbeddingBudgetTokensRemaining = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "docreview", Subsystem: "embedding", Name: "quota_tokens_remaining",
		Help: "Tokens left in the quota window, -1 when unlimited",
	}, []string{"provider", "window"})

	EmbeddingCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docreview", Subsystem: "embedding", Name: "cache_total",
		Help: "Embedding cache lookups by result (hit, miss)",
	}, []string{"result"})
)

// EmbeddingCall records one successful provider round-trip.
func EmbeddingCall(provider, model string, took time.Duration, promptTokens, totalTokens int) {
	EmbeddingRequestsTotal.WithLabelValues(provider, model, "success").Inc()
	EmbeddingRequestDuration.WithLabelValues(provider, model).Observe(took.Seconds())
	if totalTokens > 0 {
		EmbeddingTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
		EmbeddingTokensTotal.WithLabelValues(provider, model, "total").Add(float64(totalTokens))
	}
}

// EmbeddingFailure records one failed provider round-trip.
func EmbeddingFailure(provider, model, kind string) {
	EmbeddingRequestsTotal.WithLabelValues(provider, model, "error").Inc()
	EmbeddingErrorsTotal.WithLabelValues(provider, model, kind).Inc()
}
