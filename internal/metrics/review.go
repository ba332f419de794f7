package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/docreview/internal/domain"
)

// Review pipeline Prometheus metrics.
var (
	AssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docreview",
			Name:      "assessments_total",
			Help:      "Risk assessments by outcome",
		},
		[]string{"outcome"}, // see Outcome
	)

	AssessmentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docreview",
			Name:      "assessment_duration_seconds",
			Help:      "Risk assessment duration in seconds, detectors plus commit",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	PolicyFlagsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docreview",
			Name:      "policy_flags_total",
			Help:      "Policy flags raised by severity",
		},
		[]string{"severity"},
	)

	DuplicateCandidatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docreview",
			Name:      "duplicate_candidates_total",
			Help:      "Duplicate candidates reported",
		},
	)

	ReviewTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docreview",
			Name:      "review_transitions_total",
			Help:      "Review operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	RuleIndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docreview",
			Name:      "rule_index_size",
			Help:      "Rules in the live index snapshot",
		},
	)

	RuleIndexRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docreview",
			Name:      "rule_index_refresh_duration_seconds",
			Help:      "Full rule index rebuild duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

// Outcome maps an error to the outcome label of assessments_total and review_transitions_total.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, domain.ErrIndexUnavailable):
		return "index_unavailable"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrEmbeddingQuotaExceeded), errors.Is(err, domain.ErrRateLimited):
		return "quota"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
