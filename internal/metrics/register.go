package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestDuration, httpRequestsTotal, httpInFlight,
		EmbeddingRequestsTotal, EmbeddingRequestDuration, EmbeddingTokensTotal,
		EmbeddingErrorsTotal, EmbeddingBudgetTokensRemaining, EmbeddingCacheTotal,
		AssessmentsTotal, AssessmentDuration, PolicyFlagsTotal, DuplicateCandidatesTotal,
		ReviewTransitionsTotal, RuleIndexSize, RuleIndexRefreshDuration,
		IngestMessagesTotal,
	}
}

// Register adds every docreview collector to reg. Registering twice into the same
// registry is not an error.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	return nil
}
