package risk

import (
	"context"

	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	"github.com/kailas-cloud/docreview/internal/domain/duplicate"
	"github.com/kailas-cloud/docreview/internal/domain/policy"
)

// Repository reads documents and commits assessments with compare-and-set.
type Repository interface {
	Get(ctx context.Context, id string) (domdoc.Document, error)
	Update(ctx context.Context, next domdoc.Document, entries []domaudit.Entry) error
}

// PolicyEvaluator is the policy engine.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, doc domdoc.Document) ([]policy.Flag, error)
}

// AnomalyDetector tags unusual documents.
type AnomalyDetector interface {
	Tags(ctx context.Context, doc domdoc.Document) ([]string, error)
}

// DuplicateFinder looks up probable resubmissions.
type DuplicateFinder interface {
	FindDuplicates(ctx context.Context, doc domdoc.Document) ([]duplicate.Candidate, error)
}
