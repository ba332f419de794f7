package review

import (
	"context"

	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
)

// Repository reads documents and commits review mutations with compare-and-set.
type Repository interface {
	Get(ctx context.Context, id string) (domdoc.Document, error)
	Update(ctx context.Context, next domdoc.Document, entries []domaudit.Entry) error
}

// Assessor re-runs risk assessment after a risk-relevant correction.
type Assessor interface {
	Assess(ctx context.Context, id string) (domdoc.Document, error)
}
