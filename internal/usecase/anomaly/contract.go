package anomaly

import (
	"context"
	"time"

	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
)

// Repository supplies the historical amounts of a document's cohort.
type Repository interface {
	CohortAmounts(ctx context.Context, doc domdoc.Document, since time.Time) ([]float64, error)
}
