package document

import (
	"context"

	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
)

// Repository defines the storage contract for documents.
type Repository interface {
	Create(ctx context.Context, d domdoc.Document, entries []domaudit.Entry) error
	Get(ctx context.Context, id string) (domdoc.Document, error)
	List(ctx context.Context, q domdoc.Query) (domdoc.Page, error)
	SoftDelete(ctx context.Context, id string, entries []domaudit.Entry) error
}

// Assessor runs and commits a risk assessment.
type Assessor interface {
	Assess(ctx context.Context, id string) (domdoc.Document, error)
}

// FingerprintIndex keeps the duplicate detector's index in step with the documents table.
type FingerprintIndex interface {
	Index(ctx context.Context, doc domdoc.Document) error
	Forget(ctx context.Context, id string) error
}

// HistoryReader reads the audit trail.
type HistoryReader interface {
	History(ctx context.Context, documentID string) ([]domaudit.Entry, error)
}
