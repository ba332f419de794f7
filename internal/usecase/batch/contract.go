package batch

import (
	"context"

	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
)

// Repository reads documents and commits a chunk of assessments in one transaction.
type Repository interface {
	Get(ctx context.Context, id string) (domdoc.Document, error)
	UpdateMany(ctx context.Context, muts []domdoc.Mutation) ([]error, error)
	UnassessedIDs(ctx context.Context, limit int) ([]string, error)
}

// Planner computes an assessment without writing it.
type Planner interface {
	Plan(ctx context.Context, doc domdoc.Document) (domdoc.Document, []domaudit.Entry, error)
}

// Locker serializes exclusive jobs across instances.
type Locker interface {
	Acquire(ctx context.Context, name string) (func(context.Context), error)
}
