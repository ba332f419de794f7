package duplicate

import (
	"context"

	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	"github.com/kailas-cloud/docreview/internal/domain/duplicate"
)

// Index is a fingerprint vector index backend.
type Index interface {
	Upsert(ctx context.Context, e duplicate.Entry) error
	UpsertMany(ctx context.Context, entries []duplicate.Entry) error
	Delete(ctx context.Context, id string) error
	Reset(ctx context.Context) error
	Nearest(ctx context.Context, vector []float32, k int, excludeID string) ([]duplicate.Neighbor, error)
}

// replacer is implemented by backends that can swap their whole content atomically.
type replacer interface {
	Replace(ctx context.Context, entries []duplicate.Entry) error
}

// Source streams every live document for a rebuild.
type Source interface {
	Each(ctx context.Context, batchSize int, fn func([]domdoc.Document) error) error
}
