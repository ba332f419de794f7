package policy

import (
	"context"

	"github.com/kailas-cloud/docreview/internal/domain"
)

// Embedder vectorizes the document context with the query-side instruction.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
