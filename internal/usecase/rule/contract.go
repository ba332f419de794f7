package rule

import (
	"context"

	"github.com/kailas-cloud/docreview/internal/domain"
	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
)

// Repository persists rules and their version history.
type Repository interface {
	Save(ctx context.Context, r domrule.Rule) (domrule.Rule, error)
	Get(ctx context.Context, id string) (domrule.Rule, error)
	List(ctx context.Context, q domrule.ListQuery) (domrule.Page, error)
	Versions(ctx context.Context, id string) ([]domrule.Version, error)
	Delete(ctx context.Context, ids []string) (int, error)
	All(ctx context.Context) ([]domrule.Rule, error)
	ExistsTitle(ctx context.Context, title string) (bool, error)
}

// Embedder vectorizes rule text. A domain.BatchEmbedder is used for rebuilds when available.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Locker serializes exclusive jobs. Acquire fails with domain.ErrJobInProgress when held.
type Locker interface {
	Acquire(ctx context.Context, name string) (func(context.Context), error)
}
