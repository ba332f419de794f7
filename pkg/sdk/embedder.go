package sdk

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/docreview/internal/domain"
)

// Embedder converts rule and document text to vectors. Without one the
// client uses a local feature-hashing embedder. Implementations that also
// satisfy BatchEmbedder get whole rule sets in one call during index rebuilds.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder is an optional Embedder extension.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) ([]EmbeddingResult, error)
}

// EmbeddingResult is one vector and the tokens billed for it. Token counts
// feed the usage report only; zero is fine for local models.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

func adaptEmbedder(e Embedder) domain.Embedder {
	if b, ok := e.(BatchEmbedder); ok {
		return &batchAdapter{adapter: adapter{e}, batch: b}
	}
	return &adapter{e}
}

type adapter struct{ user Embedder }

func (a *adapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.user.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult(r), nil
}

type batchAdapter struct {
	adapter
	batch BatchEmbedder
}

func (a *batchAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	rs, err := a.batch.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(rs))}
	for i, r := range rs {
		out.Embeddings[i] = r.Embedding
		out.PromptTokens += r.PromptTokens
		out.TotalTokens += r.TotalTokens
	}
	return out, nil
}
