package domain

import (
	"context"
	"fmt"
)

// Embedder turns text into a fixed-length vector. Rule content and document
// contexts go through the same contract so their cosine similarity is meaningful.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes several texts in one provider call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker is implemented by embedders backed by a remote provider.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult is one vector plus the tokens the provider billed for it.
// Cache hits report zero tokens.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult holds vectors in input order and summed token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

func (b *BatchEmbeddingResult) append(r EmbeddingResult) {
	b.Embeddings = append(b.Embeddings, r.Embedding)
	b.PromptTokens += r.PromptTokens
	b.TotalTokens += r.TotalTokens
}

// EmbedEach embeds texts one call at a time. Providers without a batch
// endpoint implement BatchEmbed with it.
func EmbedEach(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	out := BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for i, text := range texts {
		r, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
		out.append(r)
	}
	return out, nil
}

// EmbedMany uses e's batch endpoint when it has one and EmbedEach otherwise.
// The result always carries exactly one vector per text.
func EmbedMany(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return BatchEmbeddingResult{}, nil
	}
	be, ok := e.(BatchEmbedder)
	if !ok {
		return EmbedEach(ctx, e, texts)
	}
	res, err := be.BatchEmbed(ctx, texts)
	if err != nil {
		return BatchEmbeddingResult{}, err
	}
	if len(res.Embeddings) != len(texts) {
		return BatchEmbeddingResult{}, fmt.Errorf("provider returned %d vectors for %d texts", len(res.Embeddings), len(texts))
	}
	return res, nil
}

// InstructionEmbedder prefixes every text with a fixed instruction. Rules
// and document contexts use different instructions for asymmetric retrieval.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// WithInstruction wraps inner. An empty instruction returns inner as is.
func WithInstruction(inner Embedder, instruction string) Embedder {
	if instruction == "" {
		return inner
	}
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed embeds instruction+text.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	r, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return r, nil
}

// BatchEmbed prefixes each text and hands the batch to EmbedMany.
func (e *InstructionEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.instruction + t
	}
	res, err := EmbedMany(ctx, e.inner, prefixed)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed: %w", err)
	}
	return res, nil
}

// HealthCheck forwards to inner when it can be probed.
func (e *InstructionEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
