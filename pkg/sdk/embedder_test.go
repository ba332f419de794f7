package sdk

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/docreview/internal/domain"
)

type plainEmbedder struct{ err error }

func (p plainEmbedder) Embed(context.Context, string) (EmbeddingResult, error) {
	return EmbeddingResult{Embedding: []float32{1, 0}, TotalTokens: 2}, p.err
}

type bulkEmbedder struct {
	plainEmbedder
	calls int
}

func (b *bulkEmbedder) BatchEmbed(_ context.Context, texts []string) ([]EmbeddingResult, error) {
	b.calls++
	out := make([]EmbeddingResult, len(texts))
	for i := range out {
		out[i] = EmbeddingResult{Embedding: []float32{0, 1}, PromptTokens: 1, TotalTokens: 1}
	}
	return out, nil
}

func TestAdaptEmbedder_Plain(t *testing.T) {
	e := adaptEmbedder(plainEmbedder{})
	if _, ok := e.(domain.BatchEmbedder); ok {
		t.Fatal("plain embedder must not advertise batching")
	}
	r, err := e.Embed(context.Background(), "x")
	if err != nil || r.TotalTokens != 2 || len(r.Embedding) != 2 {
		t.Fatalf("got %+v, %v", r, err)
	}

	failing := adaptEmbedder(plainEmbedder{err: errors.New("offline")})
	if _, err := failing.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestAdaptEmbedder_Batch(t *testing.T) {
	user := &bulkEmbedder{}
	res, err := domain.EmbedMany(context.Background(), adaptEmbedder(user), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.calls != 1 || len(res.Embeddings) != 3 || res.TotalTokens != 3 {
		t.Errorf("calls=%d vectors=%d tokens=%d", user.calls, len(res.Embeddings), res.TotalTokens)
	}
}
