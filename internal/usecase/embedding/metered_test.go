package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
)

type stubEmbedder struct {
	vec      []float32
	tokens   int
	err      error
	calls    int
	batchLen []int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	s.calls++
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	return domain.EmbeddingResult{Embedding: s.vec, PromptTokens: s.tokens, TotalTokens: s.tokens}, nil
}

type stubBatchEmbedder struct{ stubEmbedder }

func (s *stubBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	s.batchLen = append(s.batchLen, len(texts))
	if s.err != nil {
		return domain.BatchEmbeddingResult{}, s.err
	}
	out := domain.BatchEmbeddingResult{TotalTokens: s.tokens * len(texts), PromptTokens: s.tokens * len(texts)}
	for range texts {
		out.Embeddings = append(out.Embeddings, s.vec)
	}
	return out, nil
}

func TestMetered_EmbedRecordsTokens(t *testing.T) {
	q := NewQuota("test", 1000, 0, QuotaReject, zap.NewNop())
	inner := &stubEmbedder{vec: []float32{1, 0}, tokens: 120}
	m := NewMetered(inner, "test", "model", q, zap.NewNop())

	res, err := m.Embed(context.Background(), "meal policy")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Embedding) != 2 || res.TotalTokens != 120 {
		t.Errorf("result = %+v", res)
	}
	if q.DailyUsed() != 120 {
		t.Errorf("quota used = %d", q.DailyUsed())
	}
}

func TestMetered_QuotaRejection(t *testing.T) {
	q := NewQuota("test", 10, 0, QuotaReject, zap.NewNop())
	q.Record(10)
	inner := &stubBatchEmbedder{stubEmbedder{vec: []float32{1}}}
	m := NewMetered(inner, "test", "model", q, zap.NewNop())

	if _, err := m.Embed(context.Background(), "x"); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Errorf("embed: %v", err)
	}
	if _, err := m.BatchEmbed(context.Background(), []string{"x"}); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Errorf("batch: %v", err)
	}
	if inner.calls != 0 || len(inner.batchLen) != 0 {
		t.Error("provider must not be called over quota")
	}
}

func TestMetered_ProviderError(t *testing.T) {
	inner := &stubEmbedder{err: domain.ErrEmbeddingProviderError}
	m := NewMetered(inner, "test", "model", nil, zap.NewNop())
	if _, err := m.Embed(context.Background(), "x"); !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestMetered_BatchSplitsProviderCalls(t *testing.T) {
	q := NewQuota("test", 0, 0, QuotaReject, zap.NewNop())
	inner := &stubBatchEmbedder{stubEmbedder{vec: []float32{1}, tokens: 2}}
	m := NewMetered(inner, "test", "model", q, zap.NewNop())

	texts := make([]string, MaxProviderBatch+3)
	res, err := m.BatchEmbed(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Embeddings) != len(texts) {
		t.Errorf("embeddings = %d", len(res.Embeddings))
	}
	if len(inner.batchLen) != 2 || inner.batchLen[0] != MaxProviderBatch || inner.batchLen[1] != 3 {
		t.Errorf("provider batches = %v", inner.batchLen)
	}
	if res.TotalTokens != 2*len(texts) || q.MonthlyUsed() != int64(2*len(texts)) {
		t.Errorf("tokens = %d, recorded %d", res.TotalTokens, q.MonthlyUsed())
	}
}

func TestMetered_BatchFallsBackToSingle(t *testing.T) {
	inner := &stubEmbedder{vec: []float32{1}, tokens: 1}
	m := NewMetered(inner, "test", "model", nil, zap.NewNop())

	res, err := m.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Embeddings) != 3 || inner.calls != 3 {
		t.Errorf("embeddings = %d, calls = %d", len(res.Embeddings), inner.calls)
	}

	empty, err := m.BatchEmbed(context.Background(), nil)
	if err != nil || empty.Embeddings != nil {
		t.Errorf("empty batch: %+v, %v", empty, err)
	}
}
