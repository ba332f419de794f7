package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
	"github.com/kailas-cloud/docreview/internal/metrics"
)

// MaxProviderBatch caps the number of texts sent in one provider call.
const MaxProviderBatch = 256

// QuotaGuard is the slice of Quota the metered embedder needs.
type QuotaGuard interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// Metered enforces the token quota around an embedder and publishes remaining quota.
// Request counts and latency are recorded by the transport.
type Metered struct {
	inner    domain.Embedder
	provider string
	model    string
	quota    QuotaGuard
	logger   *zap.Logger
}

// NewMetered wraps inner. quota may be nil.
func NewMetered(inner domain.Embedder, provider, model string, quota QuotaGuard, logger *zap.Logger) *Metered {
	return &Metered{inner: inner, provider: provider, model: model, quota: quota, logger: logger}
}

// Embed vectorizes one text.
func (m *Metered) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := m.check(ctx, 1); err != nil {
		return domain.EmbeddingResult{}, err
	}
	start := time.Now()
	res, err := m.inner.Embed(ctx, text)
	if err != nil {
		m.logger.Error("embed failed",
			zap.String("provider", m.provider),
			zap.String("model", m.model),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	m.spend(res.TotalTokens)
	m.logger.Debug("embed done",
		zap.String("model", m.model),
		zap.Int("dims", len(res.Embedding)),
		zap.Int("tokens", res.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// BatchEmbed vectorizes texts in provider-sized slices, re-checking the quota before each slice.
func (m *Metered) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	var out domain.BatchEmbeddingResult
	for off := 0; off < len(texts); off += MaxProviderBatch {
		part := texts[off:min(off+MaxProviderBatch, len(texts))]
		if err := m.check(ctx, len(part)); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		res, err := m.batch(ctx, part)
		if err != nil {
			m.logger.Error("batch embed failed",
				zap.String("provider", m.provider),
				zap.Int("offset", off),
				zap.Int("size", len(part)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed at %d: %w", off, err)
		}
		m.spend(res.TotalTokens)
		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// HealthCheck delegates to the provider when it supports one.
func (m *Metered) HealthCheck(ctx context.Context) error {
	if hc, ok := m.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (m *Metered) batch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.EmbedMany(ctx, m.inner, texts)
}

func (m *Metered) check(ctx context.Context, n int) error {
	if m.quota == nil {
		return nil
	}
	if err := m.quota.Check(ctx); err != nil {
		m.logger.Warn("embedding quota rejected request",
			zap.String("provider", m.provider),
			zap.Int("texts", n),
			zap.Error(err),
		)
		return fmt.Errorf("quota: %w", err)
	}
	return nil
}

func (m *Metered) spend(tokens int) {
	if m.quota == nil || tokens <= 0 {
		return
	}
	m.quota.Record(int64(tokens))
	g := metrics.EmbeddingBudgetTokensRemaining
	g.WithLabelValues(m.provider, "daily").Set(float64(m.quota.RemainingDaily()))
	g.WithLabelValues(m.provider, "monthly").Set(float64(m.quota.RemainingMonthly()))
}
