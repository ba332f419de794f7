// Package rule manages policy rules and the live rule index the policy engine reads.
package rule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
	"github.com/kailas-cloud/docreview/internal/metrics"
	"github.com/kailas-cloud/docreview/internal/observability"
	"github.com/kailas-cloud/docreview/internal/vectorindex"
)

// JobRefreshIndex is the job lock name of RefreshIndex.
const JobRefreshIndex = "refresh_rule_index"

// DefaultEmbedBatchSize is the number of rules embedded per provider call during a rebuild.
const DefaultEmbedBatchSize = 32

// Index is the live rule index.
type Index = vectorindex.Manager[domrule.Rule]

// NewIndex creates an empty, unbuilt rule index.
func NewIndex() *Index { return vectorindex.NewManager[domrule.Rule]() }

// Service handles rule CRUD and keeps the rule index in step.
type Service struct {
	repo      Repository
	index     *Index
	embed     Embedder
	locker    Locker
	logger    *zap.Logger
	batchSize int
	now       func() time.Time
}

// New creates a rule service.
func New(repo Repository, index *Index, embed Embedder, locker Locker, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		index:     index,
		embed:     embed,
		locker:    locker,
		logger:    logger,
		batchSize: DefaultEmbedBatchSize,
		now:       time.Now,
	}
}

// WithEmbedBatchSize configures the rebuild batch size.
func (s *Service) WithEmbedBatchSize(n int) *Service {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Save creates a rule (empty ID) or appends a new version of an existing one.
// The index is updated optimistically after commit. An embedding failure there is
// logged and left for the next RefreshIndex.
func (s *Service) Save(ctx context.Context, in domrule.Input) (domrule.Rule, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return domrule.Rule{}, err
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	saved, err := s.repo.Save(ctx, domrule.Rule{
		ID:         id,
		Title:      in.Title,
		Summary:    in.Summary,
		Content:    in.Content,
		Category:   in.Category,
		Tags:       in.Tags,
		RiskTags:   in.RiskTags,
		Scope:      in.Scope,
		ChangeNote: in.ChangeNote,
		UpdatedAt:  s.now().UTC(),
	})
	if err != nil {
		return domrule.Rule{}, fmt.Errorf("save rule: %w", err)
	}
	s.upsertIndex(ctx, saved)
	return saved, nil
}

// Get returns a rule by ID.
func (s *Service) Get(ctx context.Context, id string) (domrule.Rule, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return domrule.Rule{}, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

// List returns one page of rules.
func (s *Service) List(ctx context.Context, q domrule.ListQuery) (domrule.Page, error) {
	page, err := s.repo.List(ctx, q.Clamp())
	if err != nil {
		return domrule.Page{}, fmt.Errorf("list rules: %w", err)
	}
	return page, nil
}

// Versions returns the history of a rule, newest first.
func (s *Service) Versions(ctx context.Context, id string) ([]domrule.Version, error) {
	vs, err := s.repo.Versions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list rule versions: %w", err)
	}
	return vs, nil
}

// Delete removes rules and their history, then drops them from the index.
func (s *Service) Delete(ctx context.Context, ids []string) (int, error) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return 0, domain.NewValidation("ids", "must not be empty")
	}
	n, err := s.repo.Delete(ctx, clean)
	if err != nil {
		return 0, fmt.Errorf("delete rules: %w", err)
	}
	updated, _ := s.index.Update(func(cur *vectorindex.Snapshot[domrule.Rule]) (*vectorindex.Snapshot[domrule.Rule], error) {
		return cur.Without(clean...), nil
	})
	if updated {
		metrics.RuleIndexSize.Set(float64(s.index.CurrentSnapshot().Len()))
	}
	return n, nil
}

// RefreshIndex rebuilds the index from every stored rule and swaps it in.
// The previous snapshot stays live on error or cancellation.
func (s *Service) RefreshIndex(ctx context.Context) (int, error) {
	ctx, span := observability.Start(ctx, "rule.RefreshIndex")
	n, err := s.refreshIndex(ctx)
	span.SetAttributes(attribute.Int("rules", n))
	observability.End(span, err)
	return n, err
}

func (s *Service) refreshIndex(ctx context.Context) (int, error) {
	release, err := s.locker.Acquire(ctx, JobRefreshIndex)
	if err != nil {
		return 0, fmt.Errorf("refresh rule index: %w", err)
	}
	defer release(context.WithoutCancel(ctx))

	start := time.Now()
	rules, err := s.repo.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("load rules: %w", err)
	}

	items := make([]vectorindex.Item[domrule.Rule], 0, len(rules))
	for from := 0; from < len(rules); from += s.batchSize {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("refresh rule index: %w", err)
		}
		to := min(from+s.batchSize, len(rules))
		chunk := rules[from:to]
		texts := make([]string, len(chunk))
		for i, r := range chunk {
			texts[i] = r.IndexText()
		}
		res, err := s.batchEmbed(ctx, texts)
		if err != nil {
			return 0, domain.NewIndexUnavailable("rules", "embed rules", err)
		}
		for i, r := range chunk {
			items = append(items, vectorindex.Item[domrule.Rule]{ID: r.ID, Vector: res.Embeddings[i], Payload: r})
		}
	}

	snap, err := vectorindex.NewSnapshot(items)
	if err != nil {
		return 0, fmt.Errorf("build rule snapshot: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("refresh rule index: %w", err)
	}
	s.index.Swap(snap)

	metrics.RuleIndexSize.Set(float64(snap.Len()))
	metrics.RuleIndexRefreshDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("Rule index refreshed",
		zap.Int("rules", snap.Len()),
		zap.Duration("took", time.Since(start)),
	)
	return snap.Len(), nil
}

func (s *Service) batchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	res, err := domain.EmbedMany(ctx, s.embed, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)
	return res, nil
}

func (s *Service) upsertIndex(ctx context.Context, r domrule.Rule) {
	if s.index.CurrentSnapshot() == nil {
		return
	}
	res, err := s.embed.Embed(ctx, r.IndexText())
	if err != nil {
		s.logger.Warn("Rule saved but not indexed", zap.String("rule_id", r.ID), zap.Error(err))
		return
	}
	updated, err := s.index.Update(func(cur *vectorindex.Snapshot[domrule.Rule]) (*vectorindex.Snapshot[domrule.Rule], error) {
		return cur.With(vectorindex.Item[domrule.Rule]{ID: r.ID, Vector: res.Embedding, Payload: r})
	})
	if err != nil {
		s.logger.Warn("Rule saved but not indexed", zap.String("rule_id", r.ID), zap.Error(err))
		return
	}
	if updated {
		metrics.RuleIndexSize.Set(float64(s.index.CurrentSnapshot().Len()))
	}
}

// IsIndexBuilt reports whether a snapshot has ever been published.
func (s *Service) IsIndexBuilt() bool { return s.index.CurrentSnapshot() != nil }
