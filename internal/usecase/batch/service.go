// Package batch re-assesses many documents in chunks, each chunk committed atomically.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
	dombatch "github.com/kailas-cloud/docreview/internal/domain/batch"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	"github.com/kailas-cloud/docreview/internal/metrics"
	"github.com/kailas-cloud/docreview/internal/usecase/risk"
)

// JobReassess is the job lock name of Reassess.
const JobReassess = "reassess"

// Defaults for batch sizing.
const (
	DefaultChunkSize = 20
	MaxBatchSize     = 1000
)

// Service handles batch re-assessment with per-item error reporting.
type Service struct {
	repo         Repository
	planner      Planner
	locker       Locker
	logger       *zap.Logger
	chunkSize    int
	maxBatchSize int
}

// New creates a batch service.
func New(repo Repository, planner Planner, locker Locker, logger *zap.Logger) *Service {
	return &Service{
		repo:         repo,
		planner:      planner,
		locker:       locker,
		logger:       logger,
		chunkSize:    DefaultChunkSize,
		maxBatchSize: MaxBatchSize,
	}
}

// WithChunkSize configures how many documents commit together.
func (s *Service) WithChunkSize(n int) *Service {
	if n > 0 {
		s.chunkSize = n
	}
	return s
}

// WithMaxBatchSize configures the maximum number of ids per call.
func (s *Service) WithMaxBatchSize(n int) *Service {
	if n > 0 {
		s.maxBatchSize = n
	}
	return s
}

// Reassess re-runs risk assessment for ids. Each chunk is planned in full, then
// committed in one transaction with compare-and-set per document. Committed chunks
// stay committed when a later one fails. Ids never attempted because ctx ended are
// reported as skipped with the context error.
func (s *Service) Reassess(ctx context.Context, ids []string) ([]dombatch.Result, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, domain.NewValidation("ids", "at least one id is required")
	}
	if len(ids) > s.maxBatchSize {
		return nil, domain.NewValidation("ids", fmt.Sprintf("batch size exceeds %d", s.maxBatchSize))
	}

	release, err := s.locker.Acquire(ctx, JobReassess)
	if err != nil {
		return nil, fmt.Errorf("acquire %s lock: %w", JobReassess, err)
	}
	defer release(context.WithoutCancel(ctx))

	results := make([]dombatch.Result, len(ids))
	for start := 0; start < len(ids); start += s.chunkSize {
		end := min(start+s.chunkSize, len(ids))
		if err := ctx.Err(); err != nil {
			skip(results, ids, start, err)
			break
		}
		if cascade := s.reassessChunk(ctx, ids[start:end], results[start:end]); cascade != nil {
			for i := end; i < len(ids); i++ {
				results[i] = dombatch.NewError(ids[i], cascade)
			}
			break
		}
	}

	sum := dombatch.Summarize(results)
	s.logger.Info("batch reassess finished",
		zap.Int("total", len(ids)), zap.Int("ok", sum.OK),
		zap.Int("failed", sum.Failed), zap.Int("skipped", sum.Skipped),
	)
	return results, nil
}

// BackfillUnassessed re-assesses up to limit documents that were never assessed.
func (s *Service) BackfillUnassessed(ctx context.Context, limit int) ([]dombatch.Result, error) {
	if limit <= 0 || limit > s.maxBatchSize {
		limit = s.maxBatchSize
	}
	ids, err := s.repo.UnassessedIDs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list unassessed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.Reassess(ctx, ids)
}

// reassessChunk fills results for one chunk. A non-nil return is an error that
// dooms every later chunk too (quota, rate limit).
func (s *Service) reassessChunk(ctx context.Context, ids []string, results []dombatch.Result) error {
	muts := make([]domdoc.Mutation, 0, len(ids))
	slots := make([]int, 0, len(ids))
	var cascade error

	for i, id := range ids {
		doc, err := s.repo.Get(ctx, id)
		if err != nil {
			results[i] = dombatch.NewError(id, fmt.Errorf("get: %w", err))
			continue
		}
		next, entries, err := s.planner.Plan(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				skip(results, ids, 0, ctx.Err())
				return nil
			}
			results[i] = dombatch.NewError(id, err)
			metrics.AssessmentsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
			if isCascade(err) {
				for j := i + 1; j < len(ids); j++ {
					results[j] = dombatch.NewError(ids[j], err)
				}
				cascade = err
				break
			}
			continue
		}
		muts = append(muts, domdoc.Mutation{Next: next, Entries: entries})
		slots = append(slots, i)
	}

	// планы готовы, но контекст отменён: чанк не коммитим
	if err := ctx.Err(); err != nil {
		for _, i := range slots {
			results[i] = dombatch.NewSkipped(ids[i], err)
		}
		return nil
	}
	if len(muts) == 0 {
		return cascade
	}

	errs, err := s.repo.UpdateMany(ctx, muts)
	if err != nil {
		for _, i := range slots {
			if ctx.Err() != nil {
				results[i] = dombatch.NewSkipped(ids[i], ctx.Err())
				continue
			}
			results[i] = dombatch.NewError(ids[i], fmt.Errorf("commit chunk: %w", err))
		}
		return cascade
	}
	for k, i := range slots {
		metrics.AssessmentsTotal.WithLabelValues(metrics.Outcome(errs[k])).Inc()
		if errs[k] != nil {
			results[i] = dombatch.NewError(ids[i], errs[k])
			continue
		}
		risk.Observe(muts[k].Next.Assessment())
		results[i] = dombatch.NewOK(ids[i])
	}
	return cascade
}

func isCascade(err error) bool {
	return errors.Is(err, domain.ErrEmbeddingQuotaExceeded) || errors.Is(err, domain.ErrRateLimited)
}

// skip marks every result from start on that has not been decided yet.
func skip(results []dombatch.Result, ids []string, start int, cause error) {
	for i := start; i < len(ids); i++ {
		if results[i].ID() == "" {
			results[i] = dombatch.NewSkipped(ids[i], cause)
		}
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
