// Package duplicate finds probable resubmissions of the same invoice by
// comparing fingerprint vectors.
package duplicate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	"github.com/kailas-cloud/docreview/internal/domain/duplicate"
)

// rebuildBatch is the number of documents read and written per rebuild step.
const rebuildBatch = 200

// Config holds detector parameters.
type Config struct {
	Dims      int
	Threshold float64
	TopK      int
}

// DefaultConfig returns the production parameters.
func DefaultConfig() Config {
	return Config{Dims: DefaultDims, Threshold: 0.92, TopK: 10}
}

// Service maintains the fingerprint index and answers duplicate queries.
type Service struct {
	index  Index
	source Source
	cfg    Config
	logger *zap.Logger
}

// New creates a duplicate detector.
func New(index Index, source Source, cfg Config, logger *zap.Logger) *Service {
	if cfg.Dims <= 0 {
		cfg.Dims = DefaultDims
	}
	return &Service{index: index, source: source, cfg: cfg, logger: logger}
}

// Entry builds the index entry of doc. ok is false when the document has no identifying fields.
func (s *Service) Entry(doc domdoc.Document) (duplicate.Entry, bool) {
	fp := doc.Fingerprint()
	vec := Vectorize(fp, s.cfg.Dims)
	if vec == nil {
		return duplicate.Entry{}, false
	}
	return duplicate.Entry{DocumentID: doc.ID(), Vector: vec, Fingerprint: fp, CreatedAt: doc.CreatedAt()}, true
}

// FindDuplicates returns other documents whose fingerprint similarity reaches the
// threshold, best first. The document itself is never a candidate.
func (s *Service) FindDuplicates(ctx context.Context, doc domdoc.Document) ([]duplicate.Candidate, error) {
	e, ok := s.Entry(doc)
	if !ok {
		return nil, nil
	}
	neighbors, err := s.index.Nearest(ctx, e.Vector, s.cfg.TopK, doc.ID())
	if err != nil {
		if errors.Is(err, domain.ErrIndexUnavailable) {
			return nil, err
		}
		return nil, domain.NewIndexUnavailable("fingerprint", "nearest", err)
	}

	var out []duplicate.Candidate
	for _, n := range neighbors {
		if n.DocumentID == doc.ID() || n.Score < s.cfg.Threshold {
			continue
		}
		out = append(out, duplicate.Candidate{
			DocumentID:    n.DocumentID,
			Score:         n.Score,
			MatchedFields: e.Fingerprint.Matched(n.Fingerprint),
			CreatedAt:     n.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return duplicate.Less(out[i], out[j]) })
	return out, nil
}

// Index upserts the fingerprint of doc. Documents without identifying fields are removed instead.
func (s *Service) Index(ctx context.Context, doc domdoc.Document) error {
	e, ok := s.Entry(doc)
	if !ok {
		return s.Forget(ctx, doc.ID())
	}
	if err := s.index.Upsert(ctx, e); err != nil {
		return fmt.Errorf("index fingerprint %s: %w", doc.ID(), err)
	}
	return nil
}

// Forget removes the fingerprint of a document.
func (s *Service) Forget(ctx context.Context, id string) error {
	if err := s.index.Delete(ctx, id); err != nil {
		return fmt.Errorf("forget fingerprint %s: %w", id, err)
	}
	return nil
}

// Rebuild re-indexes every live document and returns how many fingerprints were written.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	var entries []duplicate.Entry
	err := s.source.Each(ctx, rebuildBatch, func(docs []domdoc.Document) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, d := range docs {
			if e, ok := s.Entry(d); ok {
				entries = append(entries, e)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("load documents: %w", err)
	}

	if r, ok := s.index.(replacer); ok {
		if err := r.Replace(ctx, entries); err != nil {
			return 0, fmt.Errorf("replace fingerprint index: %w", err)
		}
	} else {
		if err := s.index.Reset(ctx); err != nil {
			return 0, fmt.Errorf("reset fingerprint index: %w", err)
		}
		for start := 0; start < len(entries); start += rebuildBatch {
			end := min(start+rebuildBatch, len(entries))
			if err := s.index.UpsertMany(ctx, entries[start:end]); err != nil {
				return start, fmt.Errorf("write fingerprints: %w", err)
			}
		}
	}

	s.logger.Info("fingerprint index rebuilt", zap.Int("documents", len(entries)))
	return len(entries), nil
}
