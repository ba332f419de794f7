// Package risk runs every detector on a document and commits the combined assessment.
package risk

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	"github.com/kailas-cloud/docreview/internal/domain/duplicate"
	"github.com/kailas-cloud/docreview/internal/domain/policy"
	"github.com/kailas-cloud/docreview/internal/metrics"
	"github.com/kailas-cloud/docreview/internal/observability"
)

// Service is the risk aggregator.
type Service struct {
	repo    Repository
	policy  PolicyEvaluator
	anomaly AnomalyDetector
	dups    DuplicateFinder
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a risk aggregator.
func New(repo Repository, p PolicyEvaluator, a AnomalyDetector, d DuplicateFinder, logger *zap.Logger) *Service {
	return &Service{repo: repo, policy: p, anomaly: a, dups: d, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Assess evaluates the stored document and commits the result.
// A failing detector fails the whole call and nothing is written.
// The review status is never changed.
func (s *Service) Assess(ctx context.Context, id string) (domdoc.Document, error) {
	ctx, span := observability.Start(ctx, "risk.Assess", attribute.String("document.id", id))
	start := time.Now()
	next, err := s.assess(ctx, id)
	observability.End(span, err)
	metrics.AssessmentsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	metrics.AssessmentDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return domdoc.Document{}, err
	}
	return next, nil
}

func (s *Service) assess(ctx context.Context, id string) (domdoc.Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	next, entries, err := s.Plan(ctx, doc)
	if err != nil {
		return domdoc.Document{}, err
	}
	if err := s.repo.Update(ctx, next, entries); err != nil {
		return domdoc.Document{}, fmt.Errorf("commit assessment %s: %w", id, err)
	}
	Observe(next.Assessment())
	s.logger.Debug("document assessed",
		zap.String("document_id", id),
		zap.Int64("version", next.Version()),
		zap.Int("flags", len(next.Assessment().Flags)),
		zap.Int("anomaly_tags", len(next.Assessment().AnomalyTags)),
		zap.Int("duplicates", len(next.Assessment().Duplicates)),
	)
	return next, nil
}

// Plan runs the detectors concurrently and returns the assessed document with its
// audit entry, without writing. The caller commits them with CAS on doc's version.
func (s *Service) Plan(ctx context.Context, doc domdoc.Document) (domdoc.Document, []domaudit.Entry, error) {
	a, err := s.Compute(ctx, doc)
	if err != nil {
		return domdoc.Document{}, nil, err
	}
	next := doc.WithAssessment(a, s.now())
	entry := domaudit.Entry{
		DocumentID: doc.ID(),
		FieldName:  domaudit.FieldRiskAssessment,
		OldValue:   Summary(doc),
		NewValue:   Summary(next),
		ReviewerID: domaudit.SystemReviewer,
		Timestamp:  next.UpdatedAt(),
	}
	return next, []domaudit.Entry{entry}, nil
}

// Compute runs policy, anomaly and duplicate detection in parallel.
func (s *Service) Compute(ctx context.Context, doc domdoc.Document) (domdoc.Assessment, error) {
	var (
		flags []policy.Flag
		tags  []string
		cands []duplicate.Candidate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if flags, err = s.policy.Evaluate(gctx, doc); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if tags, err = s.anomaly.Tags(gctx, doc); err != nil {
			return fmt.Errorf("anomaly: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if cands, err = s.dups.FindDuplicates(gctx, doc); err != nil {
			return fmt.Errorf("duplicates: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domdoc.Assessment{}, fmt.Errorf("assess %s: %w", doc.ID(), err)
	}
	return domdoc.Assessment{Flags: flags, AnomalyTags: tags, Duplicates: cands}, nil
}

// Observe records the counters of a committed assessment.
func Observe(a domdoc.Assessment) {
	for _, f := range a.Flags {
		metrics.PolicyFlagsTotal.WithLabelValues(string(f.Severity)).Inc()
	}
	metrics.DuplicateCandidatesTotal.Add(float64(len(a.Duplicates)))
}

// Summary renders an assessment for the audit trail. Empty if the document was never assessed.
func Summary(doc domdoc.Document) string {
	if !doc.Assessed() {
		return ""
	}
	a := doc.Assessment()
	top := policy.Highest(a.Flags)
	if top == "" {
		top = "NONE"
	}
	return fmt.Sprintf("flags=%d highest=%s anomalies=%d duplicates=%d",
		len(a.Flags), top, len(a.AnomalyTags), len(a.Duplicates))
}
