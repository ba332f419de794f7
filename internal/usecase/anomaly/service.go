package anomaly

import (
	"context"
	"fmt"
	"time"

	domanomaly "github.com/kailas-cloud/docreview/internal/domain/anomaly"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
)

// Service loads cohort history and runs Detect.
type Service struct {
	repo Repository
	cfg  Config
	now  func() time.Time
}

// New creates an anomaly service.
func New(repo Repository, cfg Config) *Service {
	return &Service{repo: repo, cfg: cfg, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Tags returns the anomaly tags of doc against its (vendor, category) cohort
// over the trailing window.
func (s *Service) Tags(ctx context.Context, doc domdoc.Document) ([]string, error) {
	now := s.now().UTC()
	since := now.AddDate(0, 0, -s.cfg.WindowDays)

	amounts, err := s.repo.CohortAmounts(ctx, doc, since)
	if err != nil {
		return nil, fmt.Errorf("cohort amounts: %w", err)
	}
	return Detect(doc, domanomaly.Compute(amounts), now, s.cfg), nil
}
