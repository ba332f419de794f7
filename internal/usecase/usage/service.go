// Package usage reports embedding spend against the configured quota.
package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/docreview/internal/domain/usage"
)

// Service builds usage reports.
type Service struct {
	quota          QuotaReader
	provider       string
	costPerMillion float64
	now            func() time.Time
}

// New creates a Service. quota may be nil when no provider spends tokens.
func New(quota QuotaReader, provider string, costPerMillion float64) *Service {
	return &Service{quota: quota, provider: provider, costPerMillion: costPerMillion, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Report returns the spend for the period window containing now.
func (s *Service) Report(_ context.Context, p domusage.Period) domusage.Report {
	start, end := p.Bounds(s.now())
	r := domusage.Report{Period: p, Start: start, End: end, Provider: s.provider, Limit: -1, Remaining: -1}
	if s.quota == nil {
		return r
	}
	if p == domusage.PeriodMonth {
		r.Tokens, r.Remaining = s.quota.MonthlyUsed(), s.quota.RemainingMonthly()
		r.Limit = s.quota.MonthlyLimit()
	} else {
		r.Tokens, r.Remaining = s.quota.DailyUsed(), s.quota.RemainingDaily()
		r.Limit = s.quota.DailyLimit()
	}
	if r.Limit == 0 {
		r.Limit = -1
	}
	// 1 USD = 1000 millidollars
	r.CostMillidollars = int64(float64(r.Tokens) * s.costPerMillion / 1_000)
	return r
}
