// Package usage describes embedding token spend for the /usage report.
package usage

import (
	"fmt"
	"time"
)

// Period is the aggregation granularity.
type Period string

// Aggregation periods.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod accepts "day" and "month". Empty selects day.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth:
		return PeriodMonth, nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Bounds returns the UTC window of p containing t.
func (p Period) Bounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	if p == PeriodMonth {
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// Report is the embedding spend of the rule index and policy engine for one window.
// Limit and Remaining are -1 when the window is unlimited.
type Report struct {
	Period           Period
	Start            time.Time
	End              time.Time
	Provider         string
	Tokens           int64
	Limit            int64
	Remaining        int64
	CostMillidollars int64
}

// Exhausted reports whether a limited window has no tokens left.
func (r Report) Exhausted() bool { return r.Limit > 0 && r.Remaining <= 0 }
