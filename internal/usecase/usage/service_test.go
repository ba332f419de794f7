package usage

import (
	"context"
	"testing"
	"time"

	domusage "github.com/kailas-cloud/docreview/internal/domain/usage"
)

type mockQuota struct {
	dailyLimit, monthlyLimit         int64
	dailyUsed, monthlyUsed           int64
	remainingDaily, remainingMonthly int64
}

func (m *mockQuota) DailyLimit() int64       { return m.dailyLimit }
func (m *mockQuota) MonthlyLimit() int64     { return m.monthlyLimit }
func (m *mockQuota) DailyUsed() int64        { return m.dailyUsed }
func (m *mockQuota) MonthlyUsed() int64      { return m.monthlyUsed }
func (m *mockQuota) RemainingDaily() int64   { return m.remainingDaily }
func (m *mockQuota) RemainingMonthly() int64 { return m.remainingMonthly }

func fixed() time.Time { return time.Date(2026, 4, 15, 9, 0, 0, 0, time.UTC) }

func TestReport_Day(t *testing.T) {
	q := &mockQuota{dailyLimit: 10000, dailyUsed: 3000, remainingDaily: 7000, monthlyLimit: 100000, monthlyUsed: 50000}
	r := New(q, "openai", 0.02).WithClock(fixed).Report(context.Background(), domusage.PeriodDay)

	if !r.Start.Equal(time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)) || !r.End.Equal(time.Date(2026, 4, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("window = %v..%v", r.Start, r.End)
	}
	if r.Tokens != 3000 || r.Limit != 10000 || r.Remaining != 7000 {
		t.Errorf("report = %+v", r)
	}
	if r.Exhausted() {
		t.Error("not exhausted")
	}
}

func TestReport_MonthExhausted(t *testing.T) {
	q := &mockQuota{monthlyLimit: 1_000_000, monthlyUsed: 1_000_000, remainingMonthly: 0}
	r := New(q, "openai", 2).WithClock(fixed).Report(context.Background(), domusage.PeriodMonth)

	if !r.Start.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", r.Start)
	}
	if !r.Exhausted() {
		t.Error("expected exhausted")
	}
	// 1M tokens at $2 per million
	if r.CostMillidollars != 2000 {
		t.Errorf("cost = %d", r.CostMillidollars)
	}
}

func TestReport_Unlimited(t *testing.T) {
	r := New(nil, "hash", 0).WithClock(fixed).Report(context.Background(), domusage.PeriodDay)
	if r.Limit != -1 || r.Remaining != -1 || r.Tokens != 0 {
		t.Errorf("report = %+v", r)
	}

	q := &mockQuota{dailyUsed: 10, remainingDaily: -1}
	r = New(q, "openai", 0).WithClock(fixed).Report(context.Background(), domusage.PeriodDay)
	if r.Limit != -1 || r.Exhausted() {
		t.Errorf("zero limit must be unlimited: %+v", r)
	}
}
