// Package embedding wraps the embedding provider with a shared token quota,
// metrics and a provider-free hashing fallback.
package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
)

// QuotaAction defines what happens once a window is exhausted.
type QuotaAction string

const (
	// QuotaWarn logs and lets the request through.
	QuotaWarn QuotaAction = "warn"
	// QuotaReject fails the request with domain.ErrEmbeddingQuotaExceeded.
	QuotaReject QuotaAction = "reject"
)

// CounterStore persists window counters so instances share one quota.
// IncrBy may be called repeatedly for the same key.
type CounterStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

type window struct {
	name   string
	layout string
	limit  int64
	used   int64
	start  time.Time
	trunc  func(time.Time) time.Time
}

func (w *window) roll(now time.Time) {
	if s := w.trunc(now); s.After(w.start) {
		w.start, w.used = s, 0
	}
}

func (w *window) remaining() int64 {
	if w.limit == 0 {
		return -1
	}
	return max(w.limit-w.used, 0)
}

func (w *window) exhausted() bool { return w.limit > 0 && w.used >= w.limit }

// Quota tracks embedding tokens per UTC day and month. Check never leaves the process.
// Record updates memory first and then writes behind to the store.
type Quota struct {
	mu       sync.Mutex
	provider string
	action   QuotaAction
	day      window
	month    window
	store    CounterStore
	now      func() time.Time
	logger   *zap.Logger
}

// NewQuota creates a quota. A zero limit means unlimited for that window.
func NewQuota(provider string, dailyLimit, monthlyLimit int64, action QuotaAction, logger *zap.Logger) *Quota {
	q := &Quota{
		provider: provider,
		action:   action,
		day:      window{name: "daily", layout: "2006-01-02", limit: dailyLimit, trunc: startOfDay},
		month:    window{name: "monthly", layout: "2006-01", limit: monthlyLimit, trunc: startOfMonth},
		now:      time.Now,
		logger:   logger,
	}
	now := q.now().UTC()
	q.day.start, q.month.start = startOfDay(now), startOfMonth(now)
	return q
}

// WithClock overrides the time source. Call before first use.
func (q *Quota) WithClock(now func() time.Time) *Quota {
	q.now = now
	t := now().UTC()
	q.day.start, q.month.start = startOfDay(t), startOfMonth(t)
	return q
}

// WithStore attaches persistence and loads the current window counters from it.
func (q *Quota) WithStore(ctx context.Context, store CounterStore) *Quota {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.store = store
	for _, w := range []*window{&q.day, &q.month} {
		v, err := store.Get(ctx, q.key(w))
		if err != nil {
			q.logger.Warn("load quota counter", zap.String("window", w.name), zap.Error(err))
			continue
		}
		w.used = v
	}
	q.logger.Info("quota loaded",
		zap.String("provider", q.provider),
		zap.Int64("daily_used", q.day.used),
		zap.Int64("monthly_used", q.month.used),
	)
	return q
}

func (q *Quota) key(w *window) string {
	return fmt.Sprintf("%sbudget:%s:%s:%s", domain.KeyPrefix, q.provider, w.name, w.start.Format(w.layout))
}

func (q *Quota) rollLocked() {
	now := q.now().UTC()
	q.day.roll(now)
	q.month.roll(now)
}

// Check reports whether another request may spend tokens.
func (q *Quota) Check(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollLocked()

	for _, w := range []*window{&q.day, &q.month} {
		if !w.exhausted() {
			continue
		}
		if q.action == QuotaReject {
			return fmt.Errorf("%s window %d/%d: %w", w.name, w.used, w.limit, domain.ErrEmbeddingQuotaExceeded)
		}
		q.logger.Warn("embedding quota exceeded",
			zap.String("provider", q.provider),
			zap.String("window", w.name),
			zap.Int64("used", w.used),
			zap.Int64("limit", w.limit),
		)
		return nil
	}
	return nil
}

// Record adds spent tokens to both windows.
func (q *Quota) Record(tokens int64) {
	if tokens <= 0 {
		return
	}
	q.mu.Lock()
	q.rollLocked()
	q.day.used += tokens
	q.month.used += tokens
	store := q.store
	keys := []string{q.key(&q.day), q.key(&q.month)}
	q.mu.Unlock()

	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, k := range keys {
		if err := store.IncrBy(ctx, k, tokens); err != nil {
			q.logger.Warn("persist quota counter", zap.String("key", k), zap.Error(err))
		}
	}
}

func (q *Quota) read(fn func() int64) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollLocked()
	return fn()
}

// RemainingDaily returns tokens left today, -1 when unlimited.
func (q *Quota) RemainingDaily() int64 { return q.read(q.day.remaining) }

// RemainingMonthly returns tokens left this month, -1 when unlimited.
func (q *Quota) RemainingMonthly() int64 { return q.read(q.month.remaining) }

// DailyUsed returns tokens spent today.
func (q *Quota) DailyUsed() int64 { return q.read(func() int64 { return q.day.used }) }

// MonthlyUsed returns tokens spent this month.
func (q *Quota) MonthlyUsed() int64 { return q.read(func() int64 { return q.month.used }) }

// DailyLimit returns the daily cap.
func (q *Quota) DailyLimit() int64 { return q.day.limit }

// MonthlyLimit returns the monthly cap.
func (q *Quota) MonthlyLimit() int64 { return q.month.limit }

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
