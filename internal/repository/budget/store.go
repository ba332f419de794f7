// Package budget keeps embedding token counters in valkey, so every replica
// enforces one shared daily and monthly quota.
package budget

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/docreview/internal/db"
)

type counters interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

// Store is the valkey-backed quota CounterStore. Keys follow
// <prefix>budget:<provider>:daily|monthly:<period>.
type Store struct {
	kv       counters
	dailyTTL time.Duration
	monthTTL time.Duration
}

// New returns a Store. Each TTL should outlive its period (48h and 62 days
// in production) so a counter is never dropped while still current.
func New(kv counters, dailyTTL, monthTTL time.Duration) *Store {
	return &Store{kv: kv, dailyTTL: dailyTTL, monthTTL: monthTTL}
}

// IncrBy adds tokens to a period counter. Only the first increment of a
// period sets the expiry.
func (s *Store) IncrBy(ctx context.Context, key string, tokens int64) error {
	if tokens == 0 {
		return nil
	}
	if _, err := s.kv.IncrWithTTL(ctx, key, tokens, s.periodTTL(key)); err != nil {
		return fmt.Errorf("budget counter %s: %w", key, err)
	}
	return nil
}

// Get reads a period counter. A counter never written reads as zero.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	raw, err := s.kv.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("budget counter %s: %w", key, err)
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget counter %s holds %q: %w", key, raw, err)
	}
	return n, nil
}

func (s *Store) periodTTL(key string) time.Duration {
	if strings.Contains(key, ":daily:") {
		return s.dailyTTL
	}
	return s.monthTTL
}
