// Package joblock serializes exclusive jobs (rule index refresh, batch reassessment)
// across instances with a redis lock, or within one process when no lock server is configured.
package joblock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
)

// Redis is a distributed job lock. A held lock is refreshed every ttl/2 until released,
// so jobs may outlive the TTL while a crashed holder frees the key after at most one TTL.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis creates a distributed job lock over a go-redis client.
func NewRedis(rdb redislock.RedisClient, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{client: redislock.New(rdb), ttl: ttl, logger: logger}
}

// Acquire takes the named lock without waiting. A held lock returns domain.ErrJobInProgress.
// The returned release func is idempotent.
func (r *Redis) Acquire(ctx context.Context, name string) (func(context.Context), error) {
	key := domain.KeyPrefix + "lock:" + name
	lock, err := r.client.Obtain(ctx, key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrJobInProgress)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", name, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(r.ttl / 2)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				rctx, cancel := context.WithTimeout(context.Background(), r.ttl/2)
				if err := lock.Refresh(rctx, r.ttl, nil); err != nil {
					r.logger.Warn("Job lock refresh failed", zap.String("job", name), zap.Error(err))
				}
				cancel()
			}
		}
	}()

	var once sync.Once
	return func(ctx context.Context) {
		once.Do(func() {
			close(stop)
			<-done
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.logger.Warn("Job lock release failed", zap.String("job", name), zap.Error(err))
			}
		})
	}, nil
}

// Local is an in-process job lock with the same contract as Redis.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal creates an in-process job lock.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// Acquire takes the named lock without waiting. A held lock returns domain.ErrJobInProgress.
func (l *Local) Acquire(_ context.Context, name string) (func(context.Context), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrJobInProgress)
	}
	l.held[name] = struct{}{}

	var once sync.Once
	return func(context.Context) {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}
