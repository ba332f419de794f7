package joblock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kailas-cloud/docreview/internal/domain"
)

func TestLocal_Exclusive(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "refresh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.Acquire(ctx, "refresh"); !errors.Is(err, domain.ErrJobInProgress) {
		t.Fatalf("expected ErrJobInProgress, got %v", err)
	}

	// independent names do not contend
	other, err := l.Acquire(ctx, "reassess")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other(ctx)

	release(ctx)
	release(ctx) // second call is a no-op

	again, err := l.Acquire(ctx, "refresh")
	if err != nil {
		t.Fatalf("expected lock after release, got %v", err)
	}
	again(ctx)
}

func TestLocal_ConcurrentAcquire(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var won atomic.Int32
	var wg sync.WaitGroup
	releases := make(chan func(context.Context), 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rel, err := l.Acquire(ctx, "job"); err == nil {
				won.Add(1)
				releases <- rel
			}
		}()
	}
	wg.Wait()
	close(releases)

	if won.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", won.Load())
	}
	for rel := range releases {
		rel(ctx)
	}
}
