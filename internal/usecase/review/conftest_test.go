package review

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/docreview/internal/domain"
	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
)

// memRepo stores documents with version compare-and-set and records audit entries.
type memRepo struct {
	mu      sync.Mutex
	docs    map[string]domdoc.Document
	entries []domaudit.Entry
	updates int
}

func newMemRepo(docs ...domdoc.Document) *memRepo {
	r := &memRepo{docs: map[string]domdoc.Document{}}
	for _, d := range docs {
		r.docs[d.ID()] = d
	}
	return r
}

func (r *memRepo) Get(_ context.Context, id string) (domdoc.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return domdoc.Document{}, domain.ErrNotFound
	}
	return d, nil
}

func (r *memRepo) Update(_ context.Context, next domdoc.Document, entries []domaudit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.docs[next.ID()]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version() != next.Version()-1 {
		return domain.NewConcurrentModification(next.ID(), cur.Version())
	}
	r.docs[next.ID()] = next
	r.entries = append(r.entries, entries...)
	r.updates++
	return nil
}

type mockAssessor struct {
	calls    int
	assessFn func(ctx context.Context, id string) (domdoc.Document, error)
}

func (m *mockAssessor) Assess(ctx context.Context, id string) (domdoc.Document, error) {
	m.calls++
	if m.assessFn != nil {
		return m.assessFn(ctx, id)
	}
	return domdoc.Document{}, nil
}

var t0 = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func uploaded(t *testing.T, id string) domdoc.Document {
	t.Helper()
	d, err := domdoc.New(id, domdoc.Fields{
		Vendor:   "Acme",
		Category: "meals",
		Amount:   decimal.NewNullDecimal(decimal.NewFromInt(100)),
	}, t0)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// tick returns a clock advancing one second per call.
func tick() func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}
