package duplicate

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	"github.com/kailas-cloud/docreview/internal/domain/duplicate"
)

type mockIndex struct {
	upsertFn     func(ctx context.Context, e duplicate.Entry) error
	upsertManyFn func(ctx context.Context, entries []duplicate.Entry) error
	deleteFn     func(ctx context.Context, id string) error
	resetFn      func(ctx context.Context) error
	nearestFn    func(ctx context.Context, vector []float32, k int, excludeID string) ([]duplicate.Neighbor, error)
}

func (m *mockIndex) Upsert(ctx context.Context, e duplicate.Entry) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, e)
	}
	return nil
}

func (m *mockIndex) UpsertMany(ctx context.Context, entries []duplicate.Entry) error {
	if m.upsertManyFn != nil {
		return m.upsertManyFn(ctx, entries)
	}
	return nil
}

func (m *mockIndex) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockIndex) Reset(ctx context.Context) error {
	if m.resetFn != nil {
		return m.resetFn(ctx)
	}
	return nil
}

func (m *mockIndex) Nearest(ctx context.Context, vector []float32, k int, excludeID string) ([]duplicate.Neighbor, error) {
	if m.nearestFn != nil {
		return m.nearestFn(ctx, vector, k, excludeID)
	}
	return nil, nil
}

type sliceSource struct {
	docs []domdoc.Document
	err  error
}

func (s *sliceSource) Each(_ context.Context, batchSize int, fn func([]domdoc.Document) error) error {
	if s.err != nil {
		return s.err
	}
	for start := 0; start < len(s.docs); start += batchSize {
		end := min(start+batchSize, len(s.docs))
		if err := fn(s.docs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func invoice(t *testing.T, id, vendor, amount, date, no string, created time.Time) domdoc.Document {
	t.Helper()
	f := domdoc.Fields{Vendor: vendor, InvoiceNo: no}
	if amount != "" {
		f.Amount = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	}
	if date != "" {
		d, err := time.Parse(time.DateOnly, date)
		if err != nil {
			t.Fatal(err)
		}
		f.IssueDate = &d
	}
	d, err := domdoc.New(id, f, created)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
