package fingerprint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/docreview/internal/db"
	"github.com/kailas-cloud/docreview/internal/domain"
	"github.com/kailas-cloud/docreview/internal/domain/duplicate"
)

func entry(id string) duplicate.Entry {
	return duplicate.Entry{
		DocumentID:  id,
		Vector:      []float32{1, 0, 0, 0},
		Fingerprint: duplicate.Fingerprint{Vendor: "acme", Amount: "100.00", IssueDate: "2024-05-01", InvoiceNo: "inv1"},
		CreatedAt:   time.UnixMilli(1714550400000).UTC(),
	}
}

func TestEnsureIndex_CreatesFlatCosine(t *testing.T) {
	var created *db.Schema
	ms := &mockStore{createIndexFn: func(_ context.Context, schema *db.Schema) error {
		created = schema
		return nil
	}}
	if err := New(ms, 4).EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("expected FT.CREATE")
	}
	if created.Index != domain.KeyPrefix+"fp:idx" || created.Prefix != domain.KeyPrefix+"fp:" {
		t.Errorf("unexpected index %s prefix %s", created.Index, created.Prefix)
	}
	if err := created.Validate(); err != nil {
		t.Fatalf("schema invalid: %v", err)
	}
	last := created.Fields[len(created.Fields)-1]
	if last.Kind != db.FieldVector || last.Dim != 4 {
		t.Errorf("unexpected vector field %+v", last)
	}
}

func TestEnsureIndex_SkipsExisting(t *testing.T) {
	ms := &mockStore{
		indexExistsFn: func(context.Context, string) (bool, error) { return true, nil },
		createIndexFn: func(context.Context, *db.Schema) error {
			t.Fatal("must not create an existing index")
			return nil
		},
	}
	if err := New(ms, 4).EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureIndex_RaceIsTolerated(t *testing.T) {
	ms := &mockStore{createIndexFn: func(context.Context, *db.Schema) error { return db.ErrIndexExists }}
	if err := New(ms, 4).EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpsert_WritesHash(t *testing.T) {
	var key string
	var fields map[string]string
	ms := &mockStore{hsetFn: func(_ context.Context, hashes ...db.Hash) error {
		if len(hashes) != 1 {
			t.Fatalf("expected one hash, got %d", len(hashes))
		}
		key, fields = hashes[0].Key, hashes[0].Fields
		return nil
	}}
	if err := New(ms, 4).Upsert(context.Background(), entry("doc-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != domain.KeyPrefix+"fp:doc-1" {
		t.Errorf("unexpected key %q", key)
	}
	if fields[fieldDocID] != "doc-1" || fields[fieldAmount] != "100.00" || fields[fieldCreatedAt] != "1714550400000" {
		t.Errorf("unexpected fields %v", fields)
	}
	if len(fields[fieldVector]) != 16 {
		t.Errorf("expected 16-byte vector blob, got %d", len(fields[fieldVector]))
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	e := entry("doc-1")
	e.Vector = []float32{1, 2}
	if err := New(&mockStore{}, 4).Upsert(context.Background(), e); err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestUpsertMany(t *testing.T) {
	var n int
	ms := &mockStore{hsetFn: func(_ context.Context, hashes ...db.Hash) error {
		n = len(hashes)
		return nil
	}}
	r := New(ms, 4)
	if err := r.UpsertMany(context.Background(), []duplicate.Entry{entry("a"), entry("b")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 items, got %d", n)
	}
	if err := r.UpsertMany(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestNearest_ExcludesSelfAndParses(t *testing.T) {
	var got *db.KNNQuery
	ms := &mockStore{searchKNNFn: func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		got = q
		return &db.SearchResult{Total: 2, Entries: []db.SearchEntry{
			{Key: domain.KeyPrefix + "fp:doc-2", Score: 0.97, Fields: map[string]string{
				fieldDocID: "doc-2", fieldVendor: "acme", fieldAmount: "100.00",
				fieldCreatedAt: "1714550400000",
			}},
			{Key: domain.KeyPrefix + "fp:doc-1", Score: 1, Fields: map[string]string{fieldDocID: "doc-1"}},
		}}, nil
	}}

	hits, err := New(ms, 4).Nearest(context.Background(), []float32{1, 0, 0, 0}, 10, "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Tags) != 1 || !got.Tags[0].Negate || got.Tags[0].Value != "doc-1" {
		t.Errorf("expected negated self filter, got %+v", got.Tags)
	}
	if got.VectorField != fieldVector || got.K != 10 {
		t.Errorf("unexpected query %+v", got)
	}
	if len(hits) != 1 {
		t.Fatalf("expected self to be dropped, got %d hits", len(hits))
	}
	h := hits[0]
	if h.DocumentID != "doc-2" || h.Score != 0.97 || h.Fingerprint.Vendor != "acme" {
		t.Errorf("unexpected hit %+v", h)
	}
	if !h.CreatedAt.Equal(time.UnixMilli(1714550400000)) {
		t.Errorf("unexpected created_at %v", h.CreatedAt)
	}
}

func TestNearest_StoreErrorIsIndexUnavailable(t *testing.T) {
	ms := &mockStore{searchKNNFn: func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return nil, errors.New("connection refused")
	}}
	_, err := New(ms, 4).Nearest(context.Background(), []float32{1, 0, 0, 0}, 5, "")
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestReset(t *testing.T) {
	var dropped, created bool
	var purged string
	ms := &mockStore{
		dropIndexFn: func(context.Context, string) error {
			dropped = true
			return db.ErrIndexNotFound
		},
		purgeFn: func(_ context.Context, prefix string) (int, error) {
			purged = prefix
			return 2, nil
		},
		createIndexFn: func(context.Context, *db.Schema) error {
			created = true
			return nil
		},
	}
	if err := New(ms, 4).Reset(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dropped || !created || purged != domain.KeyPrefix+"fp:" {
		t.Errorf("dropped=%v created=%v purged=%q", dropped, created, purged)
	}
}
