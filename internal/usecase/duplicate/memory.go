package duplicate

import (
	"context"
	"errors"

	"github.com/kailas-cloud/docreview/internal/domain"
	"github.com/kailas-cloud/docreview/internal/domain/duplicate"
	"github.com/kailas-cloud/docreview/internal/vectorindex"
)

// MemoryIndex is the in-process fingerprint backend built on immutable snapshots.
type MemoryIndex struct {
	m *vectorindex.Manager[duplicate.Entry]
}

// NewMemoryIndex creates an empty, queryable index.
func NewMemoryIndex() *MemoryIndex {
	m := vectorindex.NewManager[duplicate.Entry]()
	empty, _ := vectorindex.NewSnapshot[duplicate.Entry](nil)
	m.Swap(empty)
	return &MemoryIndex{m: m}
}

// Len returns the number of indexed fingerprints.
func (x *MemoryIndex) Len() int { return x.m.CurrentSnapshot().Len() }

// Upsert adds or replaces one fingerprint.
func (x *MemoryIndex) Upsert(ctx context.Context, e duplicate.Entry) error {
	return x.UpsertMany(ctx, []duplicate.Entry{e})
}

// UpsertMany adds or replaces fingerprints in one copy-on-write step.
func (x *MemoryIndex) UpsertMany(_ context.Context, entries []duplicate.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	items := toItems(entries)
	_, err := x.m.Update(func(cur *vectorindex.Snapshot[duplicate.Entry]) (*vectorindex.Snapshot[duplicate.Entry], error) {
		return cur.With(items...)
	})
	return err
}

// Delete removes a fingerprint. Unknown ids are ignored.
func (x *MemoryIndex) Delete(_ context.Context, id string) error {
	_, err := x.m.Update(func(cur *vectorindex.Snapshot[duplicate.Entry]) (*vectorindex.Snapshot[duplicate.Entry], error) {
		if _, ok := cur.Get(id); !ok {
			return cur, nil
		}
		return cur.Without(id), nil
	})
	return err
}

// Reset empties the index.
func (x *MemoryIndex) Reset(context.Context) error {
	empty, _ := vectorindex.NewSnapshot[duplicate.Entry](nil)
	x.m.Swap(empty)
	return nil
}

// Replace swaps in a snapshot holding exactly entries.
func (x *MemoryIndex) Replace(_ context.Context, entries []duplicate.Entry) error {
	snap, err := vectorindex.NewSnapshot(toItems(entries))
	if err != nil {
		return err
	}
	x.m.Swap(snap)
	return nil
}

// Nearest returns up to k neighbours of vector, never including excludeID.
func (x *MemoryIndex) Nearest(_ context.Context, vector []float32, k int, excludeID string) ([]duplicate.Neighbor, error) {
	snap := x.m.CurrentSnapshot()
	if snap.Len() == 0 {
		return nil, nil
	}
	hits, err := snap.Search(vector, k, func(id string) bool { return id == excludeID })
	if err != nil {
		if errors.Is(err, vectorindex.ErrDimensionMismatch) {
			return nil, domain.NewIndexUnavailable("fingerprint", "dimension mismatch", err)
		}
		return nil, err
	}
	out := make([]duplicate.Neighbor, len(hits))
	for i, h := range hits {
		out[i] = duplicate.Neighbor{
			DocumentID:  h.ID,
			Score:       h.Score,
			Fingerprint: h.Payload.Fingerprint,
			CreatedAt:   h.Payload.CreatedAt,
		}
	}
	return out, nil
}

func toItems(entries []duplicate.Entry) []vectorindex.Item[duplicate.Entry] {
	items := make([]vectorindex.Item[duplicate.Entry], len(entries))
	for i, e := range entries {
		items[i] = vectorindex.Item[duplicate.Entry]{ID: e.DocumentID, Vector: e.Vector, Payload: e}
	}
	return items
}
