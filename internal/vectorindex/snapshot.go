// Package vectorindex is an in-process cosine index published as immutable snapshots.
// Readers take the current snapshot without locking; writers build a new snapshot
// and swap the pointer.
package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrDimensionMismatch signals a vector whose length differs from the snapshot.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Item is one indexed vector with its payload.
type Item[T any] struct {
	ID      string
	Vector  []float32
	Payload T
}

// Hit is a search result.
type Hit[T any] struct {
	ID      string
	Score   float64
	Payload T
}

// Snapshot is an immutable set of unit vectors. Never mutated after construction.
type Snapshot[T any] struct {
	items   []Item[T]
	byID    map[string]int
	dims    int
	builtAt time.Time
}

// NewSnapshot copies and L2-normalizes the vectors. Later items win on duplicate IDs.
// Zero vectors are rejected since they have no direction.
func NewSnapshot[T any](items []Item[T]) (*Snapshot[T], error) {
	dedup := make(map[string]Item[T], len(items))
	dims := 0
	for _, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("empty item id")
		}
		if dims == 0 {
			dims = len(it.Vector)
		}
		if len(it.Vector) != dims {
			return nil, fmt.Errorf("item %s: %w: got %d, want %d", it.ID, ErrDimensionMismatch, len(it.Vector), dims)
		}
		v, ok := normalize(it.Vector)
		if !ok {
			return nil, fmt.Errorf("item %s: zero vector", it.ID)
		}
		dedup[it.ID] = Item[T]{ID: it.ID, Vector: v, Payload: it.Payload}
	}

	s := &Snapshot[T]{
		items:   make([]Item[T], 0, len(dedup)),
		byID:    make(map[string]int, len(dedup)),
		dims:    dims,
		builtAt: time.Now().UTC(),
	}
	for _, it := range dedup {
		s.items = append(s.items, it)
	}
	sort.Slice(s.items, func(i, j int) bool { return s.items[i].ID < s.items[j].ID })
	for i, it := range s.items {
		s.byID[it.ID] = i
	}
	return s, nil
}

// Len returns the number of items.
func (s *Snapshot[T]) Len() int { return len(s.items) }

// Dims returns the vector dimension, 0 for an empty snapshot.
func (s *Snapshot[T]) Dims() int { return s.dims }

// BuiltAt returns the construction time.
func (s *Snapshot[T]) BuiltAt() time.Time { return s.builtAt }

// Get returns the item by id.
func (s *Snapshot[T]) Get(id string) (Item[T], bool) {
	i, ok := s.byID[id]
	if !ok {
		return Item[T]{}, false
	}
	return s.items[i], true
}

// Items returns the items ordered by id. Callers must not modify the vectors.
func (s *Snapshot[T]) Items() []Item[T] { return s.items }

// Search returns up to k items by cosine similarity, highest first.
// Equal scores are ordered by id ascending. Items for which skip returns true are excluded.
func (s *Snapshot[T]) Search(query []float32, k int, skip func(id string) bool) ([]Hit[T], error) {
	if k <= 0 || len(s.items) == 0 {
		return nil, nil
	}
	if len(query) != s.dims {
		return nil, fmt.Errorf("query: %w: got %d, want %d", ErrDimensionMismatch, len(query), s.dims)
	}
	q, ok := normalize(query)
	if !ok {
		return nil, fmt.Errorf("query: zero vector")
	}

	hits := make([]Hit[T], 0, len(s.items))
	for _, it := range s.items {
		if skip != nil && skip(it.ID) {
			continue
		}
		hits = append(hits, Hit[T]{ID: it.ID, Score: dot(q, it.Vector), Payload: it.Payload})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// With returns a new snapshot with the item added or replaced.
func (s *Snapshot[T]) With(items ...Item[T]) (*Snapshot[T], error) {
	all := make([]Item[T], 0, len(s.items)+len(items))
	all = append(all, s.items...)
	all = append(all, items...)
	return NewSnapshot(all)
}

// Without returns a new snapshot lacking the given ids.
func (s *Snapshot[T]) Without(ids ...string) *Snapshot[T] {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	next := &Snapshot[T]{
		items:   make([]Item[T], 0, len(s.items)),
		byID:    make(map[string]int, len(s.items)),
		dims:    s.dims,
		builtAt: time.Now().UTC(),
	}
	for _, it := range s.items {
		if _, ok := drop[it.ID]; ok {
			continue
		}
		next.byID[it.ID] = len(next.items)
		next.items = append(next.items, it)
	}
	return next
}

func normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, false
	}
	n := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out, true
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	// unit vectors can drift just past 1 in float32
	return math.Max(-1, math.Min(1, s))
}
