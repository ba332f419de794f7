package vectorindex

import (
	"sync"
	"sync/atomic"
)

// Manager owns the current snapshot of one index. Reads are lock-free;
// writers are serialized so copy-on-write updates never lose each other.
type Manager[T any] struct {
	cur atomic.Pointer[Snapshot[T]]
	mu  sync.Mutex
}

// NewManager creates a manager with no snapshot. CurrentSnapshot returns nil until the first Swap.
func NewManager[T any]() *Manager[T] {
	return &Manager[T]{}
}

// CurrentSnapshot returns the published snapshot, or nil if none was ever built.
func (m *Manager[T]) CurrentSnapshot() *Snapshot[T] {
	return m.cur.Load()
}

// Swap publishes s and returns the previous snapshot.
func (m *Manager[T]) Swap(s *Snapshot[T]) *Snapshot[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.Swap(s)
}

// Update derives a new snapshot from the current one under the writer lock.
// It is a no-op until the first Swap: a partial index must not look built.
// On error nothing is published. Reports whether a snapshot was published.
func (m *Manager[T]) Update(fn func(cur *Snapshot[T]) (*Snapshot[T], error)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.cur.Load()
	if cur == nil {
		return false, nil
	}
	next, err := fn(cur)
	if err != nil {
		return false, err
	}
	m.cur.Store(next)
	return true, nil
}
