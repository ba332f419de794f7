package rule

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kailas-cloud/docreview/internal/domain"
	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
)

// memRepo is an in-memory Repository; fn fields override single methods.
type memRepo struct {
	mu    sync.Mutex
	rules map[string]domrule.Rule
	vers  map[string][]domrule.Version

	saveFn func(ctx context.Context, r domrule.Rule) (domrule.Rule, error)
	allFn  func(ctx context.Context) ([]domrule.Rule, error)
}

func newMemRepo() *memRepo {
	return &memRepo{rules: map[string]domrule.Rule{}, vers: map[string][]domrule.Version{}}
}

func (m *memRepo) Save(ctx context.Context, r domrule.Rule) (domrule.Rule, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rules[r.ID]; ok {
		r.Version = cur.Version + 1
		r.CreatedAt = cur.CreatedAt
	} else {
		r.Version = 1
		r.CreatedAt = r.UpdatedAt
	}
	m.rules[r.ID] = r
	m.vers[r.ID] = append([]domrule.Version{r.Snapshot()}, m.vers[r.ID]...)
	return r, nil
}

func (m *memRepo) Get(_ context.Context, id string) (domrule.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return domrule.Rule{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memRepo) List(_ context.Context, q domrule.ListQuery) (domrule.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []domrule.Rule
	for _, r := range m.rules {
		items = append(items, r)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domrule.Page{Items: items, Total: int64(len(items)), Page: q.Page, PageSize: q.PageSize}, nil
}

func (m *memRepo) Versions(_ context.Context, id string) ([]domrule.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs, ok := m.vers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return vs, nil
}

func (m *memRepo) Delete(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := m.rules[id]; ok {
			delete(m.rules, id)
			delete(m.vers, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) All(ctx context.Context) ([]domrule.Rule, error) {
	if m.allFn != nil {
		return m.allFn(ctx)
	}
	page, _ := m.List(ctx, domrule.ListQuery{})
	return page.Items, nil
}

func (m *memRepo) ExistsTitle(_ context.Context, title string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if strings.EqualFold(r.Title, strings.TrimSpace(title)) {
			return true, nil
		}
	}
	return false, nil
}

// mockEmbedder returns a 3-dim vector derived from the text unless embedFn is set.
type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	calls   int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text)), 1, float32(strings.Count(text, "meal"))}}, nil
}

// mockLocker hands out a lock unless acquireErr is set.
type mockLocker struct {
	acquireErr error
	released   int
}

func (m *mockLocker) Acquire(_ context.Context, _ string) (func(context.Context), error) {
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	return func(context.Context) { m.released++ }, nil
}
