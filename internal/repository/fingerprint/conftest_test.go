package fingerprint

import (
	"context"

	"github.com/kailas-cloud/docreview/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn        func(ctx context.Context, hashes ...db.Hash) error
	delFn         func(ctx context.Context, keys ...string) error
	purgeFn       func(ctx context.Context, prefix string) (int, error)
	createIndexFn func(ctx context.Context, schema *db.Schema) error
	dropIndexFn   func(ctx context.Context, name string) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

func (m *mockStore) HSet(ctx context.Context, hashes ...db.Hash) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, hashes...)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	if m.delFn != nil {
		return m.delFn(ctx, keys...)
	}
	return nil
}

func (m *mockStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if m.purgeFn != nil {
		return m.purgeFn(ctx, prefix)
	}
	return 0, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, schema *db.Schema) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, schema)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}
