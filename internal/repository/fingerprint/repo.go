// Package fingerprint stores document fingerprint vectors in a valkey-search FT index.
package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/docreview/internal/db"
	"github.com/kailas-cloud/docreview/internal/domain"
	"github.com/kailas-cloud/docreview/internal/domain/duplicate"
)

// Hash field names.
const (
	fieldDocID     = "doc_id"
	fieldVector    = "vector"
	fieldCreatedAt = "created_at"
	fieldVendor    = "fp_vendor"
	fieldAmount    = "fp_amount"
	fieldIssueDate = "fp_issue_date"
	fieldInvoiceNo = "fp_invoice_no"
)

var returnFields = []string{fieldDocID, fieldCreatedAt, fieldVendor, fieldAmount, fieldIssueDate, fieldInvoiceNo}

// store is the consumer interface for the fingerprint index (ISP).
type store interface {
	HSet(ctx context.Context, hashes ...db.Hash) error
	Del(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	CreateIndex(ctx context.Context, schema *db.Schema) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo implements the duplicate detector's index contract on valkey.
type Repo struct {
	store store
	dims  int
}

// New creates a fingerprint index repository for vectors of the given dimension.
func New(s store, dims int) *Repo {
	return &Repo{store: s, dims: dims}
}

func keyPrefix() string { return domain.KeyPrefix + "fp:" }

func indexName() string { return domain.KeyPrefix + "fp:idx" }

func docKey(id string) string { return keyPrefix() + id }

// EnsureIndex creates the FT index unless it already exists.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, indexName())
	if err != nil {
		return fmt.Errorf("probe fingerprint index: %w", err)
	}
	if exists {
		return nil
	}
	if err := r.store.CreateIndex(ctx, r.schema()); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create fingerprint index: %w", err)
	}
	return nil
}

// Upsert writes one fingerprint.
func (r *Repo) Upsert(ctx context.Context, e duplicate.Entry) error {
	if err := r.checkDims(e); err != nil {
		return err
	}
	if err := r.store.HSet(ctx, db.Hash{Key: docKey(e.DocumentID), Fields: buildHashFields(e)}); err != nil {
		return fmt.Errorf("hset fingerprint %s: %w", e.DocumentID, err)
	}
	return nil
}

// UpsertMany writes fingerprints in one pipeline.
func (r *Repo) UpsertMany(ctx context.Context, entries []duplicate.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	items := make([]db.Hash, 0, len(entries))
	for _, e := range entries {
		if err := r.checkDims(e); err != nil {
			return err
		}
		items = append(items, db.Hash{Key: docKey(e.DocumentID), Fields: buildHashFields(e)})
	}
	if err := r.store.HSet(ctx, items...); err != nil {
		return fmt.Errorf("hset %d fingerprints: %w", len(items), err)
	}
	return nil
}

// Delete removes a fingerprint. Missing keys are not an error.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, docKey(id)); err != nil {
		return fmt.Errorf("del fingerprint %s: %w", id, err)
	}
	return nil
}

// Reset drops the index and every fingerprint hash, then recreates the empty index.
func (r *Repo) Reset(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop fingerprint index: %w", err)
	}
	if _, err := r.store.DeletePrefix(ctx, keyPrefix()); err != nil {
		return fmt.Errorf("purge fingerprints: %w", err)
	}
	return r.EnsureIndex(ctx)
}

// Nearest returns up to k neighbours of vector, never including excludeID.
func (r *Repo) Nearest(ctx context.Context, vector []float32, k int, excludeID string) ([]duplicate.Neighbor, error) {
	q := &db.KNNQuery{
		IndexName:    indexName(),
		VectorField:  fieldVector,
		Vector:       vector,
		K:            k,
		ReturnFields: returnFields,
	}
	if excludeID != "" {
		q.Tags = []db.TagFilter{{Field: fieldDocID, Value: excludeID, Negate: true}}
	}
	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, domain.NewIndexUnavailable("fingerprint", "knn search failed", err)
	}

	out := make([]duplicate.Neighbor, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		id := e.Fields[fieldDocID]
		if id == "" {
			id = strings.TrimPrefix(e.Key, keyPrefix())
		}
		if id == excludeID {
			continue
		}
		out = append(out, duplicate.Neighbor{
			DocumentID: id,
			Score:      e.Score,
			Fingerprint: duplicate.Fingerprint{
				Vendor:    e.Fields[fieldVendor],
				Amount:    e.Fields[fieldAmount],
				IssueDate: e.Fields[fieldIssueDate],
				InvoiceNo: e.Fields[fieldInvoiceNo],
			},
			CreatedAt: parseMillis(e.Fields[fieldCreatedAt]),
		})
	}
	return out, nil
}

func (r *Repo) schema() *db.Schema {
	return &db.Schema{
		Index:  indexName(),
		Prefix: keyPrefix(),
		Fields: []db.Field{
			{Name: fieldDocID, Kind: db.FieldTag},
			{Name: fieldCreatedAt, Kind: db.FieldNumeric},
			{Name: fieldVector, Kind: db.FieldVector, Dim: r.dims},
		},
	}
}

func (r *Repo) checkDims(e duplicate.Entry) error {
	if len(e.Vector) != r.dims {
		return fmt.Errorf("fingerprint %s: got %d dims, index has %d", e.DocumentID, len(e.Vector), r.dims)
	}
	return nil
}

func buildHashFields(e duplicate.Entry) map[string]string {
	return map[string]string{
		fieldDocID:     e.DocumentID,
		fieldVector:    db.VectorBlob(e.Vector),
		fieldCreatedAt: strconv.FormatInt(e.CreatedAt.UTC().UnixMilli(), 10),
		fieldVendor:    e.Fingerprint.Vendor,
		fieldAmount:    e.Fingerprint.Amount,
		fieldIssueDate: e.Fingerprint.IssueDate,
		fieldInvoiceNo: e.Fingerprint.InvoiceNo,
	}
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
