// Package document persists review documents with optimistic concurrency.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kailas-cloud/docreview/internal/db/sqldb"
	"github.com/kailas-cloud/docreview/internal/domain"
	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
)

// auditWriter appends audit entries inside a document transaction (ISP).
type auditWriter interface {
	AppendTx(tx *gorm.DB, entries []domaudit.Entry) error
}

// Repo implements the document repository contracts of the review, risk and batch use cases.
type Repo struct {
	db    *gorm.DB
	audit auditWriter
}

// New creates a document repository. Audit entries are written through aw in the same transaction.
func New(db *gorm.DB, aw auditWriter) *Repo {
	return &Repo{db: db, audit: aw}
}

// Migrate creates the documents table.
func (r *Repo) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&documentRow{}); err != nil {
		return fmt.Errorf("migrate documents: %w", err)
	}
	return nil
}

// Create inserts a new document and its audit entries.
func (r *Repo) Create(ctx context.Context, d domdoc.Document, entries []domaudit.Entry) error {
	row := toRow(d)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("document %s: %w", d.ID(), domain.ErrAlreadyExists)
			}
			return fmt.Errorf("insert document %s: %w", d.ID(), err)
		}
		return r.audit.AppendTx(tx, entries)
	})
}

// Get returns a document by ID.
func (r *Repo) Get(ctx context.Context, id string) (domdoc.Document, error) {
	var row documentRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domdoc.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return domdoc.Document{}, fmt.Errorf("select document %s: %w", id, err)
	}
	return fromRow(row), nil
}

// Update commits one mutation. A lost compare-and-set returns *domain.ConcurrentModificationError.
func (r *Repo) Update(ctx context.Context, next domdoc.Document, entries []domaudit.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.apply(tx, domdoc.Mutation{Next: next, Entries: entries})
	})
}

// UpdateMany commits mutations in one transaction. Each document is compared-and-set on its own:
// a lost race is reported in its slot and the rest still commit.
// The returned error is non-nil only when the transaction itself failed.
func (r *Repo) UpdateMany(ctx context.Context, muts []domdoc.Mutation) ([]error, error) {
	results := make([]error, len(muts))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, m := range muts {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := r.apply(tx, m)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrConcurrentModification), errors.Is(err, domain.ErrNotFound):
				results[i] = err
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Repo) apply(tx *gorm.DB, m domdoc.Mutation) error {
	row := toRow(m.Next)
	expected := m.Next.Version() - 1
	res := tx.Model(&documentRow{}).
		Where("id = ? AND version = ?", row.ID, expected).
		Select("*").Omit("id", "created_at", "deleted_at").
		Updates(&row)
	if res.Error != nil {
		return fmt.Errorf("update document %s: %w", row.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		var current documentRow
		err := tx.Select("id", "version").Where("id = ?", row.ID).Take(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("document %s: %w", row.ID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("select document version %s: %w", row.ID, err)
		}
		return domain.NewConcurrentModification(row.ID, current.Version)
	}
	return r.audit.AppendTx(tx, m.Entries)
}

// SoftDelete hides a document from every read path and records why.
func (r *Repo) SoftDelete(ctx context.Context, id string, entries []domaudit.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&documentRow{})
		if res.Error != nil {
			return fmt.Errorf("delete document %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return r.audit.AppendTx(tx, entries)
	})
}

// List returns one page of the review queue, newest first.
func (r *Repo) List(ctx context.Context, q domdoc.Query) (domdoc.Page, error) {
	q = q.Clamp()
	filter := func(tx *gorm.DB) *gorm.DB {
		if len(q.Statuses) > 0 {
			st := make([]string, 0, len(q.Statuses))
			for _, s := range q.Statuses {
				st = append(st, string(s))
			}
			tx = tx.Where("status IN ?", st)
		}
		if q.Q != "" {
			like := sqldb.Like(strings.ToLower(q.Q))
			tx = tx.Where(
				`(LOWER(file_name) LIKE ? ESCAPE '\' OR LOWER(vendor) LIKE ? ESCAPE '\' OR LOWER(category) LIKE ? ESCAPE '\')`,
				like, like, like,
			)
		}
		if q.From != nil {
			tx = tx.Where("created_at >= ?", q.From.UTC())
		}
		if q.To != nil {
			tx = tx.Where("created_at <= ?", q.To.UTC())
		}
		return tx
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&documentRow{}).Scopes(filter).Count(&total).Error; err != nil {
		return domdoc.Page{}, fmt.Errorf("count documents: %w", err)
	}

	var rows []documentRow
	err := r.db.WithContext(ctx).Model(&documentRow{}).Scopes(filter).
		Order("created_at DESC").Order("id ASC").
		Offset(q.Offset()).Limit(q.PageSize).
		Find(&rows).Error
	if err != nil {
		return domdoc.Page{}, fmt.Errorf("select documents: %w", err)
	}

	items := make([]domdoc.Document, 0, len(rows))
	for _, row := range rows {
		items = append(items, fromRow(row))
	}
	return domdoc.Page{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// CohortAmounts returns the amounts of documents sharing d's vendor and category created since `since`.
// d itself and rejected documents are excluded.
func (r *Repo) CohortAmounts(ctx context.Context, d domdoc.Document, since time.Time) ([]float64, error) {
	f := d.Fields()
	vk, ck := vendorKey(f.Vendor), categoryKey(f.Category)
	if vk == "" {
		return nil, nil
	}
	var amounts []decimal.Decimal
	err := r.db.WithContext(ctx).Model(&documentRow{}).
		Where("vendor_key = ? AND category_key = ?", vk, ck).
		Where("id <> ?", d.ID()).
		Where("created_at >= ?", since.UTC()).
		Where("status <> ?", string(domdoc.StatusRejected)).
		Where("amount IS NOT NULL").
		Pluck("amount", &amounts).Error
	if err != nil {
		return nil, fmt.Errorf("select cohort amounts: %w", err)
	}
	out := make([]float64, 0, len(amounts))
	for _, a := range amounts {
		out = append(out, a.InexactFloat64())
	}
	return out, nil
}

// UnassessedIDs returns up to limit documents that never completed a risk assessment, oldest first.
func (r *Repo) UnassessedIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&documentRow{}).
		Where("assessed_at IS NULL").
		Order("created_at ASC").Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("select unassessed documents: %w", err)
	}
	return ids, nil
}

// Each streams every live document in id order, batchSize at a time.
func (r *Repo) Each(ctx context.Context, batchSize int, fn func([]domdoc.Document) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	var rows []documentRow
	res := r.db.WithContext(ctx).FindInBatches(&rows, batchSize, func(_ *gorm.DB, _ int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		docs := make([]domdoc.Document, 0, len(rows))
		for _, row := range rows {
			docs = append(docs, fromRow(row))
		}
		return fn(docs)
	})
	if res.Error != nil {
		return fmt.Errorf("scan documents: %w", res.Error)
	}
	return nil
}
