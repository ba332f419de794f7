// Package audit persists the append-only review log in the relational store.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kailas-cloud/docreview/internal/domain"
	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
)

type entryRow struct {
	Seq        int64     `gorm:"primaryKey;autoIncrement"`
	DocumentID string    `gorm:"size:64;not null;index:idx_audit_doc_ts,priority:1"`
	FieldName  string    `gorm:"size:128;not null"`
	OldValue   string    `gorm:"type:text"`
	NewValue   string    `gorm:"type:text"`
	Reason     string    `gorm:"type:text"`
	Comment    string    `gorm:"type:text"`
	ReviewerID string    `gorm:"size:128;not null"`
	Timestamp  time.Time `gorm:"column:logged_at;not null;index:idx_audit_doc_ts,priority:2"`
}

func (entryRow) TableName() string { return "audit_entries" }

// Repo stores audit entries. There is no update or delete path.
type Repo struct {
	db *gorm.DB
}

// New creates an audit repository.
func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Migrate creates the audit_entries table.
func (r *Repo) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&entryRow{}); err != nil {
		return fmt.Errorf("migrate audit_entries: %w", err)
	}
	return nil
}

// Append writes one entry in its own transaction and returns it with Seq assigned.
func (r *Repo) Append(ctx context.Context, e domaudit.Entry) (domaudit.Entry, error) {
	if err := validate(e); err != nil {
		return domaudit.Entry{}, err
	}
	row := toRow(e)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domaudit.Entry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	return fromRow(row), nil
}

// AppendTx writes entries inside the caller's transaction.
func (r *Repo) AppendTx(tx *gorm.DB, entries []domaudit.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]entryRow, 0, len(entries))
	for _, e := range entries {
		if err := validate(e); err != nil {
			return err
		}
		rows = append(rows, toRow(e))
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert %d audit entries: %w", len(rows), err)
	}
	return nil
}

// History returns every entry of a document in timestamp order, ties broken by Seq.
func (r *Repo) History(ctx context.Context, documentID string) ([]domaudit.Entry, error) {
	var rows []entryRow
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("logged_at ASC").Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select audit history %s: %w", documentID, err)
	}
	out := make([]domaudit.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func validate(e domaudit.Entry) error {
	if strings.TrimSpace(e.DocumentID) == "" {
		return domain.NewValidation("document_id", "is required")
	}
	if strings.TrimSpace(e.FieldName) == "" {
		return domain.NewValidation("field_name", "is required")
	}
	if e.Timestamp.IsZero() {
		return domain.NewValidation("timestamp", "is required")
	}
	return nil
}

func toRow(e domaudit.Entry) entryRow {
	reviewer := e.ReviewerID
	if reviewer == "" {
		reviewer = domaudit.SystemReviewer
	}
	return entryRow{
		DocumentID: e.DocumentID,
		FieldName:  e.FieldName,
		OldValue:   e.OldValue,
		NewValue:   e.NewValue,
		Reason:     e.Reason,
		Comment:    e.Comment,
		ReviewerID: reviewer,
		Timestamp:  e.Timestamp.UTC(),
	}
}

func fromRow(row entryRow) domaudit.Entry {
	return domaudit.Entry{
		Seq:        row.Seq,
		DocumentID: row.DocumentID,
		FieldName:  row.FieldName,
		OldValue:   row.OldValue,
		NewValue:   row.NewValue,
		Reason:     row.Reason,
		Comment:    row.Comment,
		ReviewerID: row.ReviewerID,
		Timestamp:  row.Timestamp.UTC(),
	}
}
