package document

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kailas-cloud/docreview/internal/domain"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	"github.com/kailas-cloud/docreview/internal/domain/duplicate"
	"github.com/kailas-cloud/docreview/internal/domain/policy"
)

// documentRow is the documents table. CreatedAt/UpdatedAt come from the aggregate,
// so gorm's automatic timestamps are off.
type documentRow struct {
	ID            string              `gorm:"primaryKey;size:64"`
	FileName      string              `gorm:"size:512"`
	Vendor        string              `gorm:"size:256"`
	VendorKey     string              `gorm:"size:256;index:idx_documents_cohort,priority:1"`
	Buyer         string              `gorm:"size:256"`
	InvoiceNo     string              `gorm:"size:128;index"`
	Category      string              `gorm:"size:128"`
	CategoryKey   string              `gorm:"size:128;index:idx_documents_cohort,priority:2"`
	Currency      string              `gorm:"size:8"`
	IssueDate     *time.Time          `gorm:"index"`
	Amount        decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	TaxAmount     decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	OCRConfidence float64
	Structured    datatypes.JSONType[map[string]string]

	Status           string `gorm:"size:32;not null;index"`
	PendingMaterials datatypes.JSONType[[]string]

	PolicyFlags         datatypes.JSONType[[]policy.Flag]
	AnomalyTags         datatypes.JSONType[[]string]
	DuplicateCandidates datatypes.JSONType[[]duplicate.Candidate]
	AssessedAt          *time.Time `gorm:"index"`

	Version   int64          `gorm:"not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime:false;not null;index:idx_documents_cohort,priority:3"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:false;not null"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (documentRow) TableName() string { return "documents" }

func vendorKey(vendor string) string { return domain.NormalizeToken(vendor) }

func categoryKey(category string) string { return strings.ToLower(strings.TrimSpace(category)) }

func toRow(d domdoc.Document) documentRow {
	s := d.State()
	f := s.Fields
	return documentRow{
		ID:                  s.ID,
		FileName:            f.FileName,
		Vendor:              f.Vendor,
		VendorKey:           vendorKey(f.Vendor),
		Buyer:               f.Buyer,
		InvoiceNo:           f.InvoiceNo,
		Category:            f.Category,
		CategoryKey:         categoryKey(f.Category),
		Currency:            f.Currency,
		IssueDate:           utcPtr(f.IssueDate),
		Amount:              f.Amount,
		TaxAmount:           f.TaxAmount,
		OCRConfidence:       f.OCRConfidence,
		Structured:          datatypes.NewJSONType(f.Structured),
		Status:              string(s.Status),
		PendingMaterials:    datatypes.NewJSONType(s.PendingMaterials),
		PolicyFlags:         datatypes.NewJSONType(s.Assessment.Flags),
		AnomalyTags:         datatypes.NewJSONType(s.Assessment.AnomalyTags),
		DuplicateCandidates: datatypes.NewJSONType(s.Assessment.Duplicates),
		AssessedAt:          utcPtr(s.Assessment.AssessedAt),
		Version:             s.Version,
		CreatedAt:           s.CreatedAt.UTC(),
		UpdatedAt:           s.UpdatedAt.UTC(),
	}
}

func fromRow(row documentRow) domdoc.Document {
	return domdoc.Reconstruct(domdoc.State{
		ID: row.ID,
		Fields: domdoc.Fields{
			FileName:      row.FileName,
			Vendor:        row.Vendor,
			Buyer:         row.Buyer,
			InvoiceNo:     row.InvoiceNo,
			Category:      row.Category,
			Currency:      row.Currency,
			IssueDate:     utcPtr(row.IssueDate),
			Amount:        row.Amount,
			TaxAmount:     row.TaxAmount,
			OCRConfidence: row.OCRConfidence,
			Structured:    row.Structured.Data(),
		},
		Status:           domdoc.Status(row.Status),
		PendingMaterials: row.PendingMaterials.Data(),
		Assessment: domdoc.Assessment{
			Flags:       row.PolicyFlags.Data(),
			AnomalyTags: row.AnomalyTags.Data(),
			Duplicates:  row.DuplicateCandidates.Data(),
			AssessedAt:  utcPtr(row.AssessedAt),
		},
		Version:   row.Version,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	})
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
