package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/docreview/internal/domain"
	"github.com/kailas-cloud/docreview/internal/domain/duplicate"
	"github.com/kailas-cloud/docreview/internal/domain/policy"
	"github.com/kailas-cloud/docreview/internal/domain/rule"
)

// DefaultCurrency is applied when extraction did not detect one.
const DefaultCurrency = "CNY"

// Fields are the extracted attributes of an invoice. Reviewers may correct them.
type Fields struct {
	FileName      string
	Vendor        string
	Buyer         string
	InvoiceNo     string
	Category      string
	Currency      string
	IssueDate     *time.Time
	Amount        decimal.NullDecimal
	TaxAmount     decimal.NullDecimal
	OCRConfidence float64
	Structured    map[string]string
}

// Assessment is the output of one complete risk evaluation pass.
type Assessment struct {
	Flags       []policy.Flag
	AnomalyTags []string
	Duplicates  []duplicate.Candidate
	AssessedAt  *time.Time
}

// State is the persisted form of a Document.
type State struct {
	ID               string
	Fields           Fields
	Status           Status
	PendingMaterials []string
	Assessment       Assessment
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Document is the reviewed invoice aggregate (immutable value object).
// Every mutating method returns a new Document with Version+1.
type Document struct {
	s State
}

// New validates extracted fields and creates an uploaded document at version 1.
func New(id string, f Fields, now time.Time) (Document, error) {
	if strings.TrimSpace(id) == "" {
		return Document{}, domain.NewValidation("id", "is required")
	}
	if f.OCRConfidence < 0 || f.OCRConfidence > 1 {
		return Document{}, domain.NewValidation("ocr_confidence", "must be within [0, 1]")
	}
	f = f.clone()
	f.Currency = strings.ToUpper(strings.TrimSpace(f.Currency))
	if f.Currency == "" {
		f.Currency = DefaultCurrency
	}
	now = now.UTC()
	return Document{s: State{
		ID:        id,
		Fields:    f,
		Status:    StatusUploaded,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(s State) Document { return Document{s: s} }

// State returns a copy of the persisted form.
func (d Document) State() State {
	s := d.s
	s.Fields = s.Fields.clone()
	s.PendingMaterials = append([]string(nil), s.PendingMaterials...)
	return s
}

// ID returns the document identifier.
func (d Document) ID() string { return d.s.ID }

// Fields returns a copy of the extracted fields.
func (d Document) Fields() Fields { return d.s.Fields.clone() }

// Status returns the review status.
func (d Document) Status() Status { return d.s.Status }

// PendingMaterials returns the outstanding information requests.
func (d Document) PendingMaterials() []string { return d.s.PendingMaterials }

// Assessment returns the latest risk evaluation.
func (d Document) Assessment() Assessment { return d.s.Assessment }

// Assessed reports whether a risk evaluation has ever been committed.
func (d Document) Assessed() bool { return d.s.Assessment.AssessedAt != nil }

// Version returns the compare-and-set token.
func (d Document) Version() int64 { return d.s.Version }

// CreatedAt returns the ingestion time.
func (d Document) CreatedAt() time.Time { return d.s.CreatedAt }

// UpdatedAt returns the time of the last committed mutation.
func (d Document) UpdatedAt() time.Time { return d.s.UpdatedAt }

// Subject returns the fields policy scopes are evaluated against.
func (d Document) Subject() rule.Subject {
	return rule.Subject{
		Vendor:   d.s.Fields.Vendor,
		Category: d.s.Fields.Category,
		Currency: d.s.Fields.Currency,
		Amount:   d.s.Fields.Amount,
	}
}

// Fingerprint returns the normalized identity used for duplicate detection.
func (d Document) Fingerprint() duplicate.Fingerprint {
	f := d.s.Fields
	return duplicate.NewFingerprint(f.Vendor, f.Amount, f.IssueDate, f.InvoiceNo)
}

// WithAssessment attaches a complete evaluation. Status is never touched.
func (d Document) WithAssessment(a Assessment, now time.Time) Document {
	next := d.bump(now)
	at := now.UTC()
	a.AssessedAt = &at
	next.s.Assessment = a
	return next
}

func (d Document) bump(now time.Time) Document {
	next := Document{s: d.State()}
	next.s.Version++
	now = now.UTC()
	if now.After(next.s.UpdatedAt) {
		next.s.UpdatedAt = now
	}
	return next
}

func (f Fields) clone() Fields {
	if f.Structured != nil {
		m := make(map[string]string, len(f.Structured))
		for k, v := range f.Structured {
			m[k] = v
		}
		f.Structured = m
	}
	if f.IssueDate != nil {
		t := *f.IssueDate
		f.IssueDate = &t
	}
	return f
}

// FormatAmount renders an optional amount for display and audit rows.
func FormatAmount(a decimal.NullDecimal) string {
	if !a.Valid {
		return ""
	}
	return a.Decimal.String()
}

// FormatDate renders an optional date as YYYY-MM-DD.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

// AmountScale is the number of decimal places kept for money amounts.
const AmountScale = 2

// ParseAmount parses a reviewer- or extractor-supplied amount. Empty clears it.
func ParseAmount(s string) (decimal.NullDecimal, error) {
	s = strings.NewReplacer(",", "", "¥", "", "￥", "", "$", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, domain.NewValidation("amount", fmt.Sprintf("%q is not a number", s))
	}
	// Amounts are stored as decimal(18,2); finer values would be rounded silently.
	if !d.Equal(d.Truncate(AmountScale)) {
		return decimal.NullDecimal{}, domain.NewValidation("amount",
			fmt.Sprintf("%q has more than %d decimal places", s, AmountScale))
	}
	return decimal.NewNullDecimal(d), nil
}

// ParseDate parses an ISO-8601 date or timestamp. Empty clears it.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, domain.NewValidation("issue_date", fmt.Sprintf("%q is not an ISO-8601 date", s))
}
