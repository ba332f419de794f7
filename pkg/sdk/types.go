package sdk

import (
	"time"

	"github.com/shopspring/decimal"

	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	dombatch "github.com/kailas-cloud/docreview/internal/domain/batch"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
	documentuc "github.com/kailas-cloud/docreview/internal/usecase/document"
)

// Status is the review status of a document.
type Status string

// Review statuses. Approved and rejected are terminal.
const (
	StatusUploaded  Status = Status(domdoc.StatusUploaded)
	StatusReviewing Status = Status(domdoc.StatusReviewing)
	StatusApproved  Status = Status(domdoc.StatusApproved)
	StatusRejected  Status = Status(domdoc.StatusRejected)
)

// Severity grades a policy flag.
type Severity string

// Flag severities.
const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Invoice is the structured output of document extraction.
// Amounts are decimal strings; thousands separators are accepted.
type Invoice struct {
	ID            string
	FileName      string
	Vendor        string
	Buyer         string
	InvoiceNo     string
	IssueDate     string // YYYY-MM-DD
	Amount        string
	TaxAmount     string
	Currency      string
	Category      string
	RawFields     map[string]string
	OCRConfidence float64
}

// Document is a stored document with its latest assessment.
type Document struct {
	ID               string
	Status           Status
	Version          int64
	FileName         string
	Vendor           string
	Buyer            string
	InvoiceNo        string
	Category         string
	Currency         string
	IssueDate        *time.Time
	Amount           *decimal.Decimal
	TaxAmount        *decimal.Decimal
	OCRConfidence    float64
	Fields           map[string]string
	PendingMaterials []string
	Assessed         bool
	AssessedAt       *time.Time
	Flags            []Flag
	AnomalyTags      []string
	Duplicates       []Duplicate
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Flag is one policy violation.
type Flag struct {
	RuleID      string
	RuleVersion int
	RuleTitle   string
	Severity    Severity
	Message     string
	References  []string
}

// Duplicate is an earlier document that looks like the same invoice.
type Duplicate struct {
	DocumentID    string
	Score         float64
	MatchedFields []string
	CreatedAt     time.Time
}

// AuditEntry is one recorded change of a document.
type AuditEntry struct {
	Seq        int64
	FieldName  string
	OldValue   string
	NewValue   string
	Reason     string
	Comment    string
	ReviewerID string
	Timestamp  time.Time
}

// ListOptions filters the review queue. Zero values select everything, first page.
type ListOptions struct {
	Statuses []Status
	Query    string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// DocumentList is one page of the review queue.
type DocumentList struct {
	Documents []Document
	Total     int64
	Page      int
	PageSize  int
}

// BatchResult is the outcome of one id in a batch operation.
type BatchResult struct {
	ID      string
	OK      bool
	Skipped bool
	Err     error
}

// RuleScope limits where a rule applies. Empty lists match everything.
type RuleScope struct {
	Categories []string
	Vendors    []string
	Currency   string
	MinAmount  string
	MaxAmount  string
}

// RuleInput creates a rule (empty ID) or a new version of an existing one.
type RuleInput struct {
	ID         string
	Title      string
	Summary    string
	Content    string
	Category   string
	Tags       []string
	RiskTags   []string
	Scope      RuleScope
	ChangeNote string
}

// Rule is the current version of a policy rule.
type Rule struct {
	ID         string
	Version    int
	Title      string
	Summary    string
	Content    string
	Category   string
	Tags       []string
	RiskTags   []string
	Scope      RuleScope
	ChangeNote string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// --- Converters ---

func toStructured(in Invoice) documentuc.StructuredDocument {
	return documentuc.StructuredDocument{
		ID:            in.ID,
		FileName:      in.FileName,
		Vendor:        in.Vendor,
		Buyer:         in.Buyer,
		InvoiceNo:     in.InvoiceNo,
		IssueDate:     in.IssueDate,
		Amount:        documentuc.Amount(in.Amount),
		TaxAmount:     documentuc.Amount(in.TaxAmount),
		Currency:      in.Currency,
		Category:      in.Category,
		RawFields:     in.RawFields,
		OCRConfidence: in.OCRConfidence,
	}
}

func fromDocument(d domdoc.Document) Document {
	f := d.Fields()
	a := d.Assessment()
	out := Document{
		ID:               d.ID(),
		Status:           Status(d.Status()),
		Version:          d.Version(),
		FileName:         f.FileName,
		Vendor:           f.Vendor,
		Buyer:            f.Buyer,
		InvoiceNo:        f.InvoiceNo,
		Category:         f.Category,
		Currency:         f.Currency,
		IssueDate:        f.IssueDate,
		Amount:           nullable(f.Amount),
		TaxAmount:        nullable(f.TaxAmount),
		OCRConfidence:    f.OCRConfidence,
		Fields:           f.Structured,
		PendingMaterials: d.PendingMaterials(),
		Assessed:         d.Assessed(),
		AssessedAt:       a.AssessedAt,
		AnomalyTags:      a.AnomalyTags,
		CreatedAt:        d.CreatedAt(),
		UpdatedAt:        d.UpdatedAt(),
	}
	for _, fl := range a.Flags {
		out.Flags = append(out.Flags, Flag{
			RuleID:      fl.RuleID,
			RuleVersion: fl.RuleVersion,
			RuleTitle:   fl.RuleTitle,
			Severity:    Severity(fl.Severity),
			Message:     fl.Message,
			References:  fl.References,
		})
	}
	for _, c := range a.Duplicates {
		out.Duplicates = append(out.Duplicates, Duplicate{
			DocumentID:    c.DocumentID,
			Score:         c.Score,
			MatchedFields: c.MatchedFields,
			CreatedAt:     c.CreatedAt,
		})
	}
	return out
}

func nullable(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func fromEntries(es []domaudit.Entry) []AuditEntry {
	out := make([]AuditEntry, 0, len(es))
	for _, e := range es {
		out = append(out, AuditEntry{
			Seq:        e.Seq,
			FieldName:  e.FieldName,
			OldValue:   e.OldValue,
			NewValue:   e.NewValue,
			Reason:     e.Reason,
			Comment:    e.Comment,
			ReviewerID: e.ReviewerID,
			Timestamp:  e.Timestamp,
		})
	}
	return out
}

func toQuery(o ListOptions) domdoc.Query {
	q := domdoc.Query{Q: o.Query, From: o.From, To: o.To, Page: o.Page, PageSize: o.PageSize}
	for _, s := range o.Statuses {
		q.Statuses = append(q.Statuses, domdoc.Status(s))
	}
	return q
}

func fromBatch(rs []dombatch.Result) []BatchResult {
	out := make([]BatchResult, len(rs))
	for i, r := range rs {
		out[i] = BatchResult{
			ID:      r.ID(),
			OK:      r.Status() == dombatch.StatusOK,
			Skipped: r.Status() == dombatch.StatusSkipped,
			Err:     r.Err(),
		}
	}
	return out
}

func toRuleInput(in RuleInput) (domrule.Input, error) {
	scope, err := toScope(in.Scope)
	if err != nil {
		return domrule.Input{}, err
	}
	return domrule.Input{
		ID:         in.ID,
		Title:      in.Title,
		Summary:    in.Summary,
		Content:    in.Content,
		Category:   in.Category,
		Tags:       in.Tags,
		RiskTags:   in.RiskTags,
		Scope:      scope,
		ChangeNote: in.ChangeNote,
	}, nil
}

func toScope(s RuleScope) (domrule.Scope, error) {
	out := domrule.Scope{Categories: s.Categories, Vendors: s.Vendors, Currency: s.Currency}
	var err error
	if out.MinAmount, err = parseBound("scope.min_amount", s.MinAmount); err != nil {
		return domrule.Scope{}, err
	}
	if out.MaxAmount, err = parseBound("scope.max_amount", s.MaxAmount); err != nil {
		return domrule.Scope{}, err
	}
	return out, nil
}

func parseBound(field, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, &ValidationError{Field: field, Reason: "not a decimal"}
	}
	return &d, nil
}

func fromRule(r domrule.Rule) Rule {
	scope := RuleScope{Categories: r.Scope.Categories, Vendors: r.Scope.Vendors, Currency: r.Scope.Currency}
	if r.Scope.MinAmount != nil {
		scope.MinAmount = r.Scope.MinAmount.String()
	}
	if r.Scope.MaxAmount != nil {
		scope.MaxAmount = r.Scope.MaxAmount.String()
	}
	return Rule{
		ID:         r.ID,
		Version:    r.Version,
		Title:      r.Title,
		Summary:    r.Summary,
		Content:    r.Content,
		Category:   r.Category,
		Tags:       r.Tags,
		RiskTags:   r.RiskTags,
		Scope:      scope,
		ChangeNote: r.ChangeNote,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}
