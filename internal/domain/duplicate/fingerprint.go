// Package duplicate holds document fingerprints and duplicate candidates.
package duplicate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/docreview/internal/domain"
)

// Fingerprint field names, also used in Candidate.MatchedFields.
const (
	FieldVendor    = "vendor"
	FieldAmount    = "amount"
	FieldIssueDate = "issue_date"
	FieldInvoiceNo = "invoice_no"
)

// Fingerprint is the normalized identity of an invoice.
type Fingerprint struct {
	Vendor    string
	Amount    string
	IssueDate string
	InvoiceNo string
}

// NewFingerprint normalizes the identifying fields of a document.
func NewFingerprint(vendor string, amount decimal.NullDecimal, issueDate *time.Time, invoiceNo string) Fingerprint {
	fp := Fingerprint{
		Vendor:    domain.NormalizeToken(vendor),
		InvoiceNo: domain.NormalizeToken(invoiceNo),
	}
	if amount.Valid {
		fp.Amount = amount.Decimal.StringFixed(2)
	}
	if issueDate != nil {
		fp.IssueDate = issueDate.UTC().Format(time.DateOnly)
	}
	return fp
}

// Fields returns name/value pairs in a fixed order.
func (f Fingerprint) Fields() [4][2]string {
	return [4][2]string{
		{FieldVendor, f.Vendor},
		{FieldAmount, f.Amount},
		{FieldIssueDate, f.IssueDate},
		{FieldInvoiceNo, f.InvoiceNo},
	}
}

// Empty reports whether no identifying field is present.
func (f Fingerprint) Empty() bool {
	return f.Vendor == "" && f.Amount == "" && f.IssueDate == "" && f.InvoiceNo == ""
}

// Matched returns the non-empty fields equal in both fingerprints.
func (f Fingerprint) Matched(o Fingerprint) []string {
	var out []string
	of := o.Fields()
	for i, kv := range f.Fields() {
		if kv[1] != "" && kv[1] == of[i][1] {
			out = append(out, kv[0])
		}
	}
	return out
}

// Candidate is another document similar enough to be a possible resubmission.
type Candidate struct {
	DocumentID    string    `json:"candidate_document_id"`
	Score         float64   `json:"similarity_score"`
	MatchedFields []string  `json:"matched_fields,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Less orders candidates by score descending, then oldest first, then id.
func Less(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.DocumentID < b.DocumentID
}

// Entry is one document in the fingerprint index.
type Entry struct {
	DocumentID  string
	Vector      []float32
	Fingerprint Fingerprint
	CreatedAt   time.Time
}

// Neighbor is a fingerprint index hit. Score is cosine similarity.
type Neighbor struct {
	DocumentID  string
	Score       float64
	Fingerprint Fingerprint
	CreatedAt   time.Time
}
