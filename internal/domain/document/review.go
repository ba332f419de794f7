package document

import (
	"sort"
	"strings"
	"time"

	"github.com/kailas-cloud/docreview/internal/domain"
	"github.com/kailas-cloud/docreview/internal/domain/audit"
)

// Review operation names, as reported in InvalidTransitionError.
const (
	OpRequestInfo  = "request_info"
	OpApprove      = "approve"
	OpReject       = "reject"
	OpUpdateFields = "update_fields"
)

// Editable field names.
const (
	FieldFileName  = "file_name"
	FieldVendor    = "vendor"
	FieldBuyer     = "buyer"
	FieldInvoiceNo = "invoice_no"
	FieldIssueDate = "issue_date"
	FieldAmount    = "amount"
	FieldTaxAmount = "tax_amount"
	FieldCurrency  = "currency"
	FieldCategory  = "category"
	FieldStatus    = "status"
	FieldPending   = "pending_materials"
)

// statusAliases are change keys treated as a status change.
var statusAliases = map[string]bool{"status": true, "_status": true, "decision": true}

// riskFields affect policy, anomaly or duplicate results.
var riskFields = map[string]bool{
	FieldVendor: true, FieldInvoiceNo: true, FieldIssueDate: true,
	FieldAmount: true, FieldTaxAmount: true, FieldCategory: true, FieldCurrency: true,
}

// Change is one field transition produced by a review operation.
type Change struct {
	Field string
	Old   string
	New   string
}

// RiskRelevant reports whether any change affects risk evaluation.
func RiskRelevant(changes []Change) bool {
	for _, c := range changes {
		if riskFields[c.Field] {
			return true
		}
	}
	return false
}

func (d Document) guard(op string) error {
	if d.s.Status.Terminal() {
		return domain.NewInvalidTransition(string(d.s.Status), op)
	}
	return nil
}

// RequestInfo moves the document to reviewing and replaces pending materials.
func (d Document) RequestInfo(requests []string, now time.Time) (Document, []Change, error) {
	if err := d.guard(OpRequestInfo); err != nil {
		return Document{}, nil, err
	}
	reqs := cleanRequests(requests)
	if len(reqs) == 0 {
		return Document{}, nil, domain.NewValidation("requests", "at least one request is required")
	}

	next := d.bump(now)
	var changes []Change
	if d.s.Status != StatusReviewing {
		changes = append(changes, Change{Field: FieldStatus, Old: string(d.s.Status), New: string(StatusReviewing)})
		next.s.Status = StatusReviewing
	}
	if old, cur := joinPending(d.s.PendingMaterials), joinPending(reqs); old != cur {
		changes = append(changes, Change{Field: FieldPending, Old: old, New: cur})
	}
	if len(changes) == 0 {
		// Same requests re-sent: nothing to record.
		return d, nil, nil
	}
	next.s.PendingMaterials = reqs
	return next, changes, nil
}

// Approve moves the document to review_approved and clears pending materials.
func (d Document) Approve(now time.Time) (Document, []Change, error) {
	if err := d.guard(OpApprove); err != nil {
		return Document{}, nil, err
	}
	return d.finish(StatusApproved, now), d.finishChanges(StatusApproved), nil
}

// Reject moves the document to review_rejected. A reason is mandatory.
func (d Document) Reject(reason string, now time.Time) (Document, []Change, error) {
	if err := d.guard(OpReject); err != nil {
		return Document{}, nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return Document{}, nil, domain.NewValidation("reason", "is required to reject")
	}
	return d.finish(StatusRejected, now), d.finishChanges(StatusRejected), nil
}

func (d Document) finish(to Status, now time.Time) Document {
	next := d.bump(now)
	next.s.Status = to
	if to == StatusApproved {
		next.s.PendingMaterials = nil
	}
	return next
}

func (d Document) finishChanges(to Status) []Change {
	changes := []Change{{Field: FieldStatus, Old: string(d.s.Status), New: string(to)}}
	if to == StatusApproved && len(d.s.PendingMaterials) > 0 {
		changes = append(changes, Change{Field: FieldPending, Old: joinPending(d.s.PendingMaterials), New: ""})
	}
	return changes
}

// ApplyFields validates every change, then applies them together.
// Keys outside the known columns are structured fields; "status", "_status" and
// "decision" change the status. No-op changes are dropped. An empty result is not an error.
func (d Document) ApplyFields(changes map[string]string, now time.Time) (Document, []Change, error) {
	if err := d.guard(OpUpdateFields); err != nil {
		return Document{}, nil, err
	}
	if len(changes) == 0 {
		return Document{}, nil, domain.NewValidation("changes", "at least one change is required")
	}

	keys := make([]string, 0, len(changes))
	for k := range changes {
		if strings.TrimSpace(k) == "" {
			return Document{}, nil, domain.NewValidation("changes", "empty field name")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	next := d.bump(now)
	f := &next.s.Fields
	var out []Change
	var statusTo Status

	for _, key := range keys {
		raw := changes[key]
		val := strings.TrimSpace(raw)
		var old, cur string

		switch {
		case statusAliases[key]:
			st, err := ParseStatus(val)
			if err != nil {
				return Document{}, nil, err
			}
			if st == StatusUploaded {
				return Document{}, nil, domain.NewValidation(key, "cannot move a document back to uploaded")
			}
			statusTo = st
			continue
		case key == FieldAmount || key == FieldTaxAmount:
			amt, err := ParseAmount(val)
			if err != nil {
				return Document{}, nil, err
			}
			target := &f.Amount
			if key == FieldTaxAmount {
				target = &f.TaxAmount
			}
			old, cur = FormatAmount(*target), FormatAmount(amt)
			*target = amt
		case key == FieldIssueDate:
			dt, err := ParseDate(val)
			if err != nil {
				return Document{}, nil, err
			}
			old, cur = FormatDate(f.IssueDate), FormatDate(dt)
			f.IssueDate = dt
		case key == FieldCurrency:
			old, cur = f.Currency, strings.ToUpper(val)
			if cur == "" {
				cur = DefaultCurrency
			}
			f.Currency = cur
		case stringField(f, key) != nil:
			p := stringField(f, key)
			old, cur = *p, val
			*p = val
		default:
			old = f.Structured[key]
			cur = raw
			if f.Structured == nil {
				f.Structured = make(map[string]string)
			}
			if cur == "" {
				delete(f.Structured, key)
			} else {
				f.Structured[key] = cur
			}
		}
		if old != cur {
			out = append(out, Change{Field: key, Old: old, New: cur})
		}
	}

	if statusTo != "" && statusTo != d.s.Status {
		out = append(out, Change{Field: FieldStatus, Old: string(d.s.Status), New: string(statusTo)})
		next.s.Status = statusTo
		if statusTo == StatusApproved && len(next.s.PendingMaterials) > 0 {
			out = append(out, Change{Field: FieldPending, Old: joinPending(next.s.PendingMaterials), New: ""})
			next.s.PendingMaterials = nil
		}
	}
	if len(out) == 0 {
		return d, nil, nil
	}
	return next, out, nil
}

func stringField(f *Fields, key string) *string {
	switch key {
	case FieldFileName:
		return &f.FileName
	case FieldVendor:
		return &f.Vendor
	case FieldBuyer:
		return &f.Buyer
	case FieldInvoiceNo:
		return &f.InvoiceNo
	case FieldCategory:
		return &f.Category
	default:
		return nil
	}
}

func cleanRequests(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func joinPending(p []string) string { return strings.Join(p, "; ") }

// Mutation is one compare-and-set write: Next replaces the stored row at Next.Version()-1
// and Entries are appended to the audit trail in the same transaction.
type Mutation struct {
	Next    Document
	Entries []audit.Entry
}
