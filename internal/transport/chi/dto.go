package chi

import (
	"time"

	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	dombatch "github.com/kailas-cloud/docreview/internal/domain/batch"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	"github.com/kailas-cloud/docreview/internal/domain/duplicate"
	"github.com/kailas-cloud/docreview/internal/domain/policy"
	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
	domusage "github.com/kailas-cloud/docreview/internal/domain/usage"
	healthuc "github.com/kailas-cloud/docreview/internal/usecase/health"
)

// RequestInfoRequest is the body of POST /documents/{id}/request-info.
type RequestInfoRequest struct {
	Requests   []string `json:"requests" validate:"required,min=1,max=20,dive,max=512"`
	Comment    string   `json:"comment" validate:"max=2000"`
	ReviewerID string   `json:"reviewer_id" validate:"max=128"`
}

// ApproveRequest is the body of POST /documents/{id}/approve.
type ApproveRequest struct {
	Comment    string `json:"comment" validate:"max=2000"`
	ReviewerID string `json:"reviewer_id" validate:"max=128"`
}

// NoteRequest is the body of POST /documents/{id}/notes.
type NoteRequest struct {
	Note       string `json:"note" validate:"required,max=2000"`
	ReviewerID string `json:"reviewer_id" validate:"max=128"`
}

// RejectRequest is the body of POST /documents/{id}/reject.
type RejectRequest struct {
	Reason     string `json:"reason" validate:"required,max=2000"`
	Comment    string `json:"comment" validate:"max=2000"`
	ReviewerID string `json:"reviewer_id" validate:"max=128"`
}

// UpdateFieldsRequest is the body of PATCH /documents/{id}/fields.
type UpdateFieldsRequest struct {
	Changes    map[string]string `json:"changes" validate:"required,min=1,max=100"`
	Reason     string            `json:"reason" validate:"max=2000"`
	ReviewerID string            `json:"reviewer_id" validate:"max=128"`
}

// BatchApproveRequest is the body of POST /documents/batch/approve.
type BatchApproveRequest struct {
	IDs        []string `json:"ids" validate:"required,min=1,dive,required,max=64"`
	Comment    string   `json:"comment" validate:"max=2000"`
	ReviewerID string   `json:"reviewer_id" validate:"max=128"`
}

// BatchReassessRequest is the body of POST /documents/batch/reassess.
type BatchReassessRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required,max=64"`
}

// DeleteRulesRequest is the body of POST /rules/delete.
type DeleteRulesRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
}

// RiskResponse is the latest assessment of a document.
type RiskResponse struct {
	HighestSeverity     policy.Severity       `json:"highest_severity,omitempty"`
	PolicyFlags         []policy.Flag         `json:"policy_flags"`
	AnomalyTags         []string              `json:"anomaly_tags"`
	DuplicateCandidates []duplicate.Candidate `json:"duplicate_candidates"`
	AssessedAt          *time.Time            `json:"assessed_at"`
}

// DocumentResponse is a document as served by the API.
type DocumentResponse struct {
	ID               string            `json:"id"`
	Version          int64             `json:"version"`
	Status           domdoc.Status     `json:"status"`
	FileName         string            `json:"file_name"`
	Vendor           string            `json:"vendor"`
	Buyer            string            `json:"buyer"`
	InvoiceNo        string            `json:"invoice_no"`
	Category         string            `json:"category"`
	Currency         string            `json:"currency"`
	IssueDate        *string           `json:"issue_date"`
	Amount           *string           `json:"amount"`
	TaxAmount        *string           `json:"tax_amount"`
	OCRConfidence    float64           `json:"ocr_confidence"`
	StructuredFields map[string]string `json:"structured_fields,omitempty"`
	PendingMaterials []string          `json:"pending_materials"`
	Risk             RiskResponse      `json:"risk"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// DocumentDetailResponse is a document with its audit history.
type DocumentDetailResponse struct {
	DocumentResponse
	History []domaudit.Entry `json:"history"`
}

// DocumentListResponse is one page of the review queue.
type DocumentListResponse struct {
	Items    []DocumentResponse `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// AuditResponse is a document's history in order.
type AuditResponse struct {
	DocumentID string           `json:"document_id"`
	Entries    []domaudit.Entry `json:"entries"`
}

// BatchItem is the outcome of one batch item.
type BatchItem struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Error  *ErrorResponse `json:"error,omitempty"`
}

// BatchResponse reports every item of a batch operation.
type BatchResponse struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
}

// RuleResponse is the head version of a rule.
type RuleResponse struct {
	ID         string        `json:"id"`
	Version    int           `json:"version"`
	Title      string        `json:"title"`
	Summary    string        `json:"summary,omitempty"`
	Content    string        `json:"content"`
	Category   string        `json:"category,omitempty"`
	Tags       []string      `json:"tags"`
	RiskTags   []string      `json:"risk_tags"`
	Scope      domrule.Scope `json:"scope"`
	ChangeNote string        `json:"change_note,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// RuleVersionResponse is one immutable rule snapshot.
type RuleVersionResponse struct {
	RuleID     string        `json:"rule_id"`
	Version    int           `json:"version"`
	Title      string        `json:"title"`
	Summary    string        `json:"summary,omitempty"`
	Content    string        `json:"content"`
	RiskTags   []string      `json:"risk_tags"`
	Scope      domrule.Scope `json:"scope"`
	ChangeNote string        `json:"change_note,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// RuleListResponse is one page of rules.
type RuleListResponse struct {
	Items    []RuleResponse `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// CountResponse reports how many items an operation touched.
type CountResponse struct {
	Count int `json:"count"`
}

// UsageResponse is the embedding spend of one period.
type UsageResponse struct {
	Period           domusage.Period `json:"period"`
	PeriodStart      time.Time       `json:"period_start"`
	PeriodEnd        time.Time       `json:"period_end"`
	Provider         string          `json:"provider"`
	Tokens           int64           `json:"tokens"`
	Limit            int64           `json:"limit"`
	Remaining        int64           `json:"remaining"`
	CostMillidollars int64           `json:"cost_millidollars"`
	Exhausted        bool            `json:"exhausted"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status healthuc.Status                 `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

func documentToResponse(d domdoc.Document) DocumentResponse {
	f := d.Fields()
	a := d.Assessment()
	resp := DocumentResponse{
		ID:               d.ID(),
		Version:          d.Version(),
		Status:           d.Status(),
		FileName:         f.FileName,
		Vendor:           f.Vendor,
		Buyer:            f.Buyer,
		InvoiceNo:        f.InvoiceNo,
		Category:         f.Category,
		Currency:         f.Currency,
		IssueDate:        optional(domdoc.FormatDate(f.IssueDate)),
		Amount:           optional(domdoc.FormatAmount(f.Amount)),
		TaxAmount:        optional(domdoc.FormatAmount(f.TaxAmount)),
		OCRConfidence:    f.OCRConfidence,
		StructuredFields: f.Structured,
		PendingMaterials: nonNil(d.PendingMaterials()),
		Risk: RiskResponse{
			HighestSeverity:     policy.Highest(a.Flags),
			PolicyFlags:         nonNil(a.Flags),
			AnomalyTags:         nonNil(a.AnomalyTags),
			DuplicateCandidates: nonNil(a.Duplicates),
			AssessedAt:          a.AssessedAt,
		},
		CreatedAt: d.CreatedAt(),
		UpdatedAt: d.UpdatedAt(),
	}
	return resp
}

func batchToResponse(results []dombatch.Result) BatchResponse {
	sum := dombatch.Summarize(results)
	resp := BatchResponse{
		Items:     make([]BatchItem, len(results)),
		Succeeded: sum.OK,
		Failed:    sum.Failed,
		Skipped:   sum.Skipped,
	}
	for i, r := range results {
		item := BatchItem{ID: r.ID(), Status: string(r.Status())}
		if r.Err() != nil {
			item.Error = &ErrorResponse{Code: batchErrorCode(r.Err()), Message: safeMessage(r.Err())}
		}
		resp.Items[i] = item
	}
	return resp
}

func ruleToResponse(r domrule.Rule) RuleResponse {
	return RuleResponse{
		ID:         r.ID,
		Version:    r.Version,
		Title:      r.Title,
		Summary:    r.Summary,
		Content:    r.Content,
		Category:   r.Category,
		Tags:       nonNil(r.Tags),
		RiskTags:   nonNil(r.RiskTags),
		Scope:      r.Scope,
		ChangeNote: r.ChangeNote,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func ruleVersionToResponse(v domrule.Version) RuleVersionResponse {
	return RuleVersionResponse{
		RuleID:     v.RuleID,
		Version:    v.Version,
		Title:      v.Title,
		Summary:    v.Summary,
		Content:    v.Content,
		RiskTags:   nonNil(v.RiskTags),
		Scope:      v.Scope,
		ChangeNote: v.ChangeNote,
		CreatedAt:  v.CreatedAt,
	}
}

func usageToResponse(r domusage.Report) UsageResponse {
	return UsageResponse{
		Period:           r.Period,
		PeriodStart:      r.Start,
		PeriodEnd:        r.End,
		Provider:         r.Provider,
		Tokens:           r.Tokens,
		Limit:            r.Limit,
		Remaining:        r.Remaining,
		CostMillidollars: r.CostMillidollars,
		Exhausted:        r.Exhausted(),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nonNil keeps empty lists as [] on the wire.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
