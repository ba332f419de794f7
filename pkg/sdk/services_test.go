package sdk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/docreview/internal/domain"
	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	dombatch "github.com/kailas-cloud/docreview/internal/domain/batch"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
	documentuc "github.com/kailas-cloud/docreview/internal/usecase/document"
	reviewuc "github.com/kailas-cloud/docreview/internal/usecase/review"
)

func testDoc(t *testing.T, id string) domdoc.Document {
	t.Helper()
	d, err := domdoc.New(id, domdoc.Fields{
		FileName: "a.pdf",
		Vendor:   "Acme",
		Amount:   decimal.NewNullDecimal(decimal.RequireFromString("99.90")),
	}, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new doc: %v", err)
	}
	return d
}

// --- DocumentService ---

func TestDocumentService_Ingest(t *testing.T) {
	mock := &mockDocumentUC{
		ingestFn: func(_ context.Context, sd documentuc.StructuredDocument) (domdoc.Document, error) {
			if sd.Vendor != "Acme" || sd.Amount != "99.90" {
				t.Errorf("unexpected payload: %+v", sd)
			}
			return testDoc(t, "doc-1"), nil
		},
	}

	svc := &DocumentService{docSvc: mock}
	doc, err := svc.Ingest(context.Background(), Invoice{Vendor: "Acme", Amount: "99.90"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID != "doc-1" {
		t.Errorf("ID = %q, want doc-1", doc.ID)
	}
	if doc.Status != StatusUploaded {
		t.Errorf("Status = %q, want uploaded", doc.Status)
	}
	if doc.Amount == nil || doc.Amount.String() != "99.9" {
		t.Errorf("Amount = %v, want 99.9", doc.Amount)
	}
	if doc.TaxAmount != nil {
		t.Errorf("TaxAmount = %v, want nil", doc.TaxAmount)
	}
}

func TestDocumentService_Ingest_StoredUnassessed(t *testing.T) {
	mock := &mockDocumentUC{
		ingestFn: func(context.Context, documentuc.StructuredDocument) (domdoc.Document, error) {
			return testDoc(t, "doc-2"), domain.NewIndexUnavailable("rules", "index not built", nil)
		},
	}

	svc := &DocumentService{docSvc: mock}
	doc, err := svc.Ingest(context.Background(), Invoice{Vendor: "Acme"})
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("err = %v, want ErrIndexUnavailable", err)
	}
	if doc.ID != "doc-2" || doc.Assessed {
		t.Errorf("doc = %+v, want stored unassessed doc-2", doc)
	}
}

func TestDocumentService_Get(t *testing.T) {
	mock := &mockDocumentUC{
		getFn: func(_ context.Context, id string) (documentuc.Detail, error) {
			return documentuc.Detail{
				Document: testDoc(t, id),
				History:  []domaudit.Entry{{Seq: 1, DocumentID: id, FieldName: "created", ReviewerID: "system"}},
			}, nil
		},
	}

	svc := &DocumentService{docSvc: mock}
	doc, history, err := svc.Get(context.Background(), "doc-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID != "doc-3" {
		t.Errorf("ID = %q", doc.ID)
	}
	if len(history) != 1 || history[0].FieldName != "created" {
		t.Errorf("history = %+v", history)
	}
}

func TestDocumentService_Get_NotFound(t *testing.T) {
	mock := &mockDocumentUC{
		getFn: func(context.Context, string) (documentuc.Detail, error) {
			return documentuc.Detail{}, domain.ErrNotFound
		},
	}

	svc := &DocumentService{docSvc: mock}
	_, _, err := svc.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDocumentService_List(t *testing.T) {
	mock := &mockDocumentUC{
		listFn: func(_ context.Context, q domdoc.Query) (domdoc.Page, error) {
			if len(q.Statuses) != 1 || q.Statuses[0] != domdoc.StatusReviewing {
				t.Errorf("statuses = %v", q.Statuses)
			}
			if q.Q != "acme" || q.Page != 2 {
				t.Errorf("query = %+v", q)
			}
			return domdoc.Page{Items: []domdoc.Document{testDoc(t, "a"), testDoc(t, "b")}, Total: 12, Page: 2, PageSize: 10}, nil
		},
	}

	svc := &DocumentService{docSvc: mock}
	list, err := svc.List(context.Background(), ListOptions{Statuses: []Status{StatusReviewing}, Query: "acme", Page: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list.Documents) != 2 || list.Total != 12 {
		t.Errorf("list = %+v", list)
	}
}

func TestDocumentService_Delete(t *testing.T) {
	var gotReason string
	mock := &mockDocumentUC{
		forgetFn: func(_ context.Context, _, reason string) error {
			gotReason = reason
			return nil
		},
	}

	svc := &DocumentService{docSvc: mock}
	if err := svc.Delete(context.Background(), "doc-1", "uploaded twice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotReason != "uploaded twice" {
		t.Errorf("reason = %q", gotReason)
	}
}

// --- ReviewService ---

func TestReviewService_Approve(t *testing.T) {
	mock := &mockReviewUC{
		approveFn: func(_ context.Context, cmd reviewuc.ApproveCmd) (domdoc.Document, error) {
			if cmd.ReviewerID != "alice" || cmd.ExpectedVersion != 0 {
				t.Errorf("cmd = %+v", cmd)
			}
			d, _, err := testDoc(t, cmd.ID).Approve(time.Now())
			return d, err
		},
	}

	svc := &ReviewService{svc: mock}
	doc, err := svc.Approve(context.Background(), "doc-1", "alice", "ok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Status != StatusApproved {
		t.Errorf("Status = %q, want approved", doc.Status)
	}
}

func TestReviewService_Reject_Conflict(t *testing.T) {
	mock := &mockReviewUC{
		rejectFn: func(_ context.Context, cmd reviewuc.RejectCmd) (domdoc.Document, error) {
			return domdoc.Document{}, domain.NewConcurrentModification(cmd.ID, 4)
		},
	}

	svc := &ReviewService{svc: mock}
	_, err := svc.Reject(context.Background(), "doc-1", "bob", "fake receipt", 2)
	var cm *ConcurrentModificationError
	if !errors.As(err, &cm) {
		t.Fatalf("err = %v, want ConcurrentModificationError", err)
	}
	if cm.CurrentVersion != 4 {
		t.Errorf("CurrentVersion = %d, want 4", cm.CurrentVersion)
	}
}

func TestReviewService_BatchApprove(t *testing.T) {
	mock := &mockReviewUC{
		batchApproveFn: func(context.Context, []string, string, string) ([]dombatch.Result, error) {
			return []dombatch.Result{
				dombatch.NewOK("a"),
				dombatch.NewError("b", domain.NewInvalidTransition("review_rejected", "approve")),
			}, nil
		},
	}

	svc := &ReviewService{svc: mock}
	res, err := svc.BatchApprove(context.Background(), []string{"a", "b"}, "alice", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res[0].OK || res[1].OK {
		t.Errorf("results = %+v", res)
	}
	if !errors.Is(res[1].Err, ErrInvalidTransition) {
		t.Errorf("res[1].Err = %v", res[1].Err)
	}
}

// --- RuleService ---

func TestRuleService_Save_ParsesScope(t *testing.T) {
	mock := &mockRuleUC{
		saveFn: func(_ context.Context, in domrule.Input) (domrule.Rule, error) {
			if in.Scope.MaxAmount == nil || in.Scope.MaxAmount.String() != "1000" {
				t.Errorf("max amount = %v", in.Scope.MaxAmount)
			}
			return domrule.Rule{ID: "r1", Version: 1, Title: in.Title, Scope: in.Scope}, nil
		},
	}

	svc := &RuleService{svc: mock}
	r, err := svc.Save(context.Background(), RuleInput{
		Title: "Meal cap",
		Scope: RuleScope{Categories: []string{"meals"}, MaxAmount: "1000"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Scope.MaxAmount != "1000" || r.Version != 1 {
		t.Errorf("rule = %+v", r)
	}
}

func TestRuleService_Save_BadAmount(t *testing.T) {
	svc := &RuleService{svc: &mockRuleUC{}}
	_, err := svc.Save(context.Background(), RuleInput{Title: "x", Scope: RuleScope{MinAmount: "lots"}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestRuleService_RefreshIndex_JobInProgress(t *testing.T) {
	mock := &mockRuleUC{
		refreshFn: func(context.Context) (int, error) { return 0, domain.ErrJobInProgress },
	}

	svc := &RuleService{svc: mock}
	if _, err := svc.RefreshIndex(context.Background()); !errors.Is(err, ErrJobInProgress) {
		t.Fatalf("err = %v, want ErrJobInProgress", err)
	}
}

// --- observer ---

func TestObserver_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}

	mock := &mockRuleUC{
		getFn: func(_ context.Context, id string) (domrule.Rule, error) {
			if id == "missing" {
				return domrule.Rule{}, domain.ErrNotFound
			}
			return domrule.Rule{ID: id}, nil
		},
	}
	svc := &RuleService{svc: mock, obs: obs}
	_, _ = svc.Get(context.Background(), "r1")
	_, _ = svc.Get(context.Background(), "missing")

	if got := testutil.ToFloat64(obs.operations.WithLabelValues("rules.get", "ok")); got != 1 {
		t.Errorf("ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(obs.operations.WithLabelValues("rules.get", "not_found")); got != 1 {
		t.Errorf("not_found = %v, want 1", got)
	}

	// A second client on the same registry reuses the collectors.
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("second observer: %v", err)
	}
}

func TestNilObserver(t *testing.T) {
	var o *observer
	o.observe("noop", time.Now(), errors.New("ignored"))
}
