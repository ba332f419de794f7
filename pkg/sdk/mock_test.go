package sdk

import (
	"context"

	dombatch "github.com/kailas-cloud/docreview/internal/domain/batch"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
	documentuc "github.com/kailas-cloud/docreview/internal/usecase/document"
	reviewuc "github.com/kailas-cloud/docreview/internal/usecase/review"
)

// --- documentUseCase mock ---

type mockDocumentUC struct {
	ingestFn func(ctx context.Context, sd documentuc.StructuredDocument) (domdoc.Document, error)
	getFn    func(ctx context.Context, id string) (documentuc.Detail, error)
	listFn   func(ctx context.Context, q domdoc.Query) (domdoc.Page, error)
	forgetFn func(ctx context.Context, id, reason string) error
}

func (m *mockDocumentUC) Ingest(ctx context.Context, sd documentuc.StructuredDocument) (domdoc.Document, error) {
	return m.ingestFn(ctx, sd)
}

func (m *mockDocumentUC) Get(ctx context.Context, id string) (documentuc.Detail, error) {
	return m.getFn(ctx, id)
}

func (m *mockDocumentUC) List(ctx context.Context, q domdoc.Query) (domdoc.Page, error) {
	return m.listFn(ctx, q)
}

func (m *mockDocumentUC) Forget(ctx context.Context, id, reason string) error {
	return m.forgetFn(ctx, id, reason)
}

// --- reviewUseCase mock ---

type mockReviewUC struct {
	requestInfoFn  func(ctx context.Context, cmd reviewuc.RequestInfoCmd) (domdoc.Document, error)
	approveFn      func(ctx context.Context, cmd reviewuc.ApproveCmd) (domdoc.Document, error)
	rejectFn       func(ctx context.Context, cmd reviewuc.RejectCmd) (domdoc.Document, error)
	updateFieldsFn func(ctx context.Context, cmd reviewuc.UpdateFieldsCmd) (domdoc.Document, error)
	batchApproveFn func(ctx context.Context, ids []string, reviewerID, comment string) ([]dombatch.Result, error)
}

func (m *mockReviewUC) RequestInfo(ctx context.Context, cmd reviewuc.RequestInfoCmd) (domdoc.Document, error) {
	return m.requestInfoFn(ctx, cmd)
}

func (m *mockReviewUC) Approve(ctx context.Context, cmd reviewuc.ApproveCmd) (domdoc.Document, error) {
	return m.approveFn(ctx, cmd)
}

func (m *mockReviewUC) Reject(ctx context.Context, cmd reviewuc.RejectCmd) (domdoc.Document, error) {
	return m.rejectFn(ctx, cmd)
}

func (m *mockReviewUC) UpdateFields(ctx context.Context, cmd reviewuc.UpdateFieldsCmd) (domdoc.Document, error) {
	return m.updateFieldsFn(ctx, cmd)
}

func (m *mockReviewUC) BatchApprove(
	ctx context.Context, ids []string, reviewerID, comment string,
) ([]dombatch.Result, error) {
	return m.batchApproveFn(ctx, ids, reviewerID, comment)
}

// --- ruleUseCase mock ---

type mockRuleUC struct {
	saveFn    func(ctx context.Context, in domrule.Input) (domrule.Rule, error)
	getFn     func(ctx context.Context, id string) (domrule.Rule, error)
	listFn    func(ctx context.Context, q domrule.ListQuery) (domrule.Page, error)
	deleteFn  func(ctx context.Context, ids []string) (int, error)
	refreshFn func(ctx context.Context) (int, error)
}

func (m *mockRuleUC) Save(ctx context.Context, in domrule.Input) (domrule.Rule, error) {
	return m.saveFn(ctx, in)
}

func (m *mockRuleUC) Get(ctx context.Context, id string) (domrule.Rule, error) {
	return m.getFn(ctx, id)
}

func (m *mockRuleUC) List(ctx context.Context, q domrule.ListQuery) (domrule.Page, error) {
	return m.listFn(ctx, q)
}

func (m *mockRuleUC) Delete(ctx context.Context, ids []string) (int, error) {
	return m.deleteFn(ctx, ids)
}

func (m *mockRuleUC) RefreshIndex(ctx context.Context) (int, error) {
	return m.refreshFn(ctx)
}
