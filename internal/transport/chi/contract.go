package chi

import (
	"context"

	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	dombatch "github.com/kailas-cloud/docreview/internal/domain/batch"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
	domusage "github.com/kailas-cloud/docreview/internal/domain/usage"
	documentuc "github.com/kailas-cloud/docreview/internal/usecase/document"
	healthuc "github.com/kailas-cloud/docreview/internal/usecase/health"
	reviewuc "github.com/kailas-cloud/docreview/internal/usecase/review"
)

// DocumentService is the document lifecycle outside review.
type DocumentService interface {
	Ingest(ctx context.Context, sd documentuc.StructuredDocument) (domdoc.Document, error)
	Get(ctx context.Context, id string) (documentuc.Detail, error)
	List(ctx context.Context, q domdoc.Query) (domdoc.Page, error)
	Forget(ctx context.Context, id, reason string) error
}

// ReviewService is the review state machine.
type ReviewService interface {
	RequestInfo(ctx context.Context, cmd reviewuc.RequestInfoCmd) (domdoc.Document, error)
	Approve(ctx context.Context, cmd reviewuc.ApproveCmd) (domdoc.Document, error)
	Reject(ctx context.Context, cmd reviewuc.RejectCmd) (domdoc.Document, error)
	UpdateFields(ctx context.Context, cmd reviewuc.UpdateFieldsCmd) (domdoc.Document, error)
	BatchApprove(ctx context.Context, ids []string, reviewerID, comment string) ([]dombatch.Result, error)
}

// Assessor runs a risk assessment on demand.
type Assessor interface {
	Assess(ctx context.Context, id string) (domdoc.Document, error)
}

// BatchService re-assesses documents in bulk.
type BatchService interface {
	Reassess(ctx context.Context, ids []string) ([]dombatch.Result, error)
}

// AuditLog reads a document's history and records reviewer notes.
type AuditLog interface {
	History(ctx context.Context, documentID string) ([]domaudit.Entry, error)
	AddNote(ctx context.Context, documentID, reviewerID, note string) (domaudit.Entry, error)
}

// RuleService manages policy rules and the rule index.
type RuleService interface {
	Save(ctx context.Context, in domrule.Input) (domrule.Rule, error)
	Get(ctx context.Context, id string) (domrule.Rule, error)
	List(ctx context.Context, q domrule.ListQuery) (domrule.Page, error)
	Versions(ctx context.Context, id string) ([]domrule.Version, error)
	Delete(ctx context.Context, ids []string) (int, error)
	RefreshIndex(ctx context.Context) (int, error)
}

// UsageReporter reports embedding spend.
type UsageReporter interface {
	Report(ctx context.Context, p domusage.Period) domusage.Report
}

// HealthChecker aggregates dependency probes.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
