package risk

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	"github.com/kailas-cloud/docreview/internal/domain/duplicate"
	"github.com/kailas-cloud/docreview/internal/domain/policy"
)

type mockRepo struct {
	getFn    func(ctx context.Context, id string) (domdoc.Document, error)
	updateFn func(ctx context.Context, next domdoc.Document, entries []domaudit.Entry) error
}

func (m *mockRepo) Get(ctx context.Context, id string) (domdoc.Document, error) {
	return m.getFn(ctx, id)
}

func (m *mockRepo) Update(ctx context.Context, next domdoc.Document, entries []domaudit.Entry) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, next, entries)
	}
	return nil
}

type mockPolicy struct {
	fn func(ctx context.Context, doc domdoc.Document) ([]policy.Flag, error)
}

func (m *mockPolicy) Evaluate(ctx context.Context, doc domdoc.Document) ([]policy.Flag, error) {
	return m.fn(ctx, doc)
}

type mockAnomaly struct {
	fn func(ctx context.Context, doc domdoc.Document) ([]string, error)
}

func (m *mockAnomaly) Tags(ctx context.Context, doc domdoc.Document) ([]string, error) {
	return m.fn(ctx, doc)
}

type mockDups struct {
	fn func(ctx context.Context, doc domdoc.Document) ([]duplicate.Candidate, error)
}

func (m *mockDups) FindDuplicates(ctx context.Context, doc domdoc.Document) ([]duplicate.Candidate, error) {
	return m.fn(ctx, doc)
}

var (
	t0 = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Minute)
)

func storedDoc(t *testing.T) domdoc.Document {
	t.Helper()
	d, err := domdoc.New("doc-1", domdoc.Fields{Vendor: "Acme", Category: "meals"}, t0)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func highFlag() policy.Flag {
	return policy.Flag{RuleID: "r-1", RuleTitle: "Meals cap", Severity: policy.SeverityHigh, Message: "over cap"}
}

func okDetectors() (*mockPolicy, *mockAnomaly, *mockDups) {
	return &mockPolicy{fn: func(context.Context, domdoc.Document) ([]policy.Flag, error) {
			return []policy.Flag{highFlag()}, nil
		}},
		&mockAnomaly{fn: func(context.Context, domdoc.Document) ([]string, error) {
			return []string{"amount_outlier"}, nil
		}},
		&mockDups{fn: func(context.Context, domdoc.Document) ([]duplicate.Candidate, error) {
			return []duplicate.Candidate{{DocumentID: "doc-0", Score: 1}}, nil
		}}
}

func newService(repo Repository, p PolicyEvaluator, a AnomalyDetector, d DuplicateFinder) *Service {
	return New(repo, p, a, d, zap.NewNop()).WithClock(func() time.Time { return t1 })
}

func TestAssess_CommitsWithAudit(t *testing.T) {
	doc := storedDoc(t)
	var committed domdoc.Document
	var entries []domaudit.Entry
	repo := &mockRepo{
		getFn: func(context.Context, string) (domdoc.Document, error) { return doc, nil },
		updateFn: func(_ context.Context, next domdoc.Document, e []domaudit.Entry) error {
			committed, entries = next, e
			return nil
		},
	}
	p, a, d := okDetectors()

	got, err := newService(repo, p, a, d).Assess(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if got.Version() != 2 || committed.Version() != 2 {
		t.Errorf("version = %d, want 2", got.Version())
	}
	if got.Status() != domdoc.StatusUploaded {
		t.Errorf("status = %s, want uploaded", got.Status())
	}
	as := got.Assessment()
	if as.AssessedAt == nil || !as.AssessedAt.Equal(t1) {
		t.Errorf("assessed_at = %v", as.AssessedAt)
	}
	if len(as.Flags) != 1 || len(as.AnomalyTags) != 1 || len(as.Duplicates) != 1 {
		t.Errorf("assessment = %+v", as)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	e := entries[0]
	if e.FieldName != domaudit.FieldRiskAssessment || e.ReviewerID != domaudit.SystemReviewer || e.OldValue != "" {
		t.Errorf("entry = %+v", e)
	}
	if e.NewValue != "flags=1 highest=HIGH anomalies=1 duplicates=1" {
		t.Errorf("new value = %q", e.NewValue)
	}
	if !e.Timestamp.Equal(t1) {
		t.Errorf("timestamp = %v", e.Timestamp)
	}
}

func TestAssess_DetectorFailureWritesNothing(t *testing.T) {
	doc := storedDoc(t)
	repo := &mockRepo{
		getFn: func(context.Context, string) (domdoc.Document, error) { return doc, nil },
		updateFn: func(context.Context, domdoc.Document, []domaudit.Entry) error {
			t.Error("Update must not be called")
			return nil
		},
	}
	_, a, d := okDetectors()
	p := &mockPolicy{fn: func(context.Context, domdoc.Document) ([]policy.Flag, error) {
		return nil, domain.NewIndexUnavailable("rules", "index not built", nil)
	}}

	_, err := newService(repo, p, a, d).Assess(context.Background(), "doc-1")
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestAssess_FailureCancelsSiblings(t *testing.T) {
	doc := storedDoc(t)
	repo := &mockRepo{getFn: func(context.Context, string) (domdoc.Document, error) { return doc, nil }}
	p := &mockPolicy{fn: func(context.Context, domdoc.Document) ([]policy.Flag, error) {
		return nil, errors.New("embedder down")
	}}
	a := &mockAnomaly{fn: func(ctx context.Context, _ domdoc.Document) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	d := &mockDups{fn: func(ctx context.Context, _ domdoc.Document) ([]duplicate.Candidate, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	done := make(chan error, 1)
	go func() {
		_, err := newService(repo, p, a, d).Assess(context.Background(), "doc-1")
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("siblings were not cancelled")
	}
}

func TestAssess_ConflictPropagates(t *testing.T) {
	doc := storedDoc(t)
	repo := &mockRepo{
		getFn: func(context.Context, string) (domdoc.Document, error) { return doc, nil },
		updateFn: func(context.Context, domdoc.Document, []domaudit.Entry) error {
			return domain.NewConcurrentModification("doc-1", 5)
		},
	}
	p, a, d := okDetectors()
	_, err := newService(repo, p, a, d).Assess(context.Background(), "doc-1")

	var cm *domain.ConcurrentModificationError
	if !errors.As(err, &cm) || cm.CurrentVersion != 5 {
		t.Fatalf("expected ConcurrentModificationError, got %v", err)
	}
}

func TestAssess_NotFound(t *testing.T) {
	repo := &mockRepo{getFn: func(context.Context, string) (domdoc.Document, error) {
		return domdoc.Document{}, domain.ErrNotFound
	}}
	p, a, d := okDetectors()
	if _, err := newService(repo, p, a, d).Assess(context.Background(), "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	doc := storedDoc(t)
	p, a, d := okDetectors()
	svc := newService(&mockRepo{}, p, a, d)

	first, err := svc.Compute(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Compute(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("assessments differ:\n%+v\n%+v", first, second)
	}
}

func TestPlan_ReassessKeepsReviewingStatus(t *testing.T) {
	doc := storedDoc(t)
	reviewing, _, err := doc.RequestInfo([]string{"receipt"}, t0)
	if err != nil {
		t.Fatal(err)
	}
	p, a, d := okDetectors()
	next, entries, err := newService(&mockRepo{}, p, a, d).Plan(context.Background(), reviewing)
	if err != nil {
		t.Fatal(err)
	}
	if next.Status() != domdoc.StatusReviewing || next.Version() != reviewing.Version()+1 {
		t.Errorf("status=%s version=%d", next.Status(), next.Version())
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d", len(entries))
	}
}

func TestSummary_Unassessed(t *testing.T) {
	if s := Summary(storedDoc(t)); s != "" {
		t.Errorf("Summary = %q", s)
	}
}
