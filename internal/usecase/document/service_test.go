package document

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
)

// --- Mocks ---

type mockDocRepo struct {
	docs       map[string]domdoc.Document
	created    []domaudit.Entry
	deleted    []domaudit.Entry
	createErr  error
	listResult domdoc.Page
	lastQuery  domdoc.Query
}

func newMockRepo() *mockDocRepo { return &mockDocRepo{docs: map[string]domdoc.Document{}} }

func (m *mockDocRepo) Create(_ context.Context, d domdoc.Document, entries []domaudit.Entry) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.docs[d.ID()]; ok {
		return domain.ErrAlreadyExists
	}
	m.docs[d.ID()] = d
	m.created = append(m.created, entries...)
	return nil
}

func (m *mockDocRepo) Get(_ context.Context, id string) (domdoc.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return domdoc.Document{}, domain.ErrNotFound
	}
	return d, nil
}

func (m *mockDocRepo) List(_ context.Context, q domdoc.Query) (domdoc.Page, error) {
	m.lastQuery = q
	return m.listResult, nil
}

func (m *mockDocRepo) SoftDelete(_ context.Context, id string, entries []domaudit.Entry) error {
	if _, ok := m.docs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.docs, id)
	m.deleted = append(m.deleted, entries...)
	return nil
}

type mockAssessor struct {
	calls    int
	assessFn func(ctx context.Context, id string) (domdoc.Document, error)
}

func (m *mockAssessor) Assess(ctx context.Context, id string) (domdoc.Document, error) {
	m.calls++
	return m.assessFn(ctx, id)
}

type mockFingerprints struct {
	indexed   []string
	forgotten []string
	indexErr  error
}

func (m *mockFingerprints) Index(_ context.Context, doc domdoc.Document) error {
	m.indexed = append(m.indexed, doc.ID())
	return m.indexErr
}

func (m *mockFingerprints) Forget(_ context.Context, id string) error {
	m.forgotten = append(m.forgotten, id)
	return nil
}

type mockHistory struct {
	entries []domaudit.Entry
	err     error
}

func (m *mockHistory) History(context.Context, string) ([]domaudit.Entry, error) {
	return m.entries, m.err
}

var t0 = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

// assessingRepo marks the stored document assessed, as the risk aggregator would.
func assessingRepo(repo *mockDocRepo) *mockAssessor {
	return &mockAssessor{assessFn: func(_ context.Context, id string) (domdoc.Document, error) {
		d := repo.docs[id].WithAssessment(domdoc.Assessment{AnomalyTags: []string{"future_date"}}, t0)
		repo.docs[id] = d
		return d, nil
	}}
}

func newService(repo *mockDocRepo, a Assessor, fps *mockFingerprints) *Service {
	return New(repo, a, fps, &mockHistory{}, zap.NewNop()).
		WithClock(func() time.Time { return t0 }).
		WithIDGenerator(func() string { return "gen-1" })
}

func validInput() StructuredDocument {
	return StructuredDocument{
		FileName:      "invoice.pdf",
		Vendor:        "Acme",
		InvoiceNo:     "INV-1",
		IssueDate:     "2026-06-30",
		Amount:        "1,250.00",
		Category:      "meals",
		RawFields:     map[string]string{"seller_tax_id": "91310000"},
		OCRConfidence: 0.93,
	}
}

// --- Tests ---

func TestIngest_CreatesAssessesAndIndexes(t *testing.T) {
	repo := newMockRepo()
	fps := &mockFingerprints{}
	svc := newService(repo, assessingRepo(repo), fps)

	got, err := svc.Ingest(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if got.ID() != "gen-1" || !got.Assessed() || got.Status() != domdoc.StatusUploaded {
		t.Errorf("doc id=%s assessed=%v status=%s", got.ID(), got.Assessed(), got.Status())
	}
	if got.Fields().Amount.Decimal.String() != "1250" {
		t.Errorf("amount = %s", got.Fields().Amount.Decimal)
	}
	if len(repo.created) != 1 || repo.created[0].FieldName != domaudit.FieldCreated {
		t.Errorf("created entries = %+v", repo.created)
	}
	if len(fps.indexed) != 1 || fps.indexed[0] != "gen-1" {
		t.Errorf("indexed = %v", fps.indexed)
	}
}

func TestIngest_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(sd *StructuredDocument)
		field  string
	}{
		{"bad amount", func(sd *StructuredDocument) { sd.Amount = "twelve" }, "amount"},
		{"bad date", func(sd *StructuredDocument) { sd.IssueDate = "30/06/2026" }, "issue_date"},
		{"confidence out of range", func(sd *StructuredDocument) { sd.OCRConfidence = 1.5 }, "ocr_confidence"},
		{"bad currency", func(sd *StructuredDocument) { sd.Currency = "RMB1" }, "currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			svc := newService(repo, assessingRepo(repo), &mockFingerprints{})
			sd := validInput()
			tt.mutate(&sd)

			_, err := svc.Ingest(context.Background(), sd)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
			if len(repo.docs) != 0 {
				t.Error("invalid input must not be stored")
			}
		})
	}
}

func TestIngest_AssessmentFailureKeepsDocument(t *testing.T) {
	repo := newMockRepo()
	fps := &mockFingerprints{}
	failing := &mockAssessor{assessFn: func(context.Context, string) (domdoc.Document, error) {
		return domdoc.Document{}, domain.NewIndexUnavailable("rules", "index not built", nil)
	}}
	svc := newService(repo, failing, fps)

	got, err := svc.Ingest(context.Background(), validInput())
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	stored := repo.docs["gen-1"]
	if stored.Assessed() || stored.Status() != domdoc.StatusUploaded {
		t.Errorf("stored assessed=%v status=%s", stored.Assessed(), stored.Status())
	}
	if got.ID() != "gen-1" || len(fps.indexed) != 1 {
		t.Errorf("got id=%q indexed=%v", got.ID(), fps.indexed)
	}
}

func TestIngest_RetryReassessesUnassessed(t *testing.T) {
	repo := newMockRepo()
	sd := validInput()
	sd.ID = "ext-42"
	failing := &mockAssessor{assessFn: func(context.Context, string) (domdoc.Document, error) {
		return domdoc.Document{}, domain.NewIndexUnavailable("rules", "down", nil)
	}}
	if _, err := newService(repo, failing, &mockFingerprints{}).Ingest(context.Background(), sd); err == nil {
		t.Fatal("expected first attempt to fail")
	}

	ok := assessingRepo(repo)
	got, err := newService(repo, ok, &mockFingerprints{}).Ingest(context.Background(), sd)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !got.Assessed() || ok.calls != 1 {
		t.Errorf("assessed=%v calls=%d", got.Assessed(), ok.calls)
	}

	if _, err := newService(repo, ok, &mockFingerprints{}).Ingest(context.Background(), sd); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("third attempt: expected ErrAlreadyExists, got %v", err)
	}
}

func TestIngest_FingerprintFailureIsNotFatal(t *testing.T) {
	repo := newMockRepo()
	fps := &mockFingerprints{indexErr: errors.New("valkey down")}
	if _, err := newService(repo, assessingRepo(repo), fps).Ingest(context.Background(), validInput()); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
}

func TestGet_WithHistory(t *testing.T) {
	repo := newMockRepo()
	d, _ := domdoc.New("d1", domdoc.Fields{}, t0)
	repo.docs["d1"] = d
	hist := &mockHistory{entries: []domaudit.Entry{{Seq: 1, DocumentID: "d1", FieldName: domaudit.FieldCreated}}}
	svc := New(repo, nil, &mockFingerprints{}, hist, zap.NewNop())

	got, err := svc.Get(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Document.ID() != "d1" || len(got.History) != 1 {
		t.Errorf("detail = %+v", got)
	}
	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestList_ClampsAndValidatesRange(t *testing.T) {
	repo := newMockRepo()
	svc := newService(repo, nil, &mockFingerprints{})

	if _, err := svc.List(context.Background(), domdoc.Query{PageSize: 1000}); err != nil {
		t.Fatal(err)
	}
	if repo.lastQuery.PageSize != domdoc.MaxPageSize || repo.lastQuery.Page != 1 {
		t.Errorf("query = %+v", repo.lastQuery)
	}

	from, to := t0, t0.Add(-time.Hour)
	if _, err := svc.List(context.Background(), domdoc.Query{From: &from, To: &to}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestForget(t *testing.T) {
	repo := newMockRepo()
	d, _ := domdoc.New("d1", domdoc.Fields{}, t0.Add(time.Hour))
	repo.docs["d1"] = d
	fps := &mockFingerprints{}
	svc := newService(repo, nil, fps)

	if err := svc.Forget(context.Background(), "d1", "file removed"); err != nil {
		t.Fatal(err)
	}
	if len(fps.forgotten) != 1 || len(repo.deleted) != 1 {
		t.Fatalf("forgotten=%v deleted=%v", fps.forgotten, repo.deleted)
	}
	e := repo.deleted[0]
	if e.FieldName != domaudit.FieldDeleted || e.Reason != "file removed" || !e.Timestamp.Equal(d.UpdatedAt()) {
		t.Errorf("entry = %+v", e)
	}
	if err := svc.Forget(context.Background(), "d1", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second forget: %v", err)
	}
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	var sd StructuredDocument
	if err := json.Unmarshal([]byte(`{"amount": 1250.5, "tax_amount": "162.57"}`), &sd); err != nil {
		t.Fatal(err)
	}
	if sd.Amount != "1250.5" || sd.TaxAmount != "162.57" {
		t.Errorf("amount=%q tax=%q", sd.Amount, sd.TaxAmount)
	}
}
