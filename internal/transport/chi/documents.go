package chi

import (
	"fmt"
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/docreview/internal/domain"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	documentuc "github.com/kailas-cloud/docreview/internal/usecase/document"
	reviewuc "github.com/kailas-cloud/docreview/internal/usecase/review"
)

// writeDocument sends a document with its version as ETag.
func writeDocument(w http.ResponseWriter, r *http.Request, status int, doc domdoc.Document) {
	w.Header().Set("ETag", etag(doc.Version()))
	if u := domain.UsageFromContext(r.Context()); u.Used() {
		w.Header().Set("X-Embedding-Tokens", formatInt(u.Tokens()))
	}
	writeJSON(w, status, documentToResponse(doc))
}

// ingestDocument handles POST /documents.
// A document whose assessment failed is stored; the error status tells the caller to retry.
func (s *Server) ingestDocument(w http.ResponseWriter, r *http.Request) {
	var sd documentuc.StructuredDocument
	if !s.decode(w, r, &sd) {
		return
	}
	doc, err := s.deps.Documents.Ingest(r.Context(), sd)
	if err != nil {
		if doc.ID() != "" {
			w.Header().Set("Location", APIPrefix+"/documents/"+doc.ID())
		}
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", APIPrefix+"/documents/"+doc.ID())
	writeDocument(w, r, http.StatusCreated, doc)
}

// listDocuments handles GET /documents.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	q, err := bindDocumentQuery(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	page, err := s.deps.Documents.List(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	items := make([]DocumentResponse, len(page.Items))
	for i, d := range page.Items {
		items[i] = documentToResponse(d)
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{
		Items:    items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}

func bindDocumentQuery(r *http.Request) (domdoc.Query, error) {
	params := r.URL.Query()
	var (
		statuses       []string
		text, from, to string
		page, pageSize int
	)
	bindings := []struct {
		name string
		dest any
	}{
		{"status", &statuses},
		{"q", &text},
		{"from", &from},
		{"to", &to},
		{"page", &page},
		{"page_size", &pageSize},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, params, b.dest); err != nil {
			return domdoc.Query{}, domain.NewValidation(b.name, err.Error())
		}
	}

	q := domdoc.Query{Q: text, Page: page, PageSize: pageSize}
	for _, raw := range statuses {
		st, err := domdoc.ParseStatus(raw)
		if err != nil {
			return domdoc.Query{}, err
		}
		q.Statuses = append(q.Statuses, st)
	}
	var err error
	if q.From, err = domdoc.ParseDate(from); err != nil {
		return domdoc.Query{}, domain.NewValidation("from", "must be an ISO-8601 date")
	}
	if q.To, err = domdoc.ParseDate(to); err != nil {
		return domdoc.Query{}, domain.NewValidation("to", "must be an ISO-8601 date")
	}
	return q, nil
}

// getDocument handles GET /documents/{id}.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	detail, err := s.deps.Documents.Get(r.Context(), pathID(r))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(detail.Document.Version()))
	writeJSON(w, http.StatusOK, DocumentDetailResponse{
		DocumentResponse: documentToResponse(detail.Document),
		History:          nonNil(detail.History),
	})
}

// deleteDocument handles DELETE /documents/{id}?reason=.
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	var reason string
	if err := runtime.BindQueryParameter("form", true, false, "reason", r.URL.Query(), &reason); err != nil {
		s.badParam(w, r, "reason", err)
		return
	}
	if err := s.deps.Documents.Forget(r.Context(), pathID(r), reason); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// assessDocument handles POST /documents/{id}/assess.
func (s *Server) assessDocument(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assessor == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "assessment is not configured")
		return
	}
	doc, err := s.deps.Assessor.Assess(r.Context(), pathID(r))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeDocument(w, r, http.StatusOK, doc)
}

// requestInfo handles POST /documents/{id}/request-info.
func (s *Server) requestInfo(w http.ResponseWriter, r *http.Request) {
	version, err := expectedVersion(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	var req RequestInfoRequest
	if !s.decode(w, r, &req) {
		return
	}
	doc, err := s.deps.Reviews.RequestInfo(r.Context(), reviewuc.RequestInfoCmd{
		ID:              pathID(r),
		Requests:        req.Requests,
		Comment:         req.Comment,
		ReviewerID:      reviewer(r, req.ReviewerID),
		ExpectedVersion: version,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeDocument(w, r, http.StatusOK, doc)
}

// approve handles POST /documents/{id}/approve. The body is optional.
func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	version, err := expectedVersion(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	var req ApproveRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	doc, err := s.deps.Reviews.Approve(r.Context(), reviewuc.ApproveCmd{
		ID:              pathID(r),
		Comment:         req.Comment,
		ReviewerID:      reviewer(r, req.ReviewerID),
		ExpectedVersion: version,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeDocument(w, r, http.StatusOK, doc)
}

// reject handles POST /documents/{id}/reject.
func (s *Server) reject(w http.ResponseWriter, r *http.Request) {
	version, err := expectedVersion(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	var req RejectRequest
	if !s.decode(w, r, &req) {
		return
	}
	doc, err := s.deps.Reviews.Reject(r.Context(), reviewuc.RejectCmd{
		ID:              pathID(r),
		Reason:          req.Reason,
		Comment:         req.Comment,
		ReviewerID:      reviewer(r, req.ReviewerID),
		ExpectedVersion: version,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeDocument(w, r, http.StatusOK, doc)
}

// updateFields handles PATCH /documents/{id}/fields.
func (s *Server) updateFields(w http.ResponseWriter, r *http.Request) {
	version, err := expectedVersion(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	var req UpdateFieldsRequest
	if !s.decode(w, r, &req) {
		return
	}
	doc, err := s.deps.Reviews.UpdateFields(r.Context(), reviewuc.UpdateFieldsCmd{
		ID:              pathID(r),
		Changes:         req.Changes,
		Reason:          req.Reason,
		ReviewerID:      reviewer(r, req.ReviewerID),
		ExpectedVersion: version,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeDocument(w, r, http.StatusOK, doc)
}

// getAudit handles GET /documents/{id}/audit. History outlives deletion.
func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	entries, err := s.deps.Audit.History(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if len(entries) == 0 {
		s.handleDomainError(w, r, fmt.Errorf("document %s: %w", id, domain.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, AuditResponse{DocumentID: id, Entries: entries})
}

// batchApprove handles POST /documents/batch/approve.
func (s *Server) batchApprove(w http.ResponseWriter, r *http.Request) {
	var req BatchApproveRequest
	if !s.decode(w, r, &req) {
		return
	}
	results, err := s.deps.Reviews.BatchApprove(r.Context(), req.IDs, reviewer(r, req.ReviewerID), req.Comment)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchToResponse(results))
}

// batchReassess handles POST /documents/batch/reassess.
func (s *Server) batchReassess(w http.ResponseWriter, r *http.Request) {
	if s.deps.Batch == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "batch reassessment is not configured")
		return
	}
	var req BatchReassessRequest
	if !s.decode(w, r, &req) {
		return
	}
	results, err := s.deps.Batch.Reassess(r.Context(), req.IDs)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchToResponse(results))
}

// addNote handles POST /documents/{id}/notes.
func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	entry, err := s.deps.Audit.AddNote(r.Context(), pathID(r), reviewer(r, req.ReviewerID), req.Note)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
