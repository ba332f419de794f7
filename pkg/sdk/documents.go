package sdk

import (
	"context"
	"fmt"
	"time"
)

// DocumentService ingests documents and reads the review queue.
type DocumentService struct {
	docSvc    documentUseCase
	assessSvc assessor
	batchSvc  batchUseCase
	obs       *observer
}

// Ingest stores an invoice and assesses it. When the rule index is unavailable the
// document is stored unassessed and the error wraps ErrIndexUnavailable; the returned
// Document is then still usable and Ingest with the same ID retries the assessment.
func (s *DocumentService) Ingest(ctx context.Context, in Invoice) (doc Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents.ingest", start, err) }()

	d, err := s.docSvc.Ingest(ctx, toStructured(in))
	if d.ID() != "" {
		doc = fromDocument(d)
	}
	if err != nil {
		return doc, fmt.Errorf("ingest: %w", err)
	}
	return doc, nil
}

// Get returns a document and its audit history.
func (s *DocumentService) Get(ctx context.Context, id string) (_ Document, _ []AuditEntry, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents.get", start, err) }()

	detail, err := s.docSvc.Get(ctx, id)
	if err != nil {
		return Document{}, nil, fmt.Errorf("get document: %w", err)
	}
	return fromDocument(detail.Document), fromEntries(detail.History), nil
}

// List returns one page of the review queue, newest first.
func (s *DocumentService) List(ctx context.Context, opts ListOptions) (_ DocumentList, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents.list", start, err) }()

	page, err := s.docSvc.List(ctx, toQuery(opts))
	if err != nil {
		return DocumentList{}, fmt.Errorf("list documents: %w", err)
	}
	out := DocumentList{Total: page.Total, Page: page.Page, PageSize: page.PageSize}
	for _, d := range page.Items {
		out.Documents = append(out.Documents, fromDocument(d))
	}
	return out, nil
}

// Delete hides a document from every read path. Its audit history is kept.
func (s *DocumentService) Delete(ctx context.Context, id, reason string) (err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents.delete", start, err) }()

	if err = s.docSvc.Forget(ctx, id, reason); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Assess re-runs the risk evaluation of one document against the current rules.
func (s *DocumentService) Assess(ctx context.Context, id string) (_ Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents.assess", start, err) }()

	d, err := s.assessSvc.Assess(ctx, id)
	if err != nil {
		return Document{}, fmt.Errorf("assess: %w", err)
	}
	return fromDocument(d), nil
}

// Reassess re-evaluates many documents. One result per id, in input order.
func (s *DocumentService) Reassess(ctx context.Context, ids []string) (_ []BatchResult, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents.reassess", start, err) }()

	rs, err := s.batchSvc.Reassess(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reassess: %w", err)
	}
	return fromBatch(rs), nil
}
