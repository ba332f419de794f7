// Package document handles ingestion, lookup and removal of reviewed documents.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
)

// Detail is one document with its full audit history.
type Detail struct {
	Document domdoc.Document
	History  []domaudit.Entry
}

// Service handles the document lifecycle outside the review state machine.
type Service struct {
	repo     Repository
	assessor Assessor
	fps      FingerprintIndex
	history  HistoryReader
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a document service.
func New(repo Repository, assessor Assessor, fps FingerprintIndex, history HistoryReader, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		assessor: assessor,
		fps:      fps,
		history:  history,
		validate: NewValidator(),
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithIDGenerator overrides document id generation.
func (s *Service) WithIDGenerator(fn func() string) *Service {
	s.newID = fn
	return s
}

// Ingest stores an extracted document, assesses it and indexes its fingerprint.
// When the assessment fails the document stays stored and unassessed and the error
// is returned; resubmitting the same id retries the assessment.
func (s *Service) Ingest(ctx context.Context, sd StructuredDocument) (domdoc.Document, error) {
	if err := s.validate.StructCtx(ctx, sd); err != nil {
		return domdoc.Document{}, AsValidationError(err)
	}
	fields, err := sd.Fields()
	if err != nil {
		return domdoc.Document{}, err
	}
	id := strings.TrimSpace(sd.ID)
	if id == "" {
		id = s.newID()
	}
	doc, err := domdoc.New(id, fields, s.now())
	if err != nil {
		return domdoc.Document{}, err
	}

	created := domaudit.Entry{
		DocumentID: id,
		FieldName:  domaudit.FieldCreated,
		NewValue:   fields.FileName,
		ReviewerID: domaudit.SystemReviewer,
		Timestamp:  doc.CreatedAt(),
	}
	if err := s.repo.Create(ctx, doc, []domaudit.Entry{created}); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return domdoc.Document{}, fmt.Errorf("create document: %w", err)
		}
		existing, gerr := s.repo.Get(ctx, id)
		if gerr != nil {
			return domdoc.Document{}, fmt.Errorf("create document: %w", err)
		}
		if existing.Assessed() {
			return domdoc.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrAlreadyExists)
		}
		doc = existing
	}

	assessed, aerr := s.assessor.Assess(ctx, id)
	if aerr == nil {
		doc = assessed
	}
	if err := s.fps.Index(ctx, doc); err != nil {
		s.logger.Warn("index fingerprint failed", zap.String("document_id", id), zap.Error(err))
	}
	if aerr != nil {
		return doc, fmt.Errorf("assess new document %s: %w", id, aerr)
	}

	s.logger.Info("document ingested",
		zap.String("document_id", id),
		zap.Int("flags", len(doc.Assessment().Flags)),
		zap.Int("duplicates", len(doc.Assessment().Duplicates)),
	)
	return doc, nil
}

// Get returns a document with its audit history.
func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("get document: %w", err)
	}
	history, err := s.history.History(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("get history: %w", err)
	}
	return Detail{Document: doc, History: history}, nil
}

// List returns one page of the review queue.
func (s *Service) List(ctx context.Context, q domdoc.Query) (domdoc.Page, error) {
	q = q.Clamp()
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return domdoc.Page{}, domain.NewValidation("from", "must not be after to")
	}
	page, err := s.repo.List(ctx, q)
	if err != nil {
		return domdoc.Page{}, fmt.Errorf("list documents: %w", err)
	}
	return page, nil
}

// Forget handles removal of the underlying file: the document is soft-deleted and
// its fingerprint leaves the duplicate index.
func (s *Service) Forget(ctx context.Context, id, reason string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.NewValidation("id", "is required")
	}
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	at := s.now().UTC()
	if at.Before(doc.UpdatedAt()) {
		at = doc.UpdatedAt()
	}
	entry := domaudit.Entry{
		DocumentID: id,
		FieldName:  domaudit.FieldDeleted,
		NewValue:   "true",
		Reason:     strings.TrimSpace(reason),
		ReviewerID: domaudit.SystemReviewer,
		Timestamp:  at,
	}
	if err := s.repo.SoftDelete(ctx, id, []domaudit.Entry{entry}); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := s.fps.Forget(ctx, id); err != nil {
		s.logger.Warn("forget fingerprint failed", zap.String("document_id", id), zap.Error(err))
	}
	return nil
}
