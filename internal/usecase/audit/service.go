// Package audit exposes the append-only review log.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/docreview/internal/domain"
	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
)

// Repository persists audit entries. There is no update or delete.
type Repository interface {
	Append(ctx context.Context, e domaudit.Entry) (domaudit.Entry, error)
	History(ctx context.Context, documentID string) ([]domaudit.Entry, error)
}

// Service is the audit trail.
type Service struct {
	repo Repository
	now  func() time.Time
}

// New creates an audit service.
func New(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Append records a standalone entry, e.g. a reviewer note. A zero timestamp is set to now.
func (s *Service) Append(ctx context.Context, e domaudit.Entry) (domaudit.Entry, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	saved, err := s.repo.Append(ctx, e)
	if err != nil {
		return domaudit.Entry{}, fmt.Errorf("append audit entry: %w", err)
	}
	return saved, nil
}

// AddNote records a reviewer note on a document that has history.
func (s *Service) AddNote(ctx context.Context, documentID, reviewerID, note string) (domaudit.Entry, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return domaudit.Entry{}, domain.NewValidation("note", "is required")
	}
	history, err := s.History(ctx, documentID)
	if err != nil {
		return domaudit.Entry{}, err
	}
	if len(history) == 0 {
		return domaudit.Entry{}, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	return s.Append(ctx, domaudit.Entry{
		DocumentID: history[0].DocumentID,
		FieldName:  domaudit.FieldNote,
		NewValue:   note,
		ReviewerID: reviewerID,
	})
}

// History returns the entries of a document, oldest first.
func (s *Service) History(ctx context.Context, documentID string) ([]domaudit.Entry, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, domain.NewValidation("document_id", "is required")
	}
	entries, err := s.repo.History(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("audit history: %w", err)
	}
	return entries, nil
}
