// Package review drives the document review state machine and records every
// transition in the audit trail.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
	dombatch "github.com/kailas-cloud/docreview/internal/domain/batch"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	"github.com/kailas-cloud/docreview/internal/metrics"
)

// MaxBatchSize limits BatchApprove.
const MaxBatchSize = 100

// RequestInfoCmd asks the submitter for more material. ExpectedVersion 0 skips the precondition.
type RequestInfoCmd struct {
	ID              string
	Requests        []string
	Comment         string
	ReviewerID      string
	ExpectedVersion int64
}

// ApproveCmd approves a document.
type ApproveCmd struct {
	ID              string
	Comment         string
	ReviewerID      string
	ExpectedVersion int64
}

// RejectCmd rejects a document. Reason is mandatory.
type RejectCmd struct {
	ID              string
	Reason          string
	Comment         string
	ReviewerID      string
	ExpectedVersion int64
}

// UpdateFieldsCmd corrects extracted fields.
type UpdateFieldsCmd struct {
	ID              string
	Changes         map[string]string
	Reason          string
	ReviewerID      string
	ExpectedVersion int64
}

// Service is the review state machine.
type Service struct {
	repo     Repository
	assessor Assessor
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a review service. assessor may be nil, then corrections are not re-assessed.
func New(repo Repository, assessor Assessor, logger *zap.Logger) *Service {
	return &Service{repo: repo, assessor: assessor, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RequestInfo moves the document to reviewing with the given outstanding requests.
func (s *Service) RequestInfo(ctx context.Context, cmd RequestInfoCmd) (domdoc.Document, error) {
	note := entryNote{comment: cmd.Comment, reviewer: cmd.ReviewerID}
	return s.transition(ctx, domdoc.OpRequestInfo, cmd.ID, cmd.ExpectedVersion, note,
		func(d domdoc.Document, now time.Time) (domdoc.Document, []domdoc.Change, error) {
			return d.RequestInfo(cmd.Requests, now)
		})
}

// Approve moves the document to review_approved.
func (s *Service) Approve(ctx context.Context, cmd ApproveCmd) (domdoc.Document, error) {
	note := entryNote{comment: cmd.Comment, reviewer: cmd.ReviewerID}
	return s.transition(ctx, domdoc.OpApprove, cmd.ID, cmd.ExpectedVersion, note,
		func(d domdoc.Document, now time.Time) (domdoc.Document, []domdoc.Change, error) {
			return d.Approve(now)
		})
}

// Reject moves the document to review_rejected.
func (s *Service) Reject(ctx context.Context, cmd RejectCmd) (domdoc.Document, error) {
	note := entryNote{reason: cmd.Reason, comment: cmd.Comment, reviewer: cmd.ReviewerID}
	return s.transition(ctx, domdoc.OpReject, cmd.ID, cmd.ExpectedVersion, note,
		func(d domdoc.Document, now time.Time) (domdoc.Document, []domdoc.Change, error) {
			return d.Reject(cmd.Reason, now)
		})
}

// UpdateFields applies reviewer corrections atomically. When a risk-relevant field
// changed, the document is re-assessed after commit; a failed re-assessment is logged
// and the committed correction is returned.
func (s *Service) UpdateFields(ctx context.Context, cmd UpdateFieldsCmd) (domdoc.Document, error) {
	note := entryNote{reason: cmd.Reason, reviewer: cmd.ReviewerID}
	var relevant bool
	next, err := s.transition(ctx, domdoc.OpUpdateFields, cmd.ID, cmd.ExpectedVersion, note,
		func(d domdoc.Document, now time.Time) (domdoc.Document, []domdoc.Change, error) {
			n, changes, err := d.ApplyFields(cmd.Changes, now)
			relevant = domdoc.RiskRelevant(changes)
			return n, changes, err
		})
	if err != nil || !relevant || s.assessor == nil {
		return next, err
	}

	assessed, aerr := s.assessor.Assess(ctx, cmd.ID)
	if aerr != nil {
		s.logger.Warn("reassess after field update failed",
			zap.String("document_id", cmd.ID), zap.Error(aerr))
		return next, nil
	}
	return assessed, nil
}

// BatchApprove approves each id independently and reports a result per id.
func (s *Service) BatchApprove(ctx context.Context, ids []string, reviewerID, comment string) ([]dombatch.Result, error) {
	if len(ids) == 0 {
		return nil, domain.NewValidation("ids", "at least one id is required")
	}
	if len(ids) > MaxBatchSize {
		return nil, domain.NewValidation("ids", fmt.Sprintf("at most %d ids per batch", MaxBatchSize))
	}
	results := make([]dombatch.Result, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			results[i] = dombatch.NewSkipped(id, err)
			continue
		}
		_, err := s.Approve(ctx, ApproveCmd{ID: id, Comment: comment, ReviewerID: reviewerID})
		if err != nil {
			results[i] = dombatch.NewError(id, err)
			continue
		}
		results[i] = dombatch.NewOK(id)
	}
	return results, nil
}

type entryNote struct {
	reason   string
	comment  string
	reviewer string
}

type mutateFunc func(d domdoc.Document, now time.Time) (domdoc.Document, []domdoc.Change, error)

func (s *Service) transition(
	ctx context.Context, op, id string, expected int64, note entryNote, mutate mutateFunc,
) (domdoc.Document, error) {
	next, err := s.apply(ctx, id, expected, note, mutate)
	metrics.ReviewTransitionsTotal.WithLabelValues(op, metrics.Outcome(err)).Inc()
	if err != nil {
		return domdoc.Document{}, err
	}
	return next, nil
}

func (s *Service) apply(
	ctx context.Context, id string, expected int64, note entryNote, mutate mutateFunc,
) (domdoc.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domdoc.Document{}, domain.NewValidation("id", "is required")
	}
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	if expected != 0 && expected != doc.Version() {
		return domdoc.Document{}, domain.NewConcurrentModification(id, doc.Version())
	}

	next, changes, err := mutate(doc, s.now())
	if err != nil {
		return domdoc.Document{}, err
	}
	if len(changes) == 0 {
		return doc, nil
	}

	entries := Entries(id, changes, note.reason, note.comment, note.reviewer, next.UpdatedAt())
	if err := s.repo.Update(ctx, next, entries); err != nil {
		var cm *domain.ConcurrentModificationError
		if errors.As(err, &cm) {
			return domdoc.Document{}, err
		}
		return domdoc.Document{}, fmt.Errorf("commit %s: %w", id, err)
	}
	return next, nil
}

// Entries converts state machine changes into audit rows sharing one timestamp.
func Entries(id string, changes []domdoc.Change, reason, comment, reviewer string, at time.Time) []domaudit.Entry {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		reviewer = domaudit.SystemReviewer
	}
	out := make([]domaudit.Entry, len(changes))
	for i, c := range changes {
		out[i] = domaudit.Entry{
			DocumentID: id,
			FieldName:  c.Field,
			OldValue:   c.Old,
			NewValue:   c.New,
			Reason:     strings.TrimSpace(reason),
			Comment:    strings.TrimSpace(comment),
			ReviewerID: reviewer,
			Timestamp:  at,
		}
	}
	return out
}
