package sdk

import (
	"context"
	"fmt"
	"time"

	reviewuc "github.com/kailas-cloud/docreview/internal/usecase/review"
)

// ReviewService moves documents through the review workflow.
// Every method takes an optional expected version (0 skips the check) and
// fails with ConcurrentModificationError when the document moved on.
type ReviewService struct {
	svc reviewUseCase
	obs *observer
}

// RequestInfo asks the submitter for more material and moves the document to reviewing.
func (s *ReviewService) RequestInfo(
	ctx context.Context, id, reviewer string, requests []string, expectedVersion int64,
) (_ Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("reviews.request_info", start, err) }()

	d, err := s.svc.RequestInfo(ctx, reviewuc.RequestInfoCmd{
		ID: id, Requests: requests, ReviewerID: reviewer, ExpectedVersion: expectedVersion,
	})
	if err != nil {
		return Document{}, fmt.Errorf("request info: %w", err)
	}
	return fromDocument(d), nil
}

// Approve closes the review positively.
func (s *ReviewService) Approve(ctx context.Context, id, reviewer, comment string) (_ Document, err error) {
	return s.ApproveVersion(ctx, id, reviewer, comment, 0)
}

// ApproveVersion approves only if the document is still at expectedVersion.
func (s *ReviewService) ApproveVersion(
	ctx context.Context, id, reviewer, comment string, expectedVersion int64,
) (_ Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("reviews.approve", start, err) }()

	d, err := s.svc.Approve(ctx, reviewuc.ApproveCmd{
		ID: id, Comment: comment, ReviewerID: reviewer, ExpectedVersion: expectedVersion,
	})
	if err != nil {
		return Document{}, fmt.Errorf("approve: %w", err)
	}
	return fromDocument(d), nil
}

// Reject closes the review negatively. reason is mandatory.
func (s *ReviewService) Reject(
	ctx context.Context, id, reviewer, reason string, expectedVersion int64,
) (_ Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("reviews.reject", start, err) }()

	d, err := s.svc.Reject(ctx, reviewuc.RejectCmd{
		ID: id, Reason: reason, ReviewerID: reviewer, ExpectedVersion: expectedVersion,
	})
	if err != nil {
		return Document{}, fmt.Errorf("reject: %w", err)
	}
	return fromDocument(d), nil
}

// UpdateFields corrects extracted fields and re-assesses the document.
func (s *ReviewService) UpdateFields(
	ctx context.Context, id, reviewer, reason string, changes map[string]string, expectedVersion int64,
) (_ Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("reviews.update_fields", start, err) }()

	d, err := s.svc.UpdateFields(ctx, reviewuc.UpdateFieldsCmd{
		ID: id, Changes: changes, Reason: reason, ReviewerID: reviewer, ExpectedVersion: expectedVersion,
	})
	if err != nil {
		return Document{}, fmt.Errorf("update fields: %w", err)
	}
	return fromDocument(d), nil
}

// BatchApprove approves every id independently. One result per id, in input order.
func (s *ReviewService) BatchApprove(
	ctx context.Context, ids []string, reviewer, comment string,
) (_ []BatchResult, err error) {
	start := time.Now()
	defer func() { s.obs.observe("reviews.batch_approve", start, err) }()

	rs, err := s.svc.BatchApprove(ctx, ids, reviewer, comment)
	if err != nil {
		return nil, fmt.Errorf("batch approve: %w", err)
	}
	return fromBatch(rs), nil
}
