// Package document holds the reviewed invoice aggregate and its review state machine.
package document

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/docreview/internal/domain"
)

// Status is the review status of a document.
type Status string

// Review statuses. Approved and rejected are terminal.
const (
	StatusUploaded  Status = "uploaded"
	StatusReviewing Status = "reviewing"
	StatusApproved  Status = "review_approved"
	StatusRejected  Status = "review_rejected"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.TrimSpace(s)); st {
	case StatusUploaded, StatusReviewing, StatusApproved, StatusRejected:
		return st, nil
	default:
		return "", domain.NewValidation("status", fmt.Sprintf("unknown status %q", s))
	}
}

// Terminal reports whether no review operation may leave this status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}
