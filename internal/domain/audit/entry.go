// Package audit holds the append-only review log model.
package audit

import "time"

// SystemReviewer is the reviewer id recorded for automated changes.
const SystemReviewer = "system"

// Well-known field names that are not document columns.
const (
	FieldCreated          = "created"
	FieldRiskAssessment   = "risk_assessment"
	FieldStatus           = "status"
	FieldPendingMaterials = "pending_materials"
	FieldDeleted          = "deleted"
	FieldNote             = "note"
)

// Entry is one immutable audit row. Seq is assigned by storage and breaks timestamp ties.
type Entry struct {
	Seq        int64     `json:"seq"`
	DocumentID string    `json:"document_id"`
	FieldName  string    `json:"field_name"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	Reason     string    `json:"reason,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	ReviewerID string    `json:"reviewer_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Before reports whether e sorts before o in history order.
func (e Entry) Before(o Entry) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	return e.Seq < o.Seq
}
