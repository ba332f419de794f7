package document

import (
	"strings"
	"time"
)

// Page size bounds for document listing.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Query filters the review queue. Page is 1-based; From/To bound created_at.
type Query struct {
	Statuses []Status
	Q        string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// Clamp applies paging defaults and bounds.
func (q Query) Clamp() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize <= 0:
		q.PageSize = DefaultPageSize
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	q.Q = strings.TrimSpace(q.Q)
	return q
}

// Offset returns the row offset of the page.
func (q Query) Offset() int { return (q.Page - 1) * q.PageSize }

// Page is one page of documents.
type Page struct {
	Items    []Document
	Total    int64
	Page     int
	PageSize int
}
