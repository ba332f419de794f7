// Package rule holds the versioned expense policy rule model.
package rule

import (
	"strings"
	"time"

	"github.com/kailas-cloud/docreview/internal/domain"
)

// Risk tags with severity meaning.
const (
	RiskTagAdvisory = "advisory"
	RiskTagCritical = "critical"
	RiskTagHigh     = "high"
)

// Rule is the current head of a versioned policy rule.
type Rule struct {
	ID         string
	Version    int
	Title      string
	Summary    string
	Content    string
	Category   string
	Tags       []string
	RiskTags   []string
	Scope      Scope
	ChangeNote string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Version is an immutable snapshot of a rule written on every save.
type Version struct {
	RuleID     string
	Version    int
	Title      string
	Summary    string
	Content    string
	RiskTags   []string
	Scope      Scope
	ChangeNote string
	CreatedAt  time.Time
}

// Input is a create-or-update request. Empty ID creates a new rule.
type Input struct {
	ID         string   `json:"id,omitempty"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary,omitempty"`
	Content    string   `json:"content"`
	Category   string   `json:"category,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	RiskTags   []string `json:"risk_tags,omitempty"`
	Scope      Scope    `json:"scope"`
	ChangeNote string   `json:"change_note,omitempty"`
}

// Normalize trims text fields and deduplicates tag lists.
func (in Input) Normalize() Input {
	in.ID = strings.TrimSpace(in.ID)
	in.Title = strings.TrimSpace(in.Title)
	in.Summary = strings.TrimSpace(in.Summary)
	in.Content = strings.TrimSpace(in.Content)
	in.Category = strings.TrimSpace(in.Category)
	in.Tags = cleanTags(in.Tags)
	in.RiskTags = cleanTags(in.RiskTags)
	in.Scope = in.Scope.normalize()
	return in
}

// Validate checks the fields a rule cannot exist without.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return domain.NewValidation("title", "must not be empty")
	}
	if strings.TrimSpace(in.Content) == "" {
		return domain.NewValidation("content", "must not be empty")
	}
	return in.Scope.Validate()
}

// HasRiskTag reports whether the rule carries the tag (case-insensitive).
func (r Rule) HasRiskTag(tag string) bool {
	for _, t := range r.RiskTags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Advisory reports whether the rule only advises and never blocks.
func (r Rule) Advisory() bool { return r.HasRiskTag(RiskTagAdvisory) }

// IndexText is the text embedded into the rule index.
func (r Rule) IndexText() string {
	parts := make([]string, 0, 5)
	parts = append(parts, r.Title)
	if r.Summary != "" {
		parts = append(parts, r.Summary)
	}
	parts = append(parts, r.Content)
	if r.Category != "" {
		parts = append(parts, "category: "+r.Category)
	}
	if len(r.Tags) > 0 {
		parts = append(parts, "tags: "+strings.Join(r.Tags, ", "))
	}
	return strings.Join(parts, "\n")
}

// Snapshot returns the version record for the rule's current state.
func (r Rule) Snapshot() Version {
	return Version{
		RuleID:     r.ID,
		Version:    r.Version,
		Title:      r.Title,
		Summary:    r.Summary,
		Content:    r.Content,
		RiskTags:   append([]string(nil), r.RiskTags...),
		Scope:      r.Scope,
		ChangeNote: r.ChangeNote,
		CreatedAt:  r.UpdatedAt,
	}
}

// ListQuery filters rules. Page is 1-based.
type ListQuery struct {
	Q        string
	Category string
	Page     int
	PageSize int
}

// Page size bounds for rule listing.
const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// Clamp applies paging defaults and bounds.
func (q ListQuery) Clamp() ListQuery {
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
	q.Category = strings.TrimSpace(q.Category)
	return q
}

// Offset returns the row offset of the page.
func (q ListQuery) Offset() int { return (q.Page - 1) * q.PageSize }

// Page is one page of rules.
type Page struct {
	Items    []Rule
	Total    int64
	Page     int
	PageSize int
}

func cleanTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
