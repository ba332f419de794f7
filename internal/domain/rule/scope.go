package rule

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/docreview/internal/domain"
)

// Scope is the deterministic applicability predicate of a rule.
// Empty lists match everything. MinAmount gates on "at least", MaxAmount is a cap:
// a capped rule applies only when the amount exceeds it.
type Scope struct {
	Categories []string         `json:"categories,omitempty"`
	Vendors    []string         `json:"vendors,omitempty"`
	Currency   string           `json:"currency,omitempty"`
	MinAmount  *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount  *decimal.Decimal `json:"max_amount,omitempty"`
}

// Subject is the part of a document a scope is evaluated against.
type Subject struct {
	Vendor   string
	Category string
	Currency string
	Amount   decimal.NullDecimal
}

// Validate rejects inverted or negative bounds.
func (s Scope) Validate() error {
	if s.MinAmount != nil && s.MinAmount.IsNegative() {
		return domain.NewValidation("scope.min_amount", "must not be negative")
	}
	if s.MaxAmount != nil && !s.MaxAmount.IsPositive() {
		return domain.NewValidation("scope.max_amount", "must be positive")
	}
	if s.MinAmount != nil && s.MaxAmount != nil && s.MinAmount.GreaterThan(*s.MaxAmount) {
		return domain.NewValidation("scope", "min_amount exceeds max_amount")
	}
	return nil
}

// Applies reports whether the subject falls under the rule.
func (s Scope) Applies(sub Subject) bool {
	if len(s.Categories) > 0 && !matchAny(s.Categories, sub.Category, containsFold) {
		return false
	}
	if len(s.Vendors) > 0 && !matchAny(s.Vendors, sub.Vendor, sameVendor) {
		return false
	}
	if s.Currency != "" && sub.Currency != "" && !strings.EqualFold(s.Currency, sub.Currency) {
		return false
	}
	if s.MinAmount == nil && s.MaxAmount == nil {
		return true
	}
	if !sub.Amount.Valid {
		return false
	}
	if s.MinAmount != nil && sub.Amount.Decimal.LessThan(*s.MinAmount) {
		return false
	}
	if s.MaxAmount != nil && !sub.Amount.Decimal.GreaterThan(*s.MaxAmount) {
		return false
	}
	return true
}

// Overage returns how far the amount exceeds the cap, as a fraction of the cap.
// Zero when the scope has no cap or the amount is within it.
func (s Scope) Overage(amount decimal.NullDecimal) decimal.Decimal {
	if s.MaxAmount == nil || !amount.Valid || !amount.Decimal.GreaterThan(*s.MaxAmount) {
		return decimal.Zero
	}
	return amount.Decimal.Sub(*s.MaxAmount).Div(*s.MaxAmount)
}

func (s Scope) normalize() Scope {
	s.Categories = cleanTags(s.Categories)
	s.Vendors = cleanTags(s.Vendors)
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	return s
}

func matchAny(patterns []string, value string, match func(pattern, value string) bool) bool {
	if value == "" {
		return false
	}
	for _, p := range patterns {
		if match(p, value) {
			return true
		}
	}
	return false
}

func containsFold(pattern, value string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func sameVendor(pattern, value string) bool {
	return domain.NormalizeToken(pattern) == domain.NormalizeToken(value)
}
