package domain

import (
	"strings"
	"unicode"
)

// NormalizeToken lower-cases s and keeps only letters and digits.
// "ACME Corp., Ltd." and "acme corp ltd" normalize to the same token.
func NormalizeToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
