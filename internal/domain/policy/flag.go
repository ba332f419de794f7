// Package policy holds the output of policy evaluation.
package policy

// Severity grades a policy flag.
type Severity string

// Severity levels, lowest first.
const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Rank orders severities: HIGH > MEDIUM > LOW > unknown.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Flag is an immutable rule hit attached to a document by one evaluation pass.
type Flag struct {
	RuleID      string   `json:"rule_id"`
	RuleVersion int      `json:"rule_version"`
	RuleTitle   string   `json:"rule_title"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	References  []string `json:"references,omitempty"`
}

// Less orders flags by severity descending, then rule id ascending.
func Less(a, b Flag) bool {
	if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
		return ra > rb
	}
	return a.RuleID < b.RuleID
}

// Highest returns the highest severity among flags, or "" if there are none.
func Highest(flags []Flag) Severity {
	var top Severity
	for _, f := range flags {
		if f.Severity.Rank() > top.Rank() {
			top = f.Severity
		}
	}
	return top
}
