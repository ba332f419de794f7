// Package policy evaluates documents against the rule index: semantic retrieval,
// then deterministic scope filtering and severity assignment.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/docreview/internal/domain"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
	dompolicy "github.com/kailas-cloud/docreview/internal/domain/policy"
	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
	"github.com/kailas-cloud/docreview/internal/vectorindex"
)

// Defaults for retrieval and severity.
const (
	DefaultTopK = 8
	// DefaultMinSimilarity is the cosine floor for rules retrieved by embedding alone.
	DefaultMinSimilarity = 0.35
)

// DefaultHighOverCapRatio is the overage above which a capped rule raises HIGH (0.5 = 50% over cap).
var DefaultHighOverCapRatio = decimal.NewFromFloat(0.5)

// Service is the policy engine. It never writes.
type Service struct {
	index     *vectorindex.Manager[domrule.Rule]
	embed     Embedder
	topK      int
	minScore  float64
	highRatio decimal.Decimal
}

// New creates a policy engine over the live rule index.
func New(index *vectorindex.Manager[domrule.Rule], embed Embedder) *Service {
	return &Service{index: index, embed: embed, topK: DefaultTopK, minScore: DefaultMinSimilarity, highRatio: DefaultHighOverCapRatio}
}

// WithTopK configures how many rules are retrieved per document.
func (s *Service) WithTopK(k int) *Service {
	if k > 0 {
		s.topK = k
	}
	return s
}

// WithMinSimilarity configures the cosine floor for rules that share no keyword with the document.
func (s *Service) WithMinSimilarity(v float64) *Service {
	if v >= 0 && v <= 1 {
		s.minScore = v
	}
	return s
}

// WithHighOverCapRatio configures the overage that escalates a capped rule to HIGH.
func (s *Service) WithHighOverCapRatio(r decimal.Decimal) *Service {
	if r.IsPositive() {
		s.highRatio = r
	}
	return s
}

// Evaluate returns the flags of every retrieved rule whose scope applies to doc,
// skipping rules that share no keyword with doc and fall below the similarity floor,
// ordered by severity descending, then rule id.
// The result is a pure function of doc and the current snapshot.
func (s *Service) Evaluate(ctx context.Context, doc domdoc.Document) ([]dompolicy.Flag, error) {
	snap := s.index.CurrentSnapshot()
	if snap == nil {
		return nil, domain.NewIndexUnavailable("rules", "index not built", nil)
	}
	if snap.Len() == 0 {
		return nil, nil
	}

	res, err := s.embed.Embed(ctx, ContextText(doc))
	if err != nil {
		return nil, domain.NewIndexUnavailable("rules", "embed document context", err)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)
	hits, err := snap.Search(res.Embedding, s.topK, nil)
	if err != nil {
		return nil, domain.NewIndexUnavailable("rules", "search", err)
	}
	semantic := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, h := range hits {
		semantic[i] = h.ID
		scores[h.ID] = h.Score
	}
	keyword := keywordRanking(snap.Items(), doc, s.topK)
	matched := make(map[string]struct{}, len(keyword))
	for _, id := range keyword {
		matched[id] = struct{}{}
	}

	subject := doc.Subject()
	var flags []dompolicy.Flag
	for _, id := range fuseRRF(s.topK, semantic, keyword) {
		if _, ok := matched[id]; !ok && scores[id] < s.minScore {
			continue
		}
		it, ok := snap.Get(id)
		if !ok {
			continue
		}
		r := it.Payload
		if !r.Scope.Applies(subject) {
			continue
		}
		flags = append(flags, s.flag(r, doc))
	}
	sort.SliceStable(flags, func(i, j int) bool { return dompolicy.Less(flags[i], flags[j]) })
	return flags, nil
}

// Severity grades an applicable rule against a document.
func (s *Service) Severity(r domrule.Rule, doc domdoc.Document) dompolicy.Severity {
	if r.Advisory() {
		return dompolicy.SeverityLow
	}
	amount := doc.Fields().Amount
	if r.Scope.MaxAmount != nil && amount.Valid && r.Scope.Overage(amount).GreaterThan(s.highRatio) {
		return dompolicy.SeverityHigh
	}
	if r.HasRiskTag(domrule.RiskTagCritical) || r.HasRiskTag(domrule.RiskTagHigh) {
		return dompolicy.SeverityHigh
	}
	return dompolicy.SeverityMedium
}

func (s *Service) flag(r domrule.Rule, doc domdoc.Document) dompolicy.Flag {
	f := doc.Fields()
	msg := r.Title
	if r.Summary != "" {
		msg = r.Summary
	}
	if capAmt := r.Scope.MaxAmount; capAmt != nil && f.Amount.Valid {
		over := r.Scope.Overage(f.Amount).Mul(decimal.NewFromInt(100)).Round(0)
		msg = fmt.Sprintf("%s: amount %s %s exceeds cap %s by %s%%",
			r.Title, f.Amount.Decimal.StringFixed(2), f.Currency, capAmt.String(), over.String())
	}
	refs := []string{fmt.Sprintf("%s (v%d)", r.Title, r.Version)}
	if r.Category != "" {
		refs = append(refs, "category: "+r.Category)
	}
	return dompolicy.Flag{
		RuleID:      r.ID,
		RuleVersion: r.Version,
		RuleTitle:   r.Title,
		Severity:    s.Severity(r, doc),
		Message:     msg,
		References:  refs,
	}
}

// ContextText is the deterministic text embedded for a document.
func ContextText(doc domdoc.Document) string {
	f := doc.Fields()
	var b strings.Builder
	line := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteByte('\n')
		}
	}
	line("vendor", f.Vendor)
	line("category", f.Category)
	if f.Amount.Valid {
		line("amount", f.Amount.Decimal.StringFixed(2)+" "+f.Currency)
	}
	line("file", f.FileName)

	keys := make([]string, 0, len(f.Structured))
	for k := range f.Structured {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line(k, f.Structured[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// keywordRanking ranks rules by how many distinct category and vendor terms their text contains.
// Rules matching nothing are left out.
func keywordRanking(items []vectorindex.Item[domrule.Rule], doc domdoc.Document, k int) []string {
	f := doc.Fields()
	terms := keywords(f.Category + " " + f.Vendor)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		id    string
		score int
	}
	var ranked []scored
	for _, it := range items {
		text := strings.ToLower(it.Payload.IndexText())
		n := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				n++
			}
		}
		if n > 0 {
			ranked = append(ranked, scored{id: it.ID, score: n})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.id
	}
	return out
}

func keywords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
