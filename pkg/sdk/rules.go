package sdk

import (
	"context"
	"fmt"
	"time"

	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
)

// RuleService manages the policy rules documents are checked against.
type RuleService struct {
	svc ruleUseCase
	obs *observer
}

// Save creates a rule or appends a new version. The rule index is updated in place.
func (s *RuleService) Save(ctx context.Context, in RuleInput) (_ Rule, err error) {
	start := time.Now()
	defer func() { s.obs.observe("rules.save", start, err) }()

	ri, err := toRuleInput(in)
	if err != nil {
		return Rule{}, fmt.Errorf("save rule: %w", err)
	}
	r, err := s.svc.Save(ctx, ri)
	if err != nil {
		return Rule{}, fmt.Errorf("save rule: %w", err)
	}
	return fromRule(r), nil
}

// Get returns the current version of a rule.
func (s *RuleService) Get(ctx context.Context, id string) (_ Rule, err error) {
	start := time.Now()
	defer func() { s.obs.observe("rules.get", start, err) }()

	r, err := s.svc.Get(ctx, id)
	if err != nil {
		return Rule{}, fmt.Errorf("get rule: %w", err)
	}
	return fromRule(r), nil
}

// List returns rules matching a free-text query and category. page is 1-based.
func (s *RuleService) List(ctx context.Context, query, category string, page, pageSize int) (_ []Rule, total int64, err error) {
	start := time.Now()
	defer func() { s.obs.observe("rules.list", start, err) }()

	p, err := s.svc.List(ctx, domrule.ListQuery{Q: query, Category: category, Page: page, PageSize: pageSize})
	if err != nil {
		return nil, 0, fmt.Errorf("list rules: %w", err)
	}
	out := make([]Rule, 0, len(p.Items))
	for _, r := range p.Items {
		out = append(out, fromRule(r))
	}
	return out, p.Total, nil
}

// Delete removes rules and returns how many existed.
func (s *RuleService) Delete(ctx context.Context, ids ...string) (_ int, err error) {
	start := time.Now()
	defer func() { s.obs.observe("rules.delete", start, err) }()

	n, err := s.svc.Delete(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete rules: %w", err)
	}
	return n, nil
}

// RefreshIndex rebuilds the rule index from the store and returns the number of indexed rules.
func (s *RuleService) RefreshIndex(ctx context.Context) (_ int, err error) {
	start := time.Now()
	defer func() { s.obs.observe("rules.refresh_index", start, err) }()

	n, err := s.svc.RefreshIndex(ctx)
	if err != nil {
		return 0, fmt.Errorf("refresh index: %w", err)
	}
	return n, nil
}
