package chi

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/docreview/internal/domain"
	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
)

// listRules handles GET /rules.
func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	var q domrule.ListQuery
	params := r.URL.Query()
	for name, dest := range map[string]any{
		"q":         &q.Q,
		"category":  &q.Category,
		"page":      &q.Page,
		"page_size": &q.PageSize,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, params, dest); err != nil {
			s.badParam(w, r, name, err)
			return
		}
	}

	page, err := s.deps.Rules.List(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	items := make([]RuleResponse, len(page.Items))
	for i, rule := range page.Items {
		items[i] = ruleToResponse(rule)
	}
	writeJSON(w, http.StatusOK, RuleListResponse{
		Items:    items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}

// createRule handles POST /rules. A supplied id that does not exist yet is kept.
func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var in domrule.Input
	if !s.decode(w, r, &in) {
		return
	}
	rule, err := s.deps.Rules.Save(r.Context(), in)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if rule.Version > 1 {
		status = http.StatusOK
	}
	w.Header().Set("Location", APIPrefix+"/rules/"+rule.ID)
	writeJSON(w, status, ruleToResponse(rule))
}

// updateRule handles PUT /rules/{id}. Each save writes a new version.
func (s *Server) updateRule(w http.ResponseWriter, r *http.Request) {
	var in domrule.Input
	if !s.decode(w, r, &in) {
		return
	}
	id := pathID(r)
	if in.ID != "" && in.ID != id {
		s.handleDomainError(w, r, domain.NewValidation("id", "does not match the path"))
		return
	}
	if _, err := s.deps.Rules.Get(r.Context(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	in.ID = id
	rule, err := s.deps.Rules.Save(r.Context(), in)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleToResponse(rule))
}

// getRule handles GET /rules/{id}.
func (s *Server) getRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.deps.Rules.Get(r.Context(), pathID(r))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleToResponse(rule))
}

// ruleVersions handles GET /rules/{id}/versions.
func (s *Server) ruleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.deps.Rules.Versions(r.Context(), pathID(r))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	out := make([]RuleVersionResponse, len(versions))
	for i, v := range versions {
		out[i] = ruleVersionToResponse(v)
	}
	writeJSON(w, http.StatusOK, out)
}

// deleteRules handles POST /rules/delete.
func (s *Server) deleteRules(w http.ResponseWriter, r *http.Request) {
	var req DeleteRulesRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.deps.Rules.Delete(r.Context(), req.IDs)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// refreshIndex handles POST /rules/refresh-index.
func (s *Server) refreshIndex(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Rules.RefreshIndex(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if u := domain.UsageFromContext(r.Context()); u.Used() {
		w.Header().Set("X-Embedding-Tokens", formatInt(u.Tokens()))
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}
