// Package chi serves the docreview REST API over a chi router.
package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
	domusage "github.com/kailas-cloud/docreview/internal/domain/usage"
	"github.com/kailas-cloud/docreview/internal/metrics"
	"github.com/kailas-cloud/docreview/internal/observability"
	documentuc "github.com/kailas-cloud/docreview/internal/usecase/document"
	healthuc "github.com/kailas-cloud/docreview/internal/usecase/health"
)

// APIPrefix is where versioned routes are mounted.
const APIPrefix = "/api/v1"

// DefaultReviewer is recorded when a request names no reviewer.
const DefaultReviewer = "api"

const maxBodyBytes = 1 << 20

// Deps are the use cases served over HTTP. Assessor, Batch, Usage and Gatherer are optional.
type Deps struct {
	Documents DocumentService
	Reviews   ReviewService
	Assessor  Assessor
	Batch     BatchService
	Audit     AuditLog
	Rules     RuleService
	Usage     UsageReporter
	Health    HealthChecker
	Gatherer  prometheus.Gatherer
}

// Server holds the HTTP handlers.
type Server struct {
	deps          Deps
	validate      *validator.Validate
	logger        *zap.Logger
	retryAfterSec int
}

// NewServer creates an HTTP API server.
func NewServer(deps Deps, logger *zap.Logger) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{deps: deps, validate: documentuc.NewValidator(), logger: logger, retryAfterSec: 5}
}

// WithRetryAfter sets the Retry-After value sent with 429, 503 and job conflicts.
func (s *Server) WithRetryAfter(sec int) *Server {
	if sec > 0 {
		s.retryAfterSec = sec
	}
	return s
}

// Router mounts every route with the standard middleware stack.
func (s *Server) Router(apiKeys []string) chi.Router {
	r := chi.NewRouter()
	r.Use(Recoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEvent(s.logger))
	r.Use(observability.Middleware())
	r.Use(metrics.Middleware())
	r.Use(BearerAuth(apiKeys))

	r.Get("/health", s.getHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route(APIPrefix, func(api chi.Router) {
		api.Get("/usage", s.getUsage)

		api.Route("/documents", func(d chi.Router) {
			d.Post("/", s.ingestDocument)
			d.Get("/", s.listDocuments)
			d.Post("/batch/approve", s.batchApprove)
			d.Post("/batch/reassess", s.batchReassess)

			d.Route("/{id}", func(one chi.Router) {
				one.Get("/", s.getDocument)
				one.Delete("/", s.deleteDocument)
				one.Post("/assess", s.assessDocument)
				one.Post("/request-info", s.requestInfo)
				one.Post("/approve", s.approve)
				one.Post("/reject", s.reject)
				one.Patch("/fields", s.updateFields)
				one.Get("/audit", s.getAudit)
				one.Post("/notes", s.addNote)
			})
		})

		api.Route("/rules", func(rr chi.Router) {
			rr.Get("/", s.listRules)
			rr.Post("/", s.createRule)
			rr.Post("/delete", s.deleteRules)
			rr.Post("/refresh-index", s.refreshIndex)
			rr.Get("/{id}", s.getRule)
			rr.Put("/{id}", s.updateRule)
			rr.Get("/{id}/versions", s.ruleVersions)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	rep := s.deps.Health.Check(r.Context())
	status := http.StatusOK
	if rep.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{Status: rep.Status, Checks: rep.Checks})
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Usage == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "usage reporting is not configured")
		return
	}
	var raw string
	if err := runtime.BindQueryParameter("form", true, false, "period", r.URL.Query(), &raw); err != nil {
		s.badParam(w, r, "period", err)
		return
	}
	period, err := domusage.ParsePeriod(raw)
	if err != nil {
		s.handleDomainError(w, r, domain.NewValidation("period", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, usageToResponse(s.deps.Usage.Report(r.Context(), period)))
}

// decode reads a size-limited JSON body and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return s.decodeBody(w, r, dst, false)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	return s.decodeBody(w, r, dst, true)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.StructCtx(r.Context(), dst); err != nil {
		s.handleDomainError(w, r, documentuc.AsValidationError(err))
		return false
	}
	return true
}

func (s *Server) badParam(w http.ResponseWriter, r *http.Request, name string, err error) {
	s.handleDomainError(w, r, domain.NewValidation(name, err.Error()))
}

// expectedVersion reads If-Match. Absent or "*" means no precondition.
func expectedVersion(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return 0, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		return 0, domain.NewValidation("If-Match", "must be a positive document version")
	}
	return v, nil
}

func etag(version int64) string {
	return strconv.Quote(formatInt(version))
}

func formatInt(n int64) string { return strconv.FormatInt(n, 10) }

func reviewer(r *http.Request, fromBody string) string {
	if id := strings.TrimSpace(fromBody); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get("X-Reviewer-ID")); id != "" {
		return id
	}
	return DefaultReviewer
}

func pathID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}
