// Package health aggregates dependency probes into one status.
package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component is failing. Requests still succeed partly.
	Degraded Status = "degraded"
	// Unhealthy indicates a required component is failing.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// DefaultProbeTimeout bounds each probe.
const DefaultProbeTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type component struct {
	name     string
	probe    Probe
	required bool
}

// Service coordinates health checks.
type Service struct {
	components []component
	timeout    time.Duration
}

// New creates an empty Service. Register components with Require and Optional.
func New() *Service {
	return &Service{timeout: DefaultProbeTimeout}
}

// Require registers a component whose failure makes the service unhealthy.
// A nil probe is ignored.
func (s *Service) Require(name string, p Probe) *Service {
	if p != nil {
		s.components = append(s.components, component{name: name, probe: p, required: true})
	}
	return s
}

// Optional registers a component whose failure only degrades the service.
// A nil probe is ignored.
func (s *Service) Optional(name string, p Probe) *Service {
	if p != nil {
		s.components = append(s.components, component{name: name, probe: p})
	}
	return s
}

// WithTimeout overrides the per-probe timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs every probe sequentially.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.components))
	status := Healthy
	for _, c := range s.components {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := c.probe.Ping(pctx)
		cancel()
		if err == nil {
			checks[c.name] = CheckOK
			continue
		}
		checks[c.name] = CheckError
		switch {
		case c.required:
			status = Unhealthy
		case status == Healthy:
			status = Degraded
		}
	}
	return Report{Status: status, Checks: checks}
}
