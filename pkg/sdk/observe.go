package sdk

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/docreview/internal/metrics"
)

// observer records every facade call: a counter by operation and outcome,
// a latency histogram, and a log line (debug on success, warn on failure).
// Either sink may be absent; a nil observer records nothing.
type observer struct {
	logger     *slog.Logger
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg == nil {
		return o, nil
	}

	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docreview", Subsystem: "sdk", Name: "operations_total",
		Help: "SDK operations by name and outcome.",
	}, []string{"operation", "outcome"})
	dur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "docreview", Subsystem: "sdk", Name: "operation_duration_seconds",
		Help:    "SDK operation duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	var err error
	if o.operations, err = register(reg, ops); err != nil {
		return nil, err
	}
	if o.duration, err = register(reg, dur); err != nil {
		return nil, err
	}
	return o, nil
}

// register adds c to reg. When an equal collector is already there, as
// with two clients sharing one registry, the registered one is returned.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var dup prometheus.AlreadyRegisteredError
	if !errors.As(err, &dup) {
		return c, fmt.Errorf("sdk: register metric: %w", err)
	}
	existing, ok := dup.ExistingCollector.(T)
	if !ok {
		return c, fmt.Errorf("sdk: metric registered as %T", dup.ExistingCollector)
	}
	return existing, nil
}

func (o *observer) observe(op string, start time.Time, err error) {
	if o == nil {
		return
	}
	took := time.Since(start)
	outcome := metrics.Outcome(err)

	if o.operations != nil {
		o.operations.WithLabelValues(op, outcome).Inc()
		o.duration.WithLabelValues(op).Observe(took.Seconds())
	}
	if o.logger == nil {
		return
	}
	if err != nil {
		o.logger.Warn("docreview call failed", "op", op, "outcome", outcome, "took", took, "error", err)
		return
	}
	o.logger.Debug("docreview call", "op", op, "took", took)
}
