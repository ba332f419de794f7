package health

import "context"

// Probe checks one dependency.
type Probe interface {
	Ping(ctx context.Context) error
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) error

// Ping calls f.
func (f ProbeFunc) Ping(ctx context.Context) error { return f(ctx) }
