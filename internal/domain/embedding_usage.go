package domain

import (
	"context"
	"sync/atomic"
)

type embeddingUsageKey struct{}

// EmbeddingUsage counts embedding tokens spent while serving one request or message.
// Detectors running in parallel may add to it concurrently.
type EmbeddingUsage struct {
	tokens atomic.Int64
	calls  atomic.Int64
}

// NewContextWithUsage returns a context carrying a fresh usage counter.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext returns the counter stored in ctx, or nil.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// AddTokens records one embedding call. Cache hits add zero tokens but still count as a call.
func (u *EmbeddingUsage) AddTokens(n int) {
	if u == nil {
		return
	}
	u.calls.Add(1)
	if n > 0 {
		u.tokens.Add(int64(n))
	}
}

// Tokens returns the tokens spent so far. Nil-safe.
func (u *EmbeddingUsage) Tokens() int64 {
	if u == nil {
		return 0
	}
	return u.tokens.Load()
}

// Used reports whether any embedding call was made.
func (u *EmbeddingUsage) Used() bool {
	return u != nil && u.calls.Load() > 0
}
