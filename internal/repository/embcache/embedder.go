// Package embcache memoizes embeddings in valkey. Entries are namespaced by
// model, so a model switch never serves vectors from the old space.
package embcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/docreview/internal/db"
	"github.com/kailas-cloud/docreview/internal/domain"
)

// entryVersion is the first byte of every cached value.
const entryVersion byte = 1

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Embedder decorates another embedder with a read-through cache. Cache
// failures are logged and degrade to a direct provider call.
type Embedder struct {
	inner   domain.Embedder
	store   store
	ns      string
	ttl     time.Duration
	lookups *prometheus.CounterVec
	logger  *zap.Logger
	flight  singleflight.Group
}

// New wraps inner. lookups, when non-nil, is incremented with label "hit" or "miss".
func New(
	inner domain.Embedder,
	s store,
	model string,
	ttl time.Duration,
	lookups *prometheus.CounterVec,
	logger *zap.Logger,
) *Embedder {
	return &Embedder{
		inner:   inner,
		store:   s,
		ns:      domain.KeyPrefix + "emb_cache:" + model + ":",
		ttl:     ttl,
		lookups: lookups,
		logger:  logger,
	}
}

// Embed serves a cached vector with zero token usage, or embeds and caches.
// Concurrent misses for the same text share one provider call.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := e.key(text)
	if vec, ok := e.load(ctx, key); ok {
		e.count("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	e.count("miss")

	v, err, _ := e.flight.Do(key, func() (any, error) {
		res, err := e.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		e.save(ctx, key, res.Embedding)
		return res, nil
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	return v.(domain.EmbeddingResult), nil
}

// BatchEmbed looks every text up first and forwards only the distinct
// misses, in one call. Token usage covers the forwarded texts.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := make([][]float32, len(texts))
	first := make(map[string]int, len(texts))
	var repeats [][2]int // {position, position of first occurrence}
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		key := e.key(text)
		if j, seen := first[key]; seen {
			repeats = append(repeats, [2]int{i, j})
			continue
		}
		first[key] = i
		if vec, ok := e.load(ctx, key); ok {
			e.count("hit")
			out[i] = vec
			continue
		}
		e.count("miss")
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	var res domain.BatchEmbeddingResult
	if len(missTexts) > 0 {
		var err error
		res, err = domain.EmbedMany(ctx, e.inner, missTexts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed %d texts: %w", len(missTexts), err)
		}
		for j, i := range missIdx {
			out[i] = res.Embeddings[j]
			e.save(ctx, e.key(missTexts[j]), res.Embeddings[j])
		}
	}
	for _, r := range repeats {
		out[r[0]] = out[r[1]]
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// HealthCheck probes the wrapped provider; the cache itself is optional.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (e *Embedder) key(text string) string {
	return e.ns + strconv.FormatUint(xxhash.Sum64String(text), 16) + ":" + strconv.Itoa(len(text))
}

func (e *Embedder) count(result string) {
	if e.lookups != nil {
		e.lookups.WithLabelValues(result).Inc()
	}
}

func (e *Embedder) load(ctx context.Context, key string) ([]float32, bool) {
	raw, err := e.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			e.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	vec, err := decode(raw)
	if err != nil {
		e.logger.Warn("Discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (e *Embedder) save(ctx context.Context, key string, vec []float32) {
	if err := e.store.SetWithTTL(ctx, key, encode(vec), e.ttl); err != nil {
		e.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func encode(vec []float32) []byte {
	buf := make([]byte, 1, 1+4*len(vec))
	buf[0] = entryVersion
	for _, f := range vec {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func decode(raw []byte) ([]float32, error) {
	switch {
	case len(raw) < 5:
		return nil, fmt.Errorf("entry too short: %d bytes", len(raw))
	case raw[0] != entryVersion:
		return nil, fmt.Errorf("entry version %d, want %d", raw[0], entryVersion)
	case (len(raw)-1)%4 != 0:
		return nil, fmt.Errorf("entry body of %d bytes is not float32-aligned", len(raw)-1)
	}
	body := raw[1:]
	vec := make([]float32, len(body)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[4*i:]))
	}
	return vec, nil
}
