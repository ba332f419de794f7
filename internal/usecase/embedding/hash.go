package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/kailas-cloud/docreview/internal/domain"
)

// DefaultHashDims is the vector size of the hashing embedder.
const DefaultHashDims = 384

// HashEmbedder is a deterministic bag-of-words embedder: words, CJK runes and word
// bigrams are hashed into a signed fixed-size vector. It needs no provider and
// spends no quota, which makes it the default for local runs and the SDK.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hashing embedder. dims <= 0 selects DefaultHashDims.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDims
	}
	return &HashEmbedder{dims: dims}
}

// Dims returns the vector size.
func (h *HashEmbedder) Dims() int { return h.dims }

// Embed vectorizes text. Text without any token maps to a fixed unit vector so
// that callers never receive a zero vector.
func (h *HashEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	toks := tokenize(text)
	vec := make([]float32, h.dims)
	add := func(tok string, w float32) {
		sum := xxhash.Sum64String(tok)
		i := int(sum % uint64(h.dims))
		if sum>>63 == 1 {
			w = -w
		}
		vec[i] += w
	}
	for i, t := range toks {
		add(t, 1)
		if i > 0 {
			add(toks[i-1]+" "+t, 0.5)
		}
	}
	if !normalize(vec) {
		vec[0] = 1
	}
	return domain.EmbeddingResult{Embedding: vec}, nil
}

// BatchEmbed vectorizes each text in turn.
func (h *HashEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.EmbedEach(ctx, h, texts)
}

// HealthCheck always succeeds.
func (h *HashEmbedder) HealthCheck(context.Context) error { return nil }

// tokenize lower-cases text and splits it into alphanumeric words. Han, Hiragana,
// Katakana and Hangul runes become one token each.
func tokenize(text string) []string {
	var toks []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			toks = append(toks, b.String())
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
			flush()
			toks = append(toks, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return toks
}

func normalize(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return false
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return true
}
