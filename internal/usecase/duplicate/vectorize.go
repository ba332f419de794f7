package duplicate

import (
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/kailas-cloud/docreview/internal/domain/duplicate"
)

// DefaultDims is the fingerprint vector length.
const DefaultDims = 256

// Vectorize feature-hashes a fingerprint into an L2-normalized vector.
// Each field contributes its whole value and its character trigrams, so equal
// fingerprints give equal vectors and a one-character OCR slip stays close.
// An empty fingerprint yields nil.
func Vectorize(fp duplicate.Fingerprint, dims int) []float32 {
	if fp.Empty() || dims <= 0 {
		return nil
	}
	v := make([]float64, dims)
	add := func(token string, w float64) {
		h := xxhash.Sum64String(token)
		i := int(h % uint64(dims))
		if h>>63 == 1 {
			w = -w
		}
		v[i] += w
	}

	for _, kv := range fp.Fields() {
		name, value := kv[0], kv[1]
		if value == "" {
			continue
		}
		add(name+"="+value, 1)
		for _, g := range trigrams(value) {
			add(name+"~"+g, 1)
		}
	}

	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return nil
	}
	n := math.Sqrt(sum)
	out := make([]float32, dims)
	for i, x := range v {
		out[i] = float32(x / n)
	}
	return out
}

func trigrams(s string) []string {
	r := []rune("^" + s + "$")
	if len(r) < 3 {
		return []string{string(r)}
	}
	out := make([]string, 0, len(r)-2)
	for i := 0; i+3 <= len(r); i++ {
		out = append(out, string(r[i:i+3]))
	}
	return out
}
