package embedding

import (
	"context"
	"math"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(0)
	ctx := context.Background()
	embed := func(s string) []float32 {
		t.Helper()
		res, err := h.Embed(ctx, s)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Embedding) != DefaultHashDims {
			t.Fatalf("dims = %d", len(res.Embedding))
		}
		return res.Embedding
	}

	a := embed("Meal expenses above 2000 CNY require approval")
	b := embed("meal EXPENSES above 2000 cny require approval!")
	if c := cosine(a, b); math.Abs(c-1) > 1e-5 {
		t.Errorf("case and punctuation must not matter, cosine = %f", c)
	}

	related := embed("meal expenses need approval")
	unrelated := embed("hotel lodging in Shanghai")
	if cosine(a, related) <= cosine(a, unrelated) {
		t.Errorf("related %f <= unrelated %f", cosine(a, related), cosine(a, unrelated))
	}

	var norm float64
	for _, x := range embed("") {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("empty text must embed to a unit vector, norm = %f", norm)
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("餐饮 Invoice-No: A12")
	want := []string{"餐", "饮", "invoice", "no", "a12"}
	if len(got) != len(want) {
		t.Fatalf("tokens = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}
