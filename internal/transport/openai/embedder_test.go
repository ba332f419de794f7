package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
)

type embeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Object string          `json:"object"`
	Data   []embeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func newTestEmbedder(url string) *Embedder {
	return NewEmbedder(&Config{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "text-embedding-3-small",
		Dimensions: 3,
		Provider:   "test",
		Logger:     zap.NewNop(),
	})
}

func TestEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("auth = %s", r.Header.Get("Authorization"))
		}
		var req struct {
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Input) != 1 || req.Dimensions != 3 {
			t.Errorf("request = %+v", req)
		}
		resp := embeddingResponse{Object: "list", Data: []embeddingData{{Object: "embedding", Embedding: []float32{0.1, 0.2, 0.3}}}}
		resp.Usage.PromptTokens, resp.Usage.TotalTokens = 7, 7
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	res, err := newTestEmbedder(server.URL).Embed(context.Background(), "category: meal")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Embedding) != 3 || res.TotalTokens != 7 {
		t.Errorf("result = %+v", res)
	}
}

func TestEmbedder_BatchEmbedRestoresInputOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := embeddingResponse{Object: "list", Data: []embeddingData{
			{Embedding: []float32{2}, Index: 1},
			{Embedding: []float32{1}, Index: 0},
		}}
		resp.Usage.TotalTokens = 12
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	res, err := newTestEmbedder(server.URL).BatchEmbed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Embeddings[0][0] != 1 || res.Embeddings[1][0] != 2 {
		t.Errorf("embeddings = %v", res.Embeddings)
	}
	if res.TotalTokens != 12 {
		t.Errorf("tokens = %d", res.TotalTokens)
	}
}

func TestEmbedder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, domain.ErrRateLimited},
		{"payment required", http.StatusPaymentRequired, `{"detail":"insufficient balance"}`, domain.ErrEmbeddingQuotaExceeded},
		{"server error", http.StatusInternalServerError, `{"detail":"boom"}`, domain.ErrEmbeddingProviderError},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad model"}}`, domain.ErrEmbeddingProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestEmbedder(server.URL).Embed(context.Background(), "x")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEmbedder_ShortResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embeddingResponse{Object: "list"})
	}))
	defer server.Close()

	_, err := newTestEmbedder(server.URL).BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("err = %v", err)
	}
}

func TestEmbedder_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer server.Close()

	if err := newTestEmbedder(server.URL).HealthCheck(context.Background()); err != nil {
		t.Errorf("health: %v", err)
	}
}
