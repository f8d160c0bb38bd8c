package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"txtvec/internal/domain"
)

type fakeServer struct {
	mu     sync.Mutex
	inputs [][]string
	dim    int
	delay  time.Duration
	status int
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.inputs = append(f.inputs, req.Input)
		f.mu.Unlock()

		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}
		if f.status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
			return
		}

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		// Reverse order to make sure results are placed by index.
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			v := make([]float32, f.dim)
			v[0] = float32(len([]rune(req.Input[i])))
			v[1] = float32(i + 1)
			data = append(data, item{Object: "embedding", Embedding: v, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	})
	return mux
}

func (f *fakeServer) sent() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.inputs...)
}

func newTestEmbedder(t *testing.T, f *fakeServer, mutate func(*OpenAIConfig)) *OpenAIEmbedder {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	cfg := OpenAIConfig{
		APIKeyEnv:     "TXTVEC_TEST_API_KEY",
		Model:         "intfloat/multilingual-e5-base",
		BaseURL:       srv.URL + "/v1",
		Dimension:     f.dim,
		QueryPrefix:   "query: ",
		PassagePrefix: "passage: ",
		Normalize:     true,
		Timeout:       5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewOpenAIEmbedder(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestOpenAIEmbedder_Batch(t *testing.T) {
	f := &fakeServer{dim: 3}
	e := newTestEmbedder(t, f, nil)

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i, v := range vectors {
		if math.Abs(norm(v)-1) > 1e-6 {
			t.Errorf("vector %d not normalized: %f", i, norm(v))
		}
		// Component 1 encodes the input position.
		wantRatio := float64(i+1) / float64(len("passage: ")+i+1)
		if got := float64(v[1]) / float64(v[0]); math.Abs(got-wantRatio) > 1e-5 {
			t.Errorf("vector %d out of order: ratio %f, want %f", i, got, wantRatio)
		}
	}

	if sent := f.sent(); len(sent) != 1 || sent[0][0] != "passage: a" {
		t.Errorf("unexpected inputs sent: %q", sent)
	}
}

func TestOpenAIEmbedder_Query(t *testing.T) {
	f := &fakeServer{dim: 3}
	e := newTestEmbedder(t, f, func(c *OpenAIConfig) { c.Normalize = false })

	v, err := e.EmbedQuery(context.Background(), "猫")
	if err != nil {
		t.Fatal(err)
	}
	if v[0] != float32(len([]rune("query: 猫"))) || v[1] != 1 {
		t.Errorf("unexpected raw vector %v", v)
	}
	if sent := f.sent(); sent[0][0] != "query: 猫" {
		t.Errorf("query prefix not applied: %q", sent[0])
	}
	if e.ModelName() != "intfloat/multilingual-e5-base" || e.Dimension() != 3 {
		t.Errorf("unexpected model info %s/%d", e.ModelName(), e.Dimension())
	}
}

func TestOpenAIEmbedder_EmptyBatch(t *testing.T) {
	f := &fakeServer{dim: 3}
	e := newTestEmbedder(t, f, nil)

	vectors, err := e.EmbedBatch(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Errorf("expected nil, nil for empty batch, got %v, %v", vectors, err)
	}
	if len(f.sent()) != 0 {
		t.Error("empty batch should not call the server")
	}
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	f := &fakeServer{dim: 3, status: http.StatusInternalServerError}
	e := newTestEmbedder(t, f, nil)

	_, err := e.EmbedBatch(context.Background(), []string{"x"})
	if !errors.Is(err, domain.ErrEmbeddingFailure) {
		t.Errorf("expected ErrEmbeddingFailure, got %v", err)
	}
}

func TestOpenAIEmbedder_Timeout(t *testing.T) {
	f := &fakeServer{dim: 3, delay: 2 * time.Second}
	e := newTestEmbedder(t, f, func(c *OpenAIConfig) { c.Timeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := e.EmbedQuery(context.Background(), "slow")
	if !errors.Is(err, domain.ErrEmbeddingFailure) {
		t.Errorf("expected ErrEmbeddingFailure, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout not applied, took %s", time.Since(start))
	}
}

func TestOpenAIEmbedder_WrongDimension(t *testing.T) {
	f := &fakeServer{dim: 3}
	e := newTestEmbedder(t, f, func(c *OpenAIConfig) { c.Dimension = 768 })

	_, err := e.EmbedBatch(context.Background(), []string{"x"})
	if !errors.Is(err, domain.ErrEmbeddingFailure) || !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected embedding failure caused by dimension mismatch, got %v", err)
	}
}

func TestNewOpenAIEmbedder_MissingKey(t *testing.T) {
	t.Setenv("TXTVEC_TEST_API_KEY", "")

	_, err := NewOpenAIEmbedder(OpenAIConfig{APIKeyEnv: "TXTVEC_TEST_API_KEY", Model: "text-embedding-3-small"})
	if !errors.Is(err, domain.ErrConfig) {
		t.Errorf("expected ErrConfig without key for the public API, got %v", err)
	}

	_, err = NewOpenAIEmbedder(OpenAIConfig{APIKeyEnv: "TXTVEC_TEST_API_KEY", Model: "m", BaseURL: "http://localhost:8080/v1"})
	if err != nil {
		t.Errorf("self-hosted endpoint should not need a key: %v", err)
	}
}
