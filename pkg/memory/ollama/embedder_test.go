package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/resilience"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/api/embeddings" || req.Model != "hkunlp/instructor-large" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float64{0.5, -1, 2}})
	}))
	defer srv.Close()

	vec, err := NewEmbedder(srv.URL, "hkunlp/instructor-large").Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.5 || vec[2] != 2 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbed_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "status", handler: func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "no model", http.StatusNotFound)
		}},
		{name: "empty", handler: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"embedding":[]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewEmbedder(srv.URL, "m").Embed(context.Background(), "x")
			if !errors.HasCode(err, errors.CodeMemoryError) {
				t.Errorf("err = %v, want %s", err, errors.CodeMemoryError)
			}
		})
	}
}

func TestEmbed_MemoAndRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float64{float64(len(req.Prompt)), 1}})
	}))
	defer srv.Close()

	e := NewEmbedder(srv.URL, "m",
		WithRetry(resilience.DefaultPolicy().WithInitialDelay(time.Millisecond)),
		WithMemoSize(1))
	ctx := context.Background()

	tests := []struct {
		text      string
		wantCalls int32
	}{
		{"hello", 2}, // 503 then success
		{"hello", 2}, // memoized
		{"hi", 3},    // evicts hello
		{"hello", 4},
	}
	for i, tt := range tests {
		vec, err := e.Embed(ctx, tt.text)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if vec[0] != float32(len(tt.text)) {
			t.Errorf("step %d: vec = %v", i, vec)
		}
		if got := calls.Load(); got != tt.wantCalls {
			t.Errorf("step %d: calls = %d, want %d", i, got, tt.wantCalls)
		}
	}
	if e.Dimensions() != 2 {
		t.Errorf("Dimensions = %d, want 2", e.Dimensions())
	}
}
