// Package ollama implements memory.Embedder with the Ollama embeddings API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/memory"
	"github.com/jllopis/neuralchat/pkg/resilience"
)

// DefaultBaseURL is used when NewEmbedder gets an empty base URL.
const DefaultBaseURL = "http://localhost:11434"

// DefaultMemoSize is how many recent embeddings are kept. The response
// cache embeds a question on lookup and again on store.
const DefaultMemoSize = 256

// Embedder calls /api/embeddings for one model.
type Embedder struct {
	baseURL string
	model   string
	client  *http.Client
	retry   resilience.Policy

	mu       sync.Mutex
	memo     map[string][]float32
	order    []string
	memoSize int
	dims     int
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithHTTPClient replaces the default client (60s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(e *Embedder) { e.client = c }
}

// WithRetry sets the retry policy for transport failures and 5xx answers.
func WithRetry(p resilience.Policy) Option {
	return func(e *Embedder) { e.retry = p }
}

// WithMemoSize bounds the embedding memo; 0 disables it.
func WithMemoSize(n int) Option {
	return func(e *Embedder) { e.memoSize = n }
}

// NewEmbedder returns an embedder for model at baseURL.
func NewEmbedder(baseURL, model string, opts ...Option) *Embedder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	e := &Embedder{
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		client:   &http.Client{Timeout: 60 * time.Second},
		retry:    resilience.DefaultPolicy(),
		memo:     make(map[string][]float32),
		memoSize: DefaultMemoSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// Dimensions returns the vector size seen so far, 0 before the first call.
func (e *Embedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dims
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed converts text into a vector. Recent results are served from memory.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.recall(text); ok {
		return vec, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	var out embeddingResponse
	err = e.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create http request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return errors.New(errors.CodeMemoryError, "ollama embedding api call failed", err).WithRecoverable(true)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return errors.Newf(errors.CodeMemoryError, "ollama embedding api returned status %d: %s",
				resp.StatusCode, strings.TrimSpace(string(msg))).
				WithContext("model", e.model).
				WithRecoverable(resp.StatusCode >= 500)
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return errors.New(errors.CodeMemoryError, "decode embedding response", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, errors.Newf(errors.CodeMemoryError, "model %s returned an empty embedding", e.model)
	}

	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	e.remember(text, vec)
	return vec, nil
}

func (e *Embedder) recall(text string) ([]float32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	vec, ok := e.memo[text]
	return vec, ok
}

// remember stores vec, dropping the oldest entry when the memo is full.
func (e *Embedder) remember(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dims = len(vec)
	if e.memoSize <= 0 {
		return
	}
	if _, ok := e.memo[text]; ok {
		return
	}
	if len(e.order) >= e.memoSize {
		delete(e.memo, e.order[0])
		e.order = e.order[1:]
	}
	e.memo[text] = vec
	e.order = append(e.order, text)
}

var _ memory.Embedder = (*Embedder)(nil)
