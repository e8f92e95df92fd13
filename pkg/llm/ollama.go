package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/resilience"
)

// DefaultOllamaURL is used when NewOllama gets an empty base URL.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaProvider talks to the /api/chat endpoint of an Ollama server.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
	retry   resilience.Policy
}

// OllamaOption configures an OllamaProvider.
type OllamaOption func(*OllamaProvider)

// WithOllamaClient replaces the default client (120s timeout).
func WithOllamaClient(c *http.Client) OllamaOption {
	return func(p *OllamaProvider) { p.client = c }
}

// WithOllamaRetry sets the policy for failures before the first byte of
// the answer. A stream that breaks midway is never retried.
func WithOllamaRetry(r resilience.Policy) OllamaOption {
	return func(p *OllamaProvider) { p.retry = r }
}

// NewOllama returns a provider for the server at baseURL.
func NewOllama(baseURL string, opts ...OllamaOption) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	p := &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// ollamaMessage is one response object; streaming sends one per line.
type ollamaMessage struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

func (m ollamaMessage) usage() Usage {
	return Usage{
		PromptTokens:     m.PromptEvalCount,
		CompletionTokens: m.EvalCount,
		TotalTokens:      m.PromptEvalCount + m.EvalCount,
	}
}

func toOllama(req ChatRequest, stream bool) ollamaRequest {
	out := ollamaRequest{Model: req.Model, Messages: req.Messages, Stream: stream}
	if req.Temperature != 0 || req.MaxTokens > 0 {
		out.Options = map[string]any{}
		if req.Temperature != 0 {
			out.Options["temperature"] = req.Temperature
		}
		if req.MaxTokens > 0 {
			out.Options["num_predict"] = req.MaxTokens
		}
	}
	return out
}

// post returns a response with status 200; the caller closes its body.
func (p *OllamaProvider) post(ctx context.Context, oReq ollamaRequest) (*http.Response, error) {
	body, err := json.Marshal(oReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	var resp *http.Response
	err = p.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create http request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		r, err := p.client.Do(req)
		if err != nil {
			return errors.New(errors.CodeLLMError, "ollama api call failed", err).WithRecoverable(true)
		}
		if r.StatusCode != http.StatusOK {
			defer r.Body.Close()
			msg, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
			return errors.Newf(errors.CodeLLMError, "ollama api returned status %d: %s",
				r.StatusCode, strings.TrimSpace(string(msg))).
				WithContext("model", oReq.Model).
				WithRecoverable(r.StatusCode >= 500)
		}
		resp = r
		return nil
	})
	return resp, err
}

// Chat implements Provider.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.post(ctx, toOllama(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var msg ollamaMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, errors.New(errors.CodeLLMError, "failed to decode ollama response", err)
	}
	return &ChatResponse{Content: msg.Message.Content, Usage: msg.usage()}, nil
}

// ChatStream implements StreamingProvider. The channel is closed after the
// Done chunk, an Error chunk, or cancellation of ctx.
func (p *OllamaProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	resp, err := p.post(ctx, toOllama(req, true))
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk, 16)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		send := func(c StreamChunk) bool {
			select {
			case chunks <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var msg ollamaMessage
			if err := json.Unmarshal(line, &msg); err != nil {
				continue
			}
			if msg.Done {
				usage := msg.usage()
				send(StreamChunk{Content: msg.Message.Content, Done: true, Usage: &usage})
				return
			}
			if msg.Message.Content != "" && !send(StreamChunk{Content: msg.Message.Content}) {
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		send(StreamChunk{Error: errors.New(errors.CodeLLMError, "ollama stream ended early", err)})
	}()
	return chunks, nil
}

var _ StreamingProvider = (*OllamaProvider)(nil)
