package llm

import (
	"context"
	"strings"
	"sync"
)

// MockProvider returns a canned response. It backs the "mock" provider of
// the CLI and the tests of the chatbot.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	mu    sync.Mutex
	calls []ChatRequest
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// ChatStream emits the response of Chat word by word.
func (m *MockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	resp, err := m.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	words := strings.SplitAfter(resp.Content, " ")
	chunks := make(chan StreamChunk, len(words)+1)
	for _, w := range words {
		if w != "" {
			chunks <- StreamChunk{Content: w}
		}
	}
	usage := resp.Usage
	chunks <- StreamChunk{Done: true, Usage: &usage}
	close(chunks)
	return chunks, nil
}

// Calls returns the requests received so far.
func (m *MockProvider) Calls() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.calls...)
}

var _ StreamingProvider = (*MockProvider)(nil)
