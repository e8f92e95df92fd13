package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned once every scripted step has been played.
var ErrScriptExhausted = errors.New("scripted provider: no more responses")

// ScriptedMockProvider plays a fixed sequence of answers and failures, one
// per call. Tests use it to assert how many turns reached the model and
// what history was sent.
type ScriptedMockProvider struct {
	mu    sync.Mutex
	steps []scriptStep
	calls int
	// LastRequest is the most recent request received. Read it only after
	// the call returned.
	LastRequest ChatRequest
}

type scriptStep struct {
	content string
	err     error
}

// NewScriptedMockProvider scripts the given answers in order.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	s := &ScriptedMockProvider{}
	for _, r := range responses {
		s.AddResponse(r)
	}
	return s
}

// AddResponse appends an answer to the script.
func (s *ScriptedMockProvider) AddResponse(response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, scriptStep{content: response})
}

// AddError appends a failing turn to the script.
func (s *ScriptedMockProvider) AddError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, scriptStep{err: err})
}

func (s *ScriptedMockProvider) next(req ChatRequest) (scriptStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.LastRequest = req
	if len(s.steps) == 0 {
		return scriptStep{}, ErrScriptExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step, step.err
}

// Chat plays the next step.
func (s *ScriptedMockProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	step, err := s.next(req)
	if err != nil {
		return nil, err
	}
	words := len(step.content)/4 + 1
	return &ChatResponse{
		Content: step.content,
		Usage:   Usage{PromptTokens: len(req.Messages), CompletionTokens: words, TotalTokens: len(req.Messages) + words},
	}, nil
}

// ChatStream plays the next step as a single chunk followed by Done.
func (s *ScriptedMockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	resp, err := s.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	chunks := make(chan StreamChunk, 2)
	chunks <- StreamChunk{Content: resp.Content}
	chunks <- StreamChunk{Done: true, Usage: &resp.Usage}
	close(chunks)
	return chunks, nil
}

// Calls returns how many turns reached the provider.
func (s *ScriptedMockProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ StreamingProvider = (*ScriptedMockProvider)(nil)
