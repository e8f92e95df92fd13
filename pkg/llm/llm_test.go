package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/resilience"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}
	if len(mock.Calls()) != 1 {
		t.Errorf("Expected 1 call, got %d", len(mock.Calls()))
	}
}

func TestMockProvider_Stream(t *testing.T) {
	mock := &MockProvider{Response: "one two three"}
	chunks, err := mock.ChatStream(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	var sb strings.Builder
	var done bool
	for c := range chunks {
		sb.WriteString(c.Content)
		done = done || c.Done
	}
	if sb.String() != "one two three" || !done {
		t.Errorf("stream = %q, done = %v", sb.String(), done)
	}
}

func TestScriptedMockProvider(t *testing.T) {
	mock := NewScriptedMockProvider("first")
	mock.AddResponse("second")

	for _, want := range []string{"first", "second"} {
		resp, err := mock.Chat(context.Background(), ChatRequest{Model: "m"})
		if err != nil {
			t.Fatalf("Chat failed: %v", err)
		}
		if resp.Content != want {
			t.Errorf("got %q, want %q", resp.Content, want)
		}
	}
	if _, err := mock.Chat(context.Background(), ChatRequest{}); !stderrors.Is(err, ErrScriptExhausted) {
		t.Errorf("err = %v, want ErrScriptExhausted", err)
	}
	if mock.Calls() != 3 {
		t.Errorf("calls = %d, want 3", mock.Calls())
	}
}

func TestScriptedMockProvider_ErrorsAndStream(t *testing.T) {
	boom := stderrors.New("model overloaded")
	mock := NewScriptedMockProvider()
	mock.AddError(boom)
	mock.AddResponse("streamed answer")

	if _, err := mock.Chat(context.Background(), ChatRequest{}); !stderrors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	chunks, err := mock.ChatStream(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatal(err)
	}
	var got string
	var done bool
	for c := range chunks {
		got += c.Content
		done = done || c.Done
	}
	if got != "streamed answer" || !done {
		t.Errorf("stream = %q, done = %v", got, done)
	}
	if len(mock.LastRequest.Messages) != 1 {
		t.Errorf("LastRequest = %+v", mock.LastRequest)
	}
}

func TestOllamaProvider_Chat(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"Hi there"},"done":true,"prompt_eval_count":7,"eval_count":3}`)
	}))
	defer srv.Close()

	p := NewOllama(srv.URL + "/")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:       "neural-chat",
		Messages:    []Message{{Role: RoleUser, Content: "Hello"}},
		Temperature: 0.2,
		MaxTokens:   64,
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hi there" || resp.Usage.TotalTokens != 10 {
		t.Errorf("resp = %+v", resp)
	}
	if got.Model != "neural-chat" || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if got.Options["num_predict"] != float64(64) {
		t.Errorf("options = %v", got.Options)
	}
}

func TestOllamaProvider_ChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `not json`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":2,"eval_count":2}`)
	}))
	defer srv.Close()

	chunks, err := NewOllama(srv.URL).ChatStream(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	var sb strings.Builder
	var usage *Usage
	for c := range chunks {
		if c.Error != nil {
			t.Fatalf("stream error: %v", c.Error)
		}
		sb.WriteString(c.Content)
		if c.Done {
			usage = c.Usage
		}
	}
	if sb.String() != "Hello" {
		t.Errorf("content = %q", sb.String())
	}
	if usage == nil || usage.TotalTokens != 4 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestOllamaProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{Model: "missing"})
	if !errors.HasCode(err, errors.CodeLLMError) {
		t.Fatalf("err = %v, want %s", err, errors.CodeLLMError)
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error should carry the body: %v", err)
	}
}

func TestOllamaProvider_StreamEndsEarly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"partial"},"done":false}`)
	}))
	defer srv.Close()

	chunks, err := NewOllama(srv.URL).ChatStream(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	var last StreamChunk
	for c := range chunks {
		last = c
	}
	if !errors.HasCode(last.Error, errors.CodeLLMError) {
		t.Errorf("last chunk = %+v, want an LLM error", last)
	}
}

func TestOllamaProvider_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"ok"},"done":true}`)
	}))
	defer srv.Close()

	p := NewOllama(srv.URL, WithOllamaRetry(resilience.DefaultPolicy().WithInitialDelay(time.Millisecond)))
	resp, err := p.Chat(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "ok" || calls.Load() != 2 {
		t.Errorf("content = %q after %d calls", resp.Content, calls.Load())
	}
}
