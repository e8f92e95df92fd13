// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package chatbot

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/llm"
	"github.com/jllopis/neuralchat/pkg/memory"
	"github.com/jllopis/neuralchat/pkg/plugins/retrieval"
	"github.com/jllopis/neuralchat/pkg/telemetry"
)

// DefaultRetrievalK is how many passages are prepended to a prompt.
const DefaultRetrievalK = 3

// Reply is the outcome of one chat turn.
type Reply struct {
	Content string
	// Blocked is set when the safety checker refused the prompt; Content
	// then holds the refusal.
	Blocked  bool
	Cached   bool
	Filtered bool
	Passages []retrieval.Passage
	Usage    llm.Usage
}

// Chat answers a single prompt without history.
func (a *Adapter) Chat(ctx context.Context, prompt string) (Reply, error) {
	return a.Converse(ctx, "", prompt)
}

// Converse answers prompt within session. An empty session is stateless.
// The turn runs the input safety check, the cache lookup, retrieval, the
// provider call and the output filter, in that order; answers are cached
// after filtering.
func (a *Adapter) Converse(ctx context.Context, session, prompt string) (Reply, error) {
	ctx, span := a.tracer.Start(ctx, "chatbot.chat")
	defer span.End()

	reply, err := a.converse(ctx, session, prompt, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		a.metrics.RecordError(ctx, err, "chatbot")
	}
	return reply, err
}

// ChatStream is Converse writing the answer to w as it is produced. With a
// safety checker attached the answer is written once, after filtering.
func (a *Adapter) ChatStream(ctx context.Context, session, prompt string, w io.Writer) (Reply, error) {
	ctx, span := a.tracer.Start(ctx, "chatbot.chat", trace.WithAttributes(attribute.Bool("chat.stream", true)))
	defer span.End()

	reply, err := a.converse(ctx, session, prompt, w)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		a.metrics.RecordError(ctx, err, "chatbot")
	}
	return reply, err
}

func (a *Adapter) converse(ctx context.Context, session, prompt string, w io.Writer) (Reply, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Reply{}, errors.Newf(errors.CodeInvalidInput, "prompt is empty")
	}
	log := a.logger.With(slog.String("session", session))
	span := trace.SpanFromContext(ctx)

	checker := a.SafetyChecker()
	if checker != nil {
		res := checker.CheckInput(ctx, prompt)
		if res.Blocked {
			log.Warn("chatbot.safety.input_blocked",
				slog.String("checker", res.CheckerID),
				slog.Int("matches", len(res.Matches)))
			span.SetAttributes(attribute.Bool("safety.blocked", true))
			reply := Reply{Content: res.Reason, Blocked: true}
			if w != nil {
				_, _ = io.WriteString(w, reply.Content)
			}
			return reply, nil
		}
	}

	var history []llm.Message
	if session != "" {
		msgs, err := a.conversations.GetMessages(ctx, session)
		if err != nil {
			return Reply{}, errors.New(errors.CodeMemoryError, "load conversation", err)
		}
		for _, m := range msgs {
			history = append(history, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
		}
	}

	// Answers depend on history, so only stateless turns use the cache.
	c := a.Cache()
	useCache := c != nil && len(history) == 0
	if useCache {
		answer, hit, err := c.Lookup(ctx, prompt)
		if err != nil {
			log.Warn("cache lookup failed", "error", err)
		}
		span.SetAttributes(telemetry.CacheAttributes(hit, false)...)
		if hit {
			reply := Reply{Content: answer, Cached: true}
			if w != nil {
				_, _ = io.WriteString(w, answer)
			}
			return reply, a.remember(ctx, session, prompt, answer)
		}
	}

	var reply Reply
	content := prompt
	if r := a.Retriever(); r != nil {
		passages, err := r.Retrieve(ctx, prompt, DefaultRetrievalK)
		if err != nil {
			return Reply{}, err
		}
		span.SetAttributes(telemetry.RetrievalAttributes(r.Name(), len(passages))...)
		reply.Passages = passages
		content = retrieval.FormatContext(passages) + prompt
	}

	req := llm.ChatRequest{
		Model:    a.model,
		Messages: append(history, llm.Message{Role: llm.RoleUser, Content: content}),
	}
	span.SetAttributes(telemetry.LLMAttributes(a.model, "", prompt, len(req.Messages), 0)...)

	answer, usage, err := a.generate(ctx, req, w, checker == nil)
	if err != nil {
		return Reply{}, err
	}
	reply.Usage = usage
	span.SetAttributes(telemetry.LLMUsageAttributes(usage.PromptTokens, usage.CompletionTokens)...)

	if checker != nil {
		res := checker.FilterOutput(ctx, answer)
		if res.Modified {
			log.Info("chatbot.safety.output_filtered", slog.Int("redactions", len(res.Redactions)))
			reply.Filtered = true
		}
		answer = res.Content
		if w != nil {
			_, _ = io.WriteString(w, answer)
		}
	}
	reply.Content = answer

	if useCache {
		if err := c.Store(ctx, prompt, answer); err != nil {
			log.Warn("cache store failed", "error", err)
		} else {
			span.SetAttributes(attribute.Bool(telemetry.AttrCacheStored, true))
		}
	}
	return reply, a.remember(ctx, session, prompt, answer)
}

// generate calls the provider, streaming to w when both allow it.
func (a *Adapter) generate(ctx context.Context, req llm.ChatRequest, w io.Writer, stream bool) (string, llm.Usage, error) {
	sp, ok := a.provider.(llm.StreamingProvider)
	if w == nil || !stream || !ok {
		resp, err := a.provider.Chat(ctx, req)
		if err != nil {
			return "", llm.Usage{}, err
		}
		if w != nil && stream {
			_, _ = io.WriteString(w, resp.Content)
		}
		return resp.Content, resp.Usage, nil
	}

	chunks, err := sp.ChatStream(ctx, req)
	if err != nil {
		return "", llm.Usage{}, err
	}
	var (
		b     strings.Builder
		usage llm.Usage
		done  bool
	)
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", llm.Usage{}, chunk.Error
		}
		if chunk.Content != "" {
			b.WriteString(chunk.Content)
			_, _ = io.WriteString(w, chunk.Content)
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		done = done || chunk.Done
	}
	// A cancelled provider may close the channel before its error chunk is
	// delivered; partial text must not be cached or remembered.
	if err := ctx.Err(); err != nil {
		return "", llm.Usage{}, errors.New(errors.CodeTimeout, "answer stream interrupted", err)
	}
	if !done {
		return "", llm.Usage{}, errors.Newf(errors.CodeLLMError, "answer stream ended before completion")
	}
	return b.String(), usage, nil
}

func (a *Adapter) remember(ctx context.Context, session, prompt, answer string) error {
	if session == "" {
		return nil
	}
	for _, m := range []memory.ConversationMessage{
		{Role: string(llm.RoleUser), Content: prompt},
		{Role: string(llm.RoleAssistant), Content: answer},
	} {
		if err := a.conversations.AppendMessage(ctx, session, m); err != nil {
			return errors.New(errors.CodeMemoryError, "save conversation", err)
		}
	}
	return nil
}

// ResetSession forgets the history of session.
func (a *Adapter) ResetSession(ctx context.Context, session string) error {
	return a.conversations.Clear(ctx, session)
}

// Transcribe runs the recognizer on the audio file at path.
func (a *Adapter) Transcribe(ctx context.Context, path string) (string, error) {
	r := a.Recognizer()
	if r == nil {
		return "", errors.Newf(errors.CodeConfiguration, "audio input is not enabled").
			WithContext("slot", SlotRecognizer)
	}
	return r.Recognize(ctx, path)
}

// Speak renders text to an audio file at path.
func (a *Adapter) Speak(ctx context.Context, text, path string) error {
	s := a.Synthesizer()
	if s == nil {
		return errors.Newf(errors.CodeConfiguration, "audio output is not enabled").
			WithContext("slot", SlotSynthesizer)
	}
	return s.Synthesize(ctx, text, path)
}
