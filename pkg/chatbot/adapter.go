// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package chatbot

import (
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/llm"
	"github.com/jllopis/neuralchat/pkg/memory"
	"github.com/jllopis/neuralchat/pkg/plugins/audio"
	"github.com/jllopis/neuralchat/pkg/plugins/cache"
	"github.com/jllopis/neuralchat/pkg/plugins/retrieval"
	"github.com/jllopis/neuralchat/pkg/plugins/safety"
	"github.com/jllopis/neuralchat/pkg/telemetry"
)

// Plugin slot names.
const (
	SlotRecognizer    = "asr"
	SlotSynthesizer   = "tts"
	SlotSafetyChecker = "safety_checker"
	SlotRetriever     = "retriever"
	SlotCache         = "cache"
)

// ErrSlotOccupied is returned when a plugin is registered into a filled slot.
var ErrSlotOccupied = stderrors.New("plugin slot already occupied")

// Adapter is the composed chatbot: a model provider plus optional plugins.
// Empty slots report nil and false from their accessors.
type Adapter struct {
	device  string
	backend string
	model   string

	provider      llm.Provider
	conversations memory.ConversationMemory
	logger        *slog.Logger
	tracer        trace.Tracer
	metrics       *telemetry.Metrics

	mu          sync.RWMutex
	recognizer  audio.Recognizer
	synthesizer audio.Synthesizer
	safety      safety.Checker
	retriever   retrieval.Retriever
	cache       *cache.Cache
	closers     []func() error
}

// Device is the concrete device the adapter was composed for.
func (a *Adapter) Device() string { return a.device }

// Backend is the concrete backend the adapter was composed for.
func (a *Adapter) Backend() string { return a.backend }

// Model is the model name sent to the provider.
func (a *Adapter) Model() string { return a.model }

// Provider returns the chat model provider.
func (a *Adapter) Provider() llm.Provider { return a.provider }

func occupied(slot string) error {
	return errors.New(errors.CodeConfiguration, "cannot register "+slot, ErrSlotOccupied).
		WithContext("slot", slot)
}

// RegisterRecognizer fills the speech recognition slot.
func (a *Adapter) RegisterRecognizer(r audio.Recognizer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recognizer != nil {
		return occupied(SlotRecognizer)
	}
	a.recognizer = r
	return nil
}

// RegisterSynthesizer fills the speech synthesis slot.
func (a *Adapter) RegisterSynthesizer(s audio.Synthesizer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.synthesizer != nil {
		return occupied(SlotSynthesizer)
	}
	a.synthesizer = s
	return nil
}

// RegisterSafetyChecker fills the safety slot.
func (a *Adapter) RegisterSafetyChecker(c safety.Checker) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.safety != nil {
		return occupied(SlotSafetyChecker)
	}
	a.safety = c
	return nil
}

// RegisterRetriever fills the document retrieval slot.
func (a *Adapter) RegisterRetriever(r retrieval.Retriever) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.retriever != nil {
		return occupied(SlotRetriever)
	}
	a.retriever = r
	return nil
}

// AttachCache makes Chat consult c. The cache itself is process-wide and is
// not closed with the adapter.
func (a *Adapter) AttachCache(c *cache.Cache) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cache != nil {
		return occupied(SlotCache)
	}
	a.cache = c
	return nil
}

func (a *Adapter) Recognizer() audio.Recognizer {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.recognizer
}

func (a *Adapter) Synthesizer() audio.Synthesizer {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.synthesizer
}

func (a *Adapter) SafetyChecker() safety.Checker {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.safety
}

func (a *Adapter) Retriever() retrieval.Retriever {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.retriever
}

func (a *Adapter) Cache() *cache.Cache {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cache
}

func (a *Adapter) HasRecognizer() bool    { return a.Recognizer() != nil }
func (a *Adapter) HasSynthesizer() bool   { return a.Synthesizer() != nil }
func (a *Adapter) HasSafetyChecker() bool { return a.SafetyChecker() != nil }
func (a *Adapter) HasRetriever() bool     { return a.Retriever() != nil }
func (a *Adapter) HasCache() bool         { return a.Cache() != nil }

// Plugins lists the filled slots in name order.
func (a *Adapter) Plugins() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []string
	if a.recognizer != nil {
		out = append(out, SlotRecognizer)
	}
	if a.synthesizer != nil {
		out = append(out, SlotSynthesizer)
	}
	if a.safety != nil {
		out = append(out, SlotSafetyChecker)
	}
	if a.retriever != nil {
		out = append(out, SlotRetriever)
	}
	if a.cache != nil {
		out = append(out, SlotCache)
	}
	sort.Strings(out)
	return out
}

// Close releases connections opened while composing.
func (a *Adapter) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
