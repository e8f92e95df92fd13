// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

// Package retrieval finds document passages relevant to a prompt. Retrievers
// are built by type name ("dense", "sparse") from a Registry and index the
// files under a document path once, at construction.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/memory"
)

// Retrieval types accepted in retrieval_type.
const (
	TypeDense  = "dense"
	TypeSparse = "sparse"
)

// Passage is a retrieved chunk of a document.
type Passage struct {
	Source string
	Index  int
	Text   string
	Score  float32
}

// Retriever returns up to k passages for query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Passage, error)
	Name() string
}

// Options are handed to a Factory.
type Options struct {
	DocumentPath string
	ChunkSize    int
	// Embedder and Store are used by dense retrieval; nil selects the hash
	// embedder and the in-memory store.
	Embedder   memory.Embedder
	Store      memory.VectorStore
	Collection string
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Embedder == nil {
		o.Embedder = memory.NewHashEmbedder(memory.DefaultHashDimensions)
	}
	if o.Store == nil {
		o.Store = memory.NewInMemoryStore()
	}
	if o.Collection == "" {
		o.Collection = "neuralchat_documents"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Factory builds a retriever. It runs only after the type was found.
type Factory func(ctx context.Context, opts Options) (Retriever, error)

// Registry maps retrieval types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry knows the dense and sparse retrievers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeDense, NewDense)
	r.Register(TypeSparse, NewSparse)
	return r
}

// Register binds kind to factory, replacing any previous binding.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(kind)] = factory
}

// Lookup returns the factory for kind. Unknown kinds are configuration errors.
func (r *Registry) Lookup(kind string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return nil, errors.Newf(errors.CodeConfiguration,
			"invalid retrieval type '%s'. Must be one of %s", kind, strings.Join(r.typesLocked(), ", ")).
			WithContext("field", "retrieval_type")
	}
	return f, nil
}

// Types lists the registered kinds.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.typesLocked()
}

func (r *Registry) typesLocked() []string {
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FormatContext renders passages as a context block prepended to a prompt.
func FormatContext(passages []Passage) string {
	if len(passages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Use the following context to answer the question.\n\n")
	for _, p := range passages {
		b.WriteString("[")
		b.WriteString(p.Source)
		b.WriteString("]\n")
		b.WriteString(strings.TrimSpace(p.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}
