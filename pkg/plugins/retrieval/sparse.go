// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/jllopis/neuralchat/pkg/memory"
)

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Sparse retrieves passages by BM25 keyword scoring.
type Sparse struct {
	chunks []Chunk
	terms  []map[string]int
	lens   []int
	df     map[string]int
	avgLen float64
}

// NewSparse builds a keyword index over the documents under opts.DocumentPath.
func NewSparse(ctx context.Context, opts Options) (Retriever, error) {
	opts = opts.withDefaults()
	chunks, err := LoadDocuments(opts.DocumentPath, opts.ChunkSize)
	if err != nil {
		return nil, err
	}
	s := &Sparse{
		chunks: chunks,
		terms:  make([]map[string]int, len(chunks)),
		lens:   make([]int, len(chunks)),
		df:     make(map[string]int),
	}
	total := 0
	for i, c := range chunks {
		tokens := memory.Tokenize(c.Text)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t := range tf {
			s.df[t]++
		}
		s.terms[i] = tf
		s.lens[i] = len(tokens)
		total += len(tokens)
	}
	if len(chunks) > 0 {
		s.avgLen = float64(total) / float64(len(chunks))
	}
	opts.Logger.InfoContext(ctx, "documents indexed", "retriever", TypeSparse, "path", opts.DocumentPath, "chunks", len(chunks))
	return s, nil
}

func (s *Sparse) Name() string { return TypeSparse }

// Len returns the number of indexed chunks.
func (s *Sparse) Len() int { return len(s.chunks) }

func (s *Sparse) Retrieve(_ context.Context, query string, k int) ([]Passage, error) {
	if k <= 0 || len(s.chunks) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool)
	var qterms []string
	for _, t := range memory.Tokenize(query) {
		if !seen[t] {
			seen[t] = true
			qterms = append(qterms, t)
		}
	}

	n := float64(len(s.chunks))
	var out []Passage
	for i, tf := range s.terms {
		var score float64
		for _, t := range qterms {
			f := float64(tf[t])
			if f == 0 {
				continue
			}
			df := float64(s.df[t])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := 1 - bm25B + bm25B*float64(s.lens[i])/s.avgLen
			score += idf * f * (bm25K1 + 1) / (f + bm25K1*norm)
		}
		if score > 0 {
			c := s.chunks[i]
			out = append(out, Passage{Source: c.Source, Index: c.Index, Text: c.Text, Score: float32(score)})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
