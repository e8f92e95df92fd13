// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package retrieval

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/memory"
)

const (
	payloadSource = "source"
	payloadIndex  = "chunk_index"
)

// chunkNamespace seeds the name-based ids of indexed chunks.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("neuralchat:retrieval:chunk"))

// ChunkID is the stable point id of a chunk. Re-indexing the same document
// overwrites its points instead of adding new ones.
func ChunkID(source string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(source+"#"+strconv.Itoa(index))).String()
}

// Dense retrieves passages by embedding similarity.
type Dense struct {
	vectors *memory.VectorMemory
	// ids holds the chunks of this index; a persistent store may still
	// carry points of files that were since removed or shortened.
	ids map[string]struct{}
}

// NewDense indexes the documents under opts.DocumentPath in a vector store.
func NewDense(ctx context.Context, opts Options) (Retriever, error) {
	opts = opts.withDefaults()
	chunks, err := LoadDocuments(opts.DocumentPath, opts.ChunkSize)
	if err != nil {
		return nil, err
	}

	vm := memory.NewVectorMemory(opts.Store, opts.Embedder, opts.Collection)
	if err := vm.Initialize(ctx); err != nil {
		return nil, errors.New(errors.CodeMemoryError, "initialize document collection", err)
	}
	ids := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		id := ChunkID(c.Source, c.Index)
		payload := map[string]any{payloadSource: c.Source, payloadIndex: c.Index}
		if err := vm.Put(ctx, id, c.Text, payload); err != nil {
			return nil, errors.New(errors.CodeMemoryError, fmt.Sprintf("index %s#%d", c.Source, c.Index), err)
		}
		ids[id] = struct{}{}
	}
	opts.Logger.InfoContext(ctx, "documents indexed", "retriever", TypeDense, "path", opts.DocumentPath, "chunks", len(chunks))
	return &Dense{vectors: vm, ids: ids}, nil
}

func (d *Dense) Name() string { return TypeDense }

// Len returns the number of indexed chunks.
func (d *Dense) Len() int { return len(d.ids) }

func (d *Dense) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	if k <= 0 {
		return nil, nil
	}
	matches, err := d.vectors.Search(ctx, query, 2*k, 0)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "dense retrieval", err)
	}
	out := make([]Passage, 0, k)
	for _, m := range matches {
		if _, ok := d.ids[m.ID]; !ok {
			continue
		}
		if len(out) == k {
			break
		}
		p := Passage{Text: m.Text, Score: m.Score}
		p.Source, _ = m.Payload[payloadSource].(string)
		p.Index = payloadInt(m.Payload[payloadIndex])
		out = append(out, p)
	}
	return out, nil
}

// payloadInt accepts the integer types a vector store may hand back.
func payloadInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
