package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PayloadText is the payload key holding the embedded text.
const PayloadText = "text"

// Match is a text found by VectorMemory.Search.
type Match struct {
	ID      string
	Text    string
	Score   float32
	Payload map[string]any
}

// VectorMemory stores texts in a collection of a VectorStore, embedding
// them with an Embedder.
type VectorMemory struct {
	store      VectorStore
	embedder   Embedder
	collection string

	initOnce sync.Once
	initErr  error
}

// NewVectorMemory creates a new VectorMemory instance. The collection is
// created by Initialize or lazily on first use.
func NewVectorMemory(store VectorStore, embedder Embedder, collection string) *VectorMemory {
	return &VectorMemory{
		store:      store,
		embedder:   embedder,
		collection: collection,
	}
}

// Collection returns the collection name.
func (vm *VectorMemory) Collection() string { return vm.collection }

// Initialize ensures the collection exists with the embedder's dimension.
func (vm *VectorMemory) Initialize(ctx context.Context) error {
	vm.initOnce.Do(func() {
		vec, err := vm.embedder.Embed(ctx, "hello")
		if err != nil {
			vm.initErr = fmt.Errorf("failed to get embedding dimension: %w", err)
			return
		}
		if err := vm.store.CreateCollection(ctx, vm.collection, uint64(len(vec))); err != nil {
			vm.initErr = fmt.Errorf("failed to create collection %s: %w", vm.collection, err)
		}
	})
	return vm.initErr
}

// Add embeds text and stores it with payload under a new random id, which
// it returns.
func (vm *VectorMemory) Add(ctx context.Context, text string, payload map[string]any) (string, error) {
	id := uuid.New().String()
	if err := vm.Put(ctx, id, text, payload); err != nil {
		return "", err
	}
	return id, nil
}

// Put embeds text and stores it under id, replacing any point already
// stored there.
func (vm *VectorMemory) Put(ctx context.Context, id, text string, payload map[string]any) error {
	if err := vm.Initialize(ctx); err != nil {
		return err
	}
	vector, err := vm.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed text: %w", err)
	}

	p := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		p[k] = v
	}
	p[PayloadText] = text
	p["timestamp"] = time.Now().Unix()

	if err := vm.store.Upsert(ctx, vm.collection, []Point{{ID: id, Vector: vector, Payload: p}}); err != nil {
		return fmt.Errorf("failed to store point: %w", err)
	}
	return nil
}

// Search returns up to limit texts scoring at least threshold against query.
func (vm *VectorMemory) Search(ctx context.Context, query string, limit int, threshold float32) ([]Match, error) {
	if err := vm.Initialize(ctx); err != nil {
		return nil, err
	}
	vector, err := vm.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := vm.store.Search(ctx, vm.collection, vector, limit, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		text, _ := r.Point.Payload[PayloadText].(string)
		matches = append(matches, Match{ID: r.ID, Text: text, Score: r.Score, Payload: r.Point.Payload})
	}
	return matches, nil
}

// Count returns the number of stored texts.
func (vm *VectorMemory) Count(ctx context.Context) (int, error) {
	if err := vm.Initialize(ctx); err != nil {
		return 0, err
	}
	return vm.store.Count(ctx, vm.collection)
}
