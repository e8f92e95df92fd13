// Package memory provides the embedders and vector stores shared by the
// response cache and document retrieval, and per-session chat history.
package memory

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned by stores for operations on a
// collection that was never created.
var ErrCollectionNotFound = errors.New("memory: collection not found")

// VectorStore defines the interface for a vector database.
type VectorStore interface {
	// CreateCollection creates a collection. It is a no-op when the
	// collection already exists with the same vector size.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	// Upsert adds or updates points in the vector store.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search searches for the nearest vectors to the given vector.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
	// Count returns the number of points in the collection.
	Count(ctx context.Context, collection string) (int, error)
}

// Point represents a data point in the vector store.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// SearchResult represents a result from a vector search.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// Embedder defines the interface for converting text to vectors.
type Embedder interface {
	// Embed converts a text string into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}
