package memory

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryStore_Search(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	if err := store.CreateCollection(ctx, "docs", 2); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}

	err := store.Upsert(ctx, "docs", []Point{
		{ID: "x", Vector: []float32{1, 0}},
		{ID: "y", Vector: []float32{0, 1}},
		{ID: "xy", Vector: []float32{1, 1}},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := store.Search(ctx, "docs", []float32{1, 0}, 2, 0.1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 || results[0].ID != "x" || results[1].ID != "xy" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Score < 0.99 {
		t.Errorf("score = %v, want ~1", results[0].Score)
	}

	n, err := store.Count(ctx, "docs")
	if err != nil || n != 3 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestInMemoryStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	if _, err := store.Search(ctx, "missing", []float32{1}, 1, 0); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("Search(missing) = %v", err)
	}
	if err := store.CreateCollection(ctx, "c", 0); err == nil {
		t.Error("expected error for zero vector size")
	}
	_ = store.CreateCollection(ctx, "c", 3)
	if err := store.CreateCollection(ctx, "c", 3); err != nil {
		t.Errorf("re-creating with the same size should be a no-op: %v", err)
	}
	if err := store.CreateCollection(ctx, "c", 4); err == nil {
		t.Error("expected error for size mismatch")
	}
	if err := store.Upsert(ctx, "c", []Point{{ID: "p", Vector: []float32{1}}}); err == nil {
		t.Error("expected dimension error")
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal = %v", got)
	}
	if got := Cosine([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("length mismatch = %v", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("zero vector = %v", got)
	}
}
