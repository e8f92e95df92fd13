package cache

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/goleak"

	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/memory"
)

func newMemoryCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(context.Background(), DefaultConfig(), "test-model")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCacheLookupAndStore(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	c := newMemoryCache(t)
	defer c.Close()

	if _, ok, err := c.Lookup(ctx, "What is the capital of France?"); err != nil || ok {
		t.Fatalf("Lookup on empty cache = ok %v, err %v", ok, err)
	}
	if err := c.Store(ctx, "What is the capital of France?", "Paris."); err != nil {
		t.Fatalf("Store: %v", err)
	}

	tests := []struct {
		question string
		hit      bool
	}{
		{"What is the capital of France?", true},
		{"  what is the   capital of france? ", true},
		{"How do I bake sourdough bread at home?", false},
		{"", false},
	}
	for _, tt := range tests {
		answer, ok, err := c.Lookup(ctx, tt.question)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", tt.question, err)
		}
		if ok != tt.hit {
			t.Errorf("Lookup(%q) hit = %v, want %v", tt.question, ok, tt.hit)
		}
		if ok && answer != "Paris." {
			t.Errorf("Lookup(%q) = %q, want Paris.", tt.question, answer)
		}
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 1 || stats.Vectors != 1 || stats.Stores != 1 {
		t.Errorf("Stats = %+v, want one entry, vector and store", stats)
	}
	if stats.Hits != 2 || stats.Misses != 2 {
		t.Errorf("hits/misses = %d/%d, want 2/2", stats.Hits, stats.Misses)
	}
	if stats.EmbeddingModel != "test-model" {
		t.Errorf("EmbeddingModel = %q", stats.EmbeddingModel)
	}
}

func TestCacheStoreIgnoresEmpty(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)
	defer c.Close()

	if err := c.Store(ctx, "   ", "answer"); err != nil {
		t.Fatal(err)
	}
	if err := c.Store(ctx, "question", " "); err != nil {
		t.Fatal(err)
	}
	stats, _ := c.Stats(ctx)
	if stats.Entries != 0 {
		t.Errorf("Entries = %d, want 0", stats.Entries)
	}
}

func TestCacheSkipsVectorsWithoutEntries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()

	// An earlier process left a vector behind; its answers are gone.
	first, err := New(ctx, DefaultConfig(), "m", WithVectorStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Store(ctx, "What is the capital of France?", "Paris."); err != nil {
		t.Fatalf("Store: %v", err)
	}
	first.Close()

	c, err := New(ctx, DefaultConfig(), "m", WithVectorStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, ok, err := c.Lookup(ctx, "What is the capital of France?"); err != nil || ok {
		t.Fatalf("stale vector answered: ok %v, err %v", ok, err)
	}

	// Same words, different spelling: an equally similar vector next to the stale one.
	if err := c.Store(ctx, "what is the capital of france", "Paris!"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	answer, ok, err := c.Lookup(ctx, "What is the capital of France?")
	if err != nil || !ok || answer != "Paris!" {
		t.Errorf("Lookup = %q, %v, %v; want Paris!", answer, ok, err)
	}

	// Storing the stale question again replaces its vector.
	if err := c.Store(ctx, "What is the capital of France?", "Paris."); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if n, err := store.Count(ctx, DefaultConfig().VectorStore.Collection); err != nil || n != 2 {
		t.Errorf("vectors = %d, %v; want 2", n, err)
	}
}

func TestCacheWithRedisDataManager(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.DataManager = DataManagerConfig{Type: BackendRedis, Address: mr.Addr(), Prefix: "nc:"}

	ctx := context.Background()
	c, err := New(ctx, cfg, "m")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.Store(ctx, "ping", "pong"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	answer, ok, err := c.Lookup(ctx, "ping")
	if err != nil || !ok || answer != "pong" {
		t.Fatalf("Lookup = %q, %v, %v", answer, ok, err)
	}
	if keys := mr.Keys(); len(keys) != 1 {
		t.Errorf("redis keys = %v, want one", keys)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	t.Cleanup(func() { _ = Reset() })
	_ = Reset()

	path := filepath.Join(t.TempDir(), "missing.yaml")
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		results = make([]*Cache, 8)
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := Init(ctx, path, "")
			if err != nil {
				t.Errorf("Init: %v", err)
			}
			results[i] = c
		}(i)
	}
	wg.Wait()

	for i, c := range results {
		if c != results[0] {
			t.Errorf("Init #%d returned a different cache", i)
		}
	}
	if Initializations() != 1 {
		t.Errorf("Initializations = %d, want 1", Initializations())
	}
	if Default() != results[0] {
		t.Error("Default does not return the initialized cache")
	}

	stats, err := Default().Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.EmbeddingModel != DefaultEmbeddingModel {
		t.Errorf("EmbeddingModel = %q, want %q", stats.EmbeddingModel, DefaultEmbeddingModel)
	}
}

func TestInitFailureIsRetried(t *testing.T) {
	t.Cleanup(func() { _ = Reset() })
	_ = Reset()

	ctx := context.Background()
	_, err := Init(ctx, writeConfig(t, "data_manager:\n  type: mongo\n"), "")
	if !errors.HasCode(err, errors.CodeConfiguration) {
		t.Fatalf("Init error = %v, want CONFIGURATION_ERROR", err)
	}
	if Default() != nil || Initializations() != 0 {
		t.Fatal("failed Init left a cache behind")
	}

	if _, err := Init(ctx, writeConfig(t, "similarity_threshold: 0.95\n"), ""); err != nil {
		t.Fatalf("Init retry: %v", err)
	}
	if Initializations() != 1 {
		t.Errorf("Initializations = %d, want 1", Initializations())
	}
}
