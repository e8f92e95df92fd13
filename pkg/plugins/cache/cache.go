// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache is the process-wide semantic response cache. Questions are
// embedded and indexed in a vector store; answers live in a data manager
// keyed by the point's entry id. A lookup hits when a stored question scores
// at least the configured similarity threshold.
package cache

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/memory"
	"github.com/jllopis/neuralchat/pkg/memory/ollama"
	"github.com/jllopis/neuralchat/pkg/memory/qdrant"
)

// Defaults used when the chatbot configuration leaves the cache paths empty.
const (
	DefaultConfigFile     = "./pipeline/plugins/caching/cache_config.yaml"
	DefaultEmbeddingModel = "hkunlp/instructor-large"
)

const payloadEntryID = "entry_id"

// LookupCandidates is how many similar questions a lookup inspects before
// giving up. Vectors whose entry is gone from the data manager are skipped.
const LookupCandidates = 5

var questionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("neuralchat:cache:question"))

// questionID is the point id of a normalized question, so storing the same
// question again replaces its vector.
func questionID(q string) string {
	return uuid.NewSHA1(questionNamespace, []byte(q)).String()
}

// Cache answers repeated questions without calling the model.
type Cache struct {
	cfg       Config
	model     string
	vectors   *memory.VectorMemory
	data      DataManager
	closeFns  []func() error
	logger    *slog.Logger
	mu        sync.Mutex
	hits      int
	misses    int
	stores    int
	closeOnce sync.Once
	closeErr  error
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Entries        int     `json:"entries" yaml:"entries"`
	Vectors        int     `json:"vectors" yaml:"vectors"`
	Hits           int     `json:"hits" yaml:"hits"`
	Misses         int     `json:"misses" yaml:"misses"`
	Stores         int     `json:"stores" yaml:"stores"`
	DataManager    string  `json:"data_manager" yaml:"data_manager"`
	VectorStore    string  `json:"vector_store" yaml:"vector_store"`
	EmbeddingModel string  `json:"embedding_model" yaml:"embedding_model"`
	Threshold      float32 `json:"similarity_threshold" yaml:"similarity_threshold"`
}

// Option customizes New and Init.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	embedder memory.Embedder
	store    memory.VectorStore
	data     DataManager
}

// WithLogger sets the cache logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEmbedder replaces the embedder selected by the config file.
func WithEmbedder(e memory.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithVectorStore replaces the vector store selected by the config file.
func WithVectorStore(s memory.VectorStore) Option {
	return func(o *options) { o.store = s }
}

// WithDataManager replaces the data manager selected by the config file.
func WithDataManager(d DataManager) Option {
	return func(o *options) { o.data = d }
}

// New builds a cache from cfg. embeddingModel is handed to model-backed
// embedders; the hash embedder ignores it.
func New(ctx context.Context, cfg Config, embeddingModel string, opts ...Option) (*Cache, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Cache{cfg: cfg, model: embeddingModel, logger: o.logger}

	embedder := o.embedder
	if embedder == nil {
		switch cfg.Embedding.Provider {
		case EmbeddingOllama:
			embedder = ollama.NewEmbedder(cfg.Embedding.BaseURL, embeddingModel)
		default:
			embedder = memory.NewHashEmbedder(cfg.Embedding.Dimensions)
		}
	}

	store := o.store
	if store == nil {
		switch cfg.VectorStore.Type {
		case BackendQdrant:
			qs, err := qdrant.New(cfg.VectorStore.Address)
			if err != nil {
				return nil, errors.New(errors.CodeMemoryError, "connect cache vector store", err)
			}
			c.closeFns = append(c.closeFns, qs.Close)
			store = qs
		default:
			store = memory.NewInMemoryStore()
		}
	}

	data := o.data
	if data == nil {
		dm, err := NewDataManager(cfg.DataManager)
		if err != nil {
			c.Close()
			return nil, errors.New(errors.CodeMemoryError, "open cache data manager", err)
		}
		data = dm
	}
	c.data = data
	c.closeFns = append(c.closeFns, data.Close)

	c.vectors = memory.NewVectorMemory(store, embedder, cfg.VectorStore.Collection)
	if err := c.vectors.Initialize(ctx); err != nil {
		c.Close()
		return nil, errors.New(errors.CodeMemoryError, "initialize cache collection", err)
	}
	return c, nil
}

func normalizeQuestion(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// Lookup returns the cached answer of the most similar stored question.
func (c *Cache) Lookup(ctx context.Context, question string) (string, bool, error) {
	q := normalizeQuestion(question)
	if q == "" {
		return "", false, nil
	}
	matches, err := c.vectors.Search(ctx, q, LookupCandidates, c.cfg.SimilarityThreshold)
	if err != nil {
		return "", false, errors.New(errors.CodeMemoryError, "cache lookup", err)
	}
	for _, m := range matches {
		id, _ := m.Payload[payloadEntryID].(string)
		if id == "" {
			continue
		}
		entry, ok, err := c.data.Get(ctx, id)
		if err != nil {
			return "", false, errors.New(errors.CodeMemoryError, "cache lookup", err)
		}
		if ok {
			c.count(&c.hits)
			c.logger.DebugContext(ctx, "cache hit", "entry", id, "score", m.Score)
			return entry.Answer, true, nil
		}
	}
	c.count(&c.misses)
	return "", false, nil
}

// Store records answer for question.
func (c *Cache) Store(ctx context.Context, question, answer string) error {
	q := normalizeQuestion(question)
	if q == "" || strings.TrimSpace(answer) == "" {
		return nil
	}
	entry := Entry{ID: uuid.NewString(), Question: q, Answer: answer, CreatedAt: time.Now().UTC()}
	if err := c.data.Put(ctx, entry); err != nil {
		return errors.New(errors.CodeMemoryError, "cache store", err)
	}
	if err := c.vectors.Put(ctx, questionID(q), q, map[string]any{payloadEntryID: entry.ID}); err != nil {
		return errors.New(errors.CodeMemoryError, "cache store", err)
	}
	c.count(&c.stores)
	return nil
}

func (c *Cache) count(n *int) {
	c.mu.Lock()
	*n++
	c.mu.Unlock()
}

// Stats reports entry counts and hit ratios.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	entries, err := c.data.Count(ctx)
	if err != nil {
		return Stats{}, errors.New(errors.CodeMemoryError, "cache stats", err)
	}
	vectors, err := c.vectors.Count(ctx)
	if err != nil {
		return Stats{}, errors.New(errors.CodeMemoryError, "cache stats", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:        entries,
		Vectors:        vectors,
		Hits:           c.hits,
		Misses:         c.misses,
		Stores:         c.stores,
		DataManager:    c.cfg.DataManager.Type,
		VectorStore:    c.cfg.VectorStore.Type,
		EmbeddingModel: c.model,
		Threshold:      c.cfg.SimilarityThreshold,
	}, nil
}

// Close releases backend connections. It is safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		for i := len(c.closeFns) - 1; i >= 0; i-- {
			if err := c.closeFns[i](); err != nil {
				errs = append(errs, err)
			}
		}
		c.closeErr = stderrors.Join(errs...)
	})
	return c.closeErr
}

var (
	defaultMu       sync.Mutex
	defaultCache    *Cache
	initializations int
)

// Init initializes the process-wide cache from the YAML file at configPath.
// Only the first successful call builds a cache; later and concurrent calls
// return it unchanged whatever their arguments. A failed call leaves the
// cache uninitialized. A missing config file falls back to DefaultConfig.
func Init(ctx context.Context, configPath, embeddingModel string, opts ...Option) (*Cache, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCache != nil {
		return defaultCache, nil
	}
	if configPath == "" {
		configPath = DefaultConfigFile
	}
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}

	cfg, found, err := LoadConfig(configPath)
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, "load cache config", err).
			WithContext("path", configPath)
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if !found {
		o.logger.WarnContext(ctx, "cache config file not found, using defaults", "path", configPath)
	}

	c, err := New(ctx, cfg, embeddingModel, opts...)
	if err != nil {
		return nil, err
	}
	defaultCache = c
	initializations++
	o.logger.InfoContext(ctx, "cache initialized",
		"data_manager", cfg.DataManager.Type,
		"vector_store", cfg.VectorStore.Type,
		"embedding_model", embeddingModel)
	return c, nil
}

// Default returns the process-wide cache, or nil before Init succeeds.
func Default() *Cache {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultCache
}

// Initializations counts successful Init calls that built a cache.
func Initializations() int {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return initializations
}

// Reset closes and forgets the process-wide cache.
func Reset() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	var err error
	if defaultCache != nil {
		err = defaultCache.Close()
	}
	defaultCache = nil
	initializations = 0
	return err
}
