// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backends accepted in the cache config file.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendQdrant = "qdrant"

	EmbeddingHash   = "hash"
	EmbeddingOllama = "ollama"
)

// Config is the content of the cache config file.
type Config struct {
	DataManager         DataManagerConfig `yaml:"data_manager"`
	VectorStore         VectorStoreConfig `yaml:"vector_store"`
	Embedding           EmbeddingConfig   `yaml:"embedding"`
	SimilarityThreshold float32           `yaml:"similarity_threshold"`
}

// DataManagerConfig selects where question/answer pairs are kept.
type DataManagerConfig struct {
	Type       string `yaml:"type"` // memory, sqlite, redis
	Path       string `yaml:"path"`
	Address    string `yaml:"address"`
	DB         int    `yaml:"db"`
	Prefix     string `yaml:"prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// VectorStoreConfig selects where question embeddings are indexed.
type VectorStoreConfig struct {
	Type       string `yaml:"type"` // memory, qdrant
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
}

// EmbeddingConfig selects the embedder. The model itself comes from the
// chatbot configuration (cache_embedding_model_dir).
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // hash, ollama
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
}

// DefaultConfig is used for keys the file leaves empty, and entirely when
// the file does not exist.
func DefaultConfig() Config {
	return Config{
		DataManager:         DataManagerConfig{Type: BackendMemory, Prefix: "neuralchat:cache:"},
		VectorStore:         VectorStoreConfig{Type: BackendMemory, Collection: "neuralchat_cache"},
		Embedding:           EmbeddingConfig{Provider: EmbeddingHash, Dimensions: 256},
		SimilarityThreshold: 0.9,
	}
}

// LoadConfig reads the YAML file at path over DefaultConfig. It reports
// whether the file existed.
func LoadConfig(path string) (Config, bool, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, false, nil
	}
	if err != nil {
		return cfg, false, fmt.Errorf("read cache config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, true, fmt.Errorf("parse cache config %s: %w", path, err)
	}
	cfg.fillDefaults()
	return cfg, true, cfg.validate()
}

func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.DataManager.Type == "" {
		c.DataManager.Type = d.DataManager.Type
	}
	if c.DataManager.Prefix == "" {
		c.DataManager.Prefix = d.DataManager.Prefix
	}
	if c.VectorStore.Type == "" {
		c.VectorStore.Type = d.VectorStore.Type
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = d.VectorStore.Collection
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = d.Embedding.Provider
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = d.Embedding.Dimensions
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	c.DataManager.Type = strings.ToLower(c.DataManager.Type)
	c.VectorStore.Type = strings.ToLower(c.VectorStore.Type)
	c.Embedding.Provider = strings.ToLower(c.Embedding.Provider)
}

func (c Config) validate() error {
	switch c.DataManager.Type {
	case BackendMemory:
	case BackendSQLite:
		if c.DataManager.Path == "" {
			return fmt.Errorf("cache data manager sqlite needs a path")
		}
	case BackendRedis:
		if c.DataManager.Address == "" {
			return fmt.Errorf("cache data manager redis needs an address")
		}
	default:
		return fmt.Errorf("unknown cache data manager %q", c.DataManager.Type)
	}
	switch c.VectorStore.Type {
	case BackendMemory:
	case BackendQdrant:
		if c.VectorStore.Address == "" {
			return fmt.Errorf("cache vector store qdrant needs an address")
		}
	default:
		return fmt.Errorf("unknown cache vector store %q", c.VectorStore.Type)
	}
	if c.VectorStore.Type == BackendQdrant && c.DataManager.Type == BackendMemory {
		return fmt.Errorf("cache vector store qdrant outlives the memory data manager; use sqlite or redis")
	}
	switch c.Embedding.Provider {
	case EmbeddingHash, EmbeddingOllama:
	default:
		return fmt.Errorf("unknown cache embedding provider %q", c.Embedding.Provider)
	}
	if c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold %.2f is above 1", c.SimilarityThreshold)
	}
	return nil
}
