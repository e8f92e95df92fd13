// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the flat NeuralChat configuration record.
//
// Top-level keys (device, backend, audio_input, cache_chat, ...) are a literal
// contract with the plugin composer. Ambient settings live in nested sections
// (log, telemetry, llm, speech).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nested keys: NEURALCHAT_LLM__BASE_URL -> llm.base_url.
const EnvPrefix = "NEURALCHAT_"

const (
	DefaultModel               = "Intel/neural-chat-7b-v1-1"
	DefaultCacheConfigFile     = "./pipeline/plugins/caching/cache_config.yaml"
	DefaultCacheEmbeddingModel = "hkunlp/instructor-large"
)

type Config struct {
	Device          string `koanf:"device" yaml:"device"`
	Backend         string `koanf:"backend" yaml:"backend"`
	ModelNameOrPath string `koanf:"model_name_or_path" yaml:"model_name_or_path"`

	AudioInput      bool   `koanf:"audio_input" yaml:"audio_input"`
	AudioOutput     bool   `koanf:"audio_output" yaml:"audio_output"`
	AudioLang       string `koanf:"audio_lang" yaml:"audio_lang"`
	AudioInputPath  string `koanf:"audio_input_path" yaml:"audio_input_path"`
	AudioOutputPath string `koanf:"audio_output_path" yaml:"audio_output_path"`

	CacheChat              bool   `koanf:"cache_chat" yaml:"cache_chat"`
	CacheChatConfigFile    string `koanf:"cache_chat_config_file" yaml:"cache_chat_config_file"`
	CacheEmbeddingModelDir string `koanf:"cache_embedding_model_dir" yaml:"cache_embedding_model_dir"`

	Retrieval     bool   `koanf:"retrieval" yaml:"retrieval"`
	RetrievalType string `koanf:"retrieval_type" yaml:"retrieval_type"`
	DocumentPath  string `koanf:"document_path" yaml:"document_path"`

	SafetyChecker   bool   `koanf:"safety_checker" yaml:"safety_checker"`
	SafetyWordsFile string `koanf:"safety_words_file" yaml:"safety_words_file"` // one term per line; empty uses the built-in list
	SafetyFailOpen  bool   `koanf:"safety_fail_open" yaml:"safety_fail_open"`

	Log       LogConfig       `koanf:"log" yaml:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry" yaml:"telemetry"`
	LLM       LLMConfig       `koanf:"llm" yaml:"llm"`
	Speech    SpeechConfig    `koanf:"speech" yaml:"speech"`
	Embedding EmbeddingConfig `koanf:"embedding" yaml:"embedding"`
	Vectors   VectorsConfig   `koanf:"vector_store" yaml:"vector_store"`
}

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string  `koanf:"exporter" yaml:"exporter"` // none, stdout, otlp
	OTLPEndpoint string  `koanf:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool    `koanf:"otlp_insecure" yaml:"otlp_insecure"`
	OTLPTimeout  int     `koanf:"otlp_timeout_seconds" yaml:"otlp_timeout_seconds"`
	SampleRatio  float64 `koanf:"sample_ratio" yaml:"sample_ratio"`
}

type LLMConfig struct {
	Provider string `koanf:"provider" yaml:"provider"` // ollama, mock
	BaseURL  string `koanf:"base_url" yaml:"base_url"`
	Response string `koanf:"response" yaml:"response"` // canned reply for the mock provider
}

// SpeechConfig points the audio plugins at a speech service.
type SpeechConfig struct {
	BaseURL        string `koanf:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `koanf:"timeout_seconds" yaml:"timeout_seconds"`
	// Retries is the number of extra attempts after a transport failure or
	// a 5xx answer.
	Retries        int    `koanf:"retries" yaml:"retries"`
}

// EmbeddingConfig selects the embedder used by retrieval. The cache embeds
// with cache_embedding_model_dir on the same provider.
type EmbeddingConfig struct {
	Provider   string `koanf:"provider" yaml:"provider"` // hash, ollama
	BaseURL    string `koanf:"base_url" yaml:"base_url"`
	Model      string `koanf:"model" yaml:"model"`
	Dimensions int    `koanf:"dimensions" yaml:"dimensions"` // hash only
}

// VectorsConfig selects the vector store used by retrieval.
type VectorsConfig struct {
	Type    string `koanf:"type" yaml:"type"` // memory, qdrant
	Address string `koanf:"address" yaml:"address"`
}

// Default returns the configuration used when nothing is loaded.
func Default() Config {
	return Config{
		Device:          DeviceAuto,
		Backend:         BackendAuto,
		ModelNameOrPath: DefaultModel,
		AudioLang:       AudioEnglish,
		RetrievalType:   "dense",
		Log:             LogConfig{Level: "info", Format: "text"},
		Telemetry:       TelemetryConfig{Exporter: "none"},
		LLM:             LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434"},
		Speech:          SpeechConfig{BaseURL: "http://localhost:9000", TimeoutSeconds: 60, Retries: 2},
		Embedding:       EmbeddingConfig{Provider: "hash", BaseURL: "http://localhost:11434", Model: "nomic-embed-text", Dimensions: 256},
		Vectors:         VectorsConfig{Type: "memory", Address: "localhost:6334"},
	}
}

func defaultsMap() map[string]any {
	d := Default()
	return map[string]any{
		"device":                 d.Device,
		"backend":                d.Backend,
		"model_name_or_path":     d.ModelNameOrPath,
		"audio_lang":             d.AudioLang,
		"retrieval_type":         d.RetrievalType,
		"log.level":              d.Log.Level,
		"log.format":             d.Log.Format,
		"telemetry.exporter":     d.Telemetry.Exporter,
		"llm.provider":           d.LLM.Provider,
		"llm.base_url":           d.LLM.BaseURL,
		"speech.base_url":        d.Speech.BaseURL,
		"speech.timeout_seconds": d.Speech.TimeoutSeconds,
		"speech.retries":         d.Speech.Retries,
		"embedding.provider":     d.Embedding.Provider,
		"embedding.base_url":     d.Embedding.BaseURL,
		"embedding.model":        d.Embedding.Model,
		"embedding.dimensions":   d.Embedding.Dimensions,
		"vector_store.type":      d.Vectors.Type,
		"vector_store.address":   d.Vectors.Address,
	}
}

// Load reads defaults, the optional YAML file at path and environment overrides.
func Load(path string) (*Config, error) {
	return load(path, "", nil)
}

// LoadWithCLI parses --config, --profile and --set flags and loads the result.
// --set values are YAML scalars or documents: --set cache_chat=true.
func LoadWithCLI(args []string) (*Config, error) {
	opts, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, opts.sets)
}

func load(path, profile string, sets []keyValue) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaultsMap() {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	// 1. Base file, then the profile overlay next to it.
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if profile != "" {
			overlay := profilePath(path, profile)
			if _, err := os.Stat(overlay); err == nil {
				if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
					return nil, fmt.Errorf("load profile %s: %w", overlay, err)
				}
			}
		}
	}

	// 2. Environment (NEURALCHAT_CACHE_CHAT -> cache_chat).
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	// 3. Explicit --set overrides win.
	for _, kv := range sets {
		if err := k.Set(kv.key, kv.value); err != nil {
			return nil, fmt.Errorf("set %s: %w", kv.key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// profilePath maps config.yaml + dev to config.dev.yaml.
func profilePath(path, profile string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + profile + ext
}

type keyValue struct {
	key   string
	value any
}

type cliOverrides struct {
	path    string
	profile string
	sets    []keyValue
}

func parseCLIOverrides(args []string) (cliOverrides, error) {
	var opts cliOverrides
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, inline, hasInline := strings.Cut(arg, "=")
		switch name {
		case "--config", "--profile", "--set":
		default:
			continue
		}
		value := inline
		if !hasInline {
			if i+1 >= len(args) {
				return opts, fmt.Errorf("missing value for %s", name)
			}
			value = args[i+1]
			i++
		}
		switch name {
		case "--config":
			opts.path = value
		case "--profile":
			opts.profile = value
		case "--set":
			kv, err := parseSet(value)
			if err != nil {
				return opts, err
			}
			opts.sets = append(opts.sets, kv)
		}
	}
	return opts, nil
}

func parseSet(raw string) (keyValue, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return keyValue{}, fmt.Errorf("invalid --set value %q, want key=value", raw)
	}
	var parsed any
	if err := yamlv3.Unmarshal([]byte(value), &parsed); err != nil || parsed == nil {
		return keyValue{key: key, value: value}, nil
	}
	return keyValue{key: key, value: parsed}, nil
}

// FileFromCLI returns the --config path and --profile name found in args.
func FileFromCLI(args []string) (path, profile string, err error) {
	opts, err := parseCLIOverrides(args)
	if err != nil {
		return "", "", err
	}
	return opts.path, opts.profile, nil
}

// StripCLIOverrides removes the flags consumed by LoadWithCLI from args.
func StripCLIOverrides(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		name, _, hasInline := strings.Cut(args[i], "=")
		switch name {
		case "--config", "--profile", "--set":
			if !hasInline {
				i++
			}
			continue
		}
		out = append(out, args[i])
	}
	return out
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yamlv3.Marshal(c)
}
