// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatbot composes a chat Adapter from the flat configuration record:
// it validates the record, resolves "auto" device and backend values and
// attaches the audio, cache, retrieval and safety plugins the record asks
// for. Nothing is constructed until validation has passed.
package chatbot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/neuralchat/pkg/config"
	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/llm"
	"github.com/jllopis/neuralchat/pkg/memory"
	"github.com/jllopis/neuralchat/pkg/memory/ollama"
	"github.com/jllopis/neuralchat/pkg/memory/qdrant"
	"github.com/jllopis/neuralchat/pkg/plugins/audio"
	"github.com/jllopis/neuralchat/pkg/plugins/cache"
	"github.com/jllopis/neuralchat/pkg/plugins/retrieval"
	"github.com/jllopis/neuralchat/pkg/plugins/safety"
	"github.com/jllopis/neuralchat/pkg/resilience"
	"github.com/jllopis/neuralchat/pkg/telemetry"
)

// CacheInitializer initializes the process-wide response cache. It must be
// idempotent.
type CacheInitializer func(ctx context.Context, configFile, embeddingModel string) (*cache.Cache, error)

// DefaultConversationWindow is how many messages a session sends to the
// model; DefaultMaxSessions bounds the sessions an Adapter remembers.
const (
	DefaultConversationWindow = 20
	DefaultMaxSessions        = 1024
)

// Option customizes Build.
type Option func(*builder)

type builder struct {
	provider       llm.Provider
	collectAll     bool
	initCache      CacheInitializer
	devices        DeviceDetector
	backends       BackendDetector
	retrievers     *retrieval.Registry
	speech         *audio.ServiceConfig
	safety         safety.Checker
	conversations  memory.ConversationMemory
	metrics        *telemetry.Metrics
	logger         *slog.Logger
	tracer         trace.Tracer
	retrievalStore memory.VectorStore
}

// WithProvider replaces the provider selected by the llm section.
func WithProvider(p llm.Provider) Option {
	return func(b *builder) { b.provider = p }
}

// WithCollectAllViolations reports every broken rule instead of the first.
func WithCollectAllViolations() Option {
	return func(b *builder) { b.collectAll = true }
}

// WithCacheInitializer replaces cache.Init.
func WithCacheInitializer(fn CacheInitializer) Option {
	return func(b *builder) { b.initCache = fn }
}

// WithDeviceDetector replaces the host check used for device=auto.
func WithDeviceDetector(d DeviceDetector) Option {
	return func(b *builder) { b.devices = d }
}

// WithBackendDetector replaces the host check used for backend=auto.
func WithBackendDetector(d BackendDetector) Option {
	return func(b *builder) { b.backends = d }
}

// WithRetrieverRegistry replaces the registry of retrieval types.
func WithRetrieverRegistry(r *retrieval.Registry) Option {
	return func(b *builder) { b.retrievers = r }
}

// WithRetrievalStore replaces the vector store selected by vector_store.
func WithRetrievalStore(s memory.VectorStore) Option {
	return func(b *builder) { b.retrievalStore = s }
}

// WithSpeechService overrides the speech section (tests point it at a fake).
func WithSpeechService(cfg audio.ServiceConfig) Option {
	return func(b *builder) { b.speech = &cfg }
}

// WithSafetyChecker replaces the default sensitive-words checker.
func WithSafetyChecker(c safety.Checker) Option {
	return func(b *builder) { b.safety = c }
}

// WithConversationMemory replaces the in-memory session store.
func WithConversationMemory(m memory.ConversationMemory) Option {
	return func(b *builder) { b.conversations = m }
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(b *builder) { b.metrics = m }
}

// WithLogger sets the logger used while composing and chatting.
func WithLogger(l *slog.Logger) Option {
	return func(b *builder) { b.logger = l }
}

func newBuilder(opts []Option) *builder {
	b := &builder{
		initCache: func(ctx context.Context, file, model string) (*cache.Cache, error) {
			return cache.Init(ctx, file, model)
		},
		devices:    HostDetector{},
		backends:   HostDetector{},
		retrievers: retrieval.DefaultRegistry(),
		metrics:    telemetry.DefaultMetrics(),
		logger:     slog.Default(),
		tracer:     otel.Tracer("neuralchat/chatbot"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates cfg and composes an Adapter. Validation is fail-fast unless
// WithCollectAllViolations is given. A configuration error is always
// returned before any plugin is constructed.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*Adapter, error) {
	b := newBuilder(opts)
	ctx, span := b.tracer.Start(ctx, "chatbot.build")
	defer span.End()

	a, err := b.build(ctx, cfg)
	if err != nil {
		rule := ""
		if ce := errors.AsChatError(err); ce.Context != nil {
			rule, _ = ce.Context["rule"].(string)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "composition failed")
		b.metrics.RecordComposition(ctx, false, rule)
		b.metrics.RecordError(ctx, err, "chatbot")
		b.logger.ErrorContext(ctx, "chatbot composition failed", "error", err)
		return nil, err
	}
	span.SetAttributes(telemetry.CompositionAttributes(a.device, a.backend, a.model, audioLang(cfg), a.Plugins())...)
	b.metrics.RecordComposition(ctx, true, "")
	b.logger.InfoContext(ctx, "chatbot composed",
		"device", a.device,
		"backend", a.backend,
		"model", a.model,
		"plugins", a.Plugins())
	return a, nil
}

func audioLang(cfg config.Config) string {
	if cfg.AudioInput || cfg.AudioOutput {
		return config.Normalize(cfg.AudioLang)
	}
	return ""
}

func (b *builder) build(ctx context.Context, cfg config.Config) (*Adapter, error) {
	res := config.Validate(cfg)
	if !res.OK() {
		if b.collectAll {
			return nil, res.Err()
		}
		return nil, res.FirstError()
	}

	// Lookups that can still reject the record, before anything is built.
	var newRetriever retrieval.Factory
	if cfg.Retrieval {
		f, err := b.retrievers.Lookup(cfg.RetrievalType)
		if err != nil {
			return nil, err
		}
		newRetriever = f
	}
	provider := b.provider
	if provider == nil {
		p, err := providerFor(cfg.LLM)
		if err != nil {
			return nil, err
		}
		provider = p
	}
	var checker safety.Checker
	if cfg.SafetyChecker {
		c, err := b.safetyChecker(cfg)
		if err != nil {
			return nil, err
		}
		checker = c
	}

	device, err := b.resolveDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	backend, err := b.resolveBackend(cfg.Backend, device)
	if err != nil {
		return nil, err
	}

	conversations := b.conversations
	if conversations == nil {
		conversations = memory.NewInMemoryConversation(
			memory.NewWindowStrategy(DefaultConversationWindow, true),
			memory.WithMaxSessions(DefaultMaxSessions))
	}
	a := &Adapter{
		device:        device,
		backend:       backend,
		model:         cfg.ModelNameOrPath,
		provider:      provider,
		conversations: conversations,
		logger:        b.logger,
		tracer:        b.tracer,
		metrics:       b.metrics,
	}

	if cfg.Retrieval {
		if err := b.attachRetriever(ctx, a, cfg, newRetriever); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	if cfg.AudioInput || cfg.AudioOutput {
		pair := audio.NewPair(cfg.AudioLang, b.speechConfig(cfg.Speech))
		if err := a.RegisterRecognizer(pair.Recognizer); err != nil {
			return nil, err
		}
		if err := a.RegisterSynthesizer(pair.Synthesizer); err != nil {
			return nil, err
		}
		b.attached(ctx, SlotRecognizer, pair.Recognizer.Name())
		b.attached(ctx, SlotSynthesizer, pair.Synthesizer.Name())
	}

	if cfg.CacheChat {
		file := cfg.CacheChatConfigFile
		if file == "" {
			file = config.DefaultCacheConfigFile
		}
		model := cfg.CacheEmbeddingModelDir
		if model == "" {
			model = config.DefaultCacheEmbeddingModel
		}
		c, err := b.initCache(ctx, file, model)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		if err := a.AttachCache(c); err != nil {
			return nil, err
		}
		b.attached(ctx, SlotCache, file)
	}

	if checker != nil {
		if err := a.RegisterSafetyChecker(checker); err != nil {
			return nil, err
		}
		impl := "custom"
		if p, ok := checker.(*safety.Pipeline); ok {
			impl = strings.Join(p.IDs(), ",")
		}
		b.attached(ctx, SlotSafetyChecker, impl)
	}

	return a, nil
}

// safetyChecker returns the WithSafetyChecker override or a pipeline over
// the sensitive-word checker. A missing word file is a configuration error.
func (b *builder) safetyChecker(cfg config.Config) (safety.Checker, error) {
	if b.safety != nil {
		return b.safety, nil
	}
	sensitive := safety.NewSensitiveChecker()
	if cfg.SafetyWordsFile != "" {
		c, err := safety.NewSensitiveCheckerFromFile(cfg.SafetyWordsFile)
		if err != nil {
			return nil, errors.New(errors.CodeConfiguration, "load safety words", err).
				WithContext("field", "safety_words_file")
		}
		sensitive = c
	}
	return safety.New(
		safety.WithChecker(sensitive),
		safety.WithFailOpen(cfg.SafetyFailOpen),
	), nil
}

func (b *builder) attached(ctx context.Context, slot, impl string) {
	b.metrics.RecordPluginAttached(ctx, slot, impl)
	trace.SpanFromContext(ctx).AddEvent("plugin.attached",
		trace.WithAttributes(telemetry.PluginAttributes(slot, impl)...))
	b.logger.DebugContext(ctx, "plugin attached", "slot", slot, "impl", impl)
}

func (b *builder) resolveDevice(device string) (string, error) {
	device = config.Normalize(device)
	if device != config.DeviceAuto {
		return device, nil
	}
	detected := config.Normalize(b.devices.DetectDevice())
	if !config.Devices.Concrete(detected) {
		return "", errors.Newf(errors.CodeConfiguration,
			"device detector returned '%s', want one of %s", detected, config.Devices).
			WithContext("rule", config.RuleDevice)
	}
	return detected, nil
}

func (b *builder) resolveBackend(backend, device string) (string, error) {
	backend = config.Normalize(backend)
	if backend != config.BackendAuto {
		return backend, nil
	}
	detected := config.Normalize(b.backends.DetectBackend(device))
	if !config.Backends.Concrete(detected) {
		return "", errors.Newf(errors.CodeConfiguration,
			"backend detector returned '%s', want one of %s", detected, config.Backends).
			WithContext("rule", config.RuleBackend)
	}
	return detected, nil
}

func (b *builder) speechConfig(s config.SpeechConfig) audio.ServiceConfig {
	if b.speech != nil {
		return *b.speech
	}
	return audio.ServiceConfig{
		BaseURL: s.BaseURL,
		Timeout: time.Duration(s.TimeoutSeconds) * time.Second,
		Retry:   resilience.DefaultPolicy().WithMaxAttempts(s.Retries + 1),
	}
}

func (b *builder) attachRetriever(ctx context.Context, a *Adapter, cfg config.Config, factory retrieval.Factory) error {
	opts := retrieval.Options{
		DocumentPath: cfg.DocumentPath,
		Store:        b.retrievalStore,
		Logger:       b.logger,
	}
	switch strings.ToLower(cfg.Embedding.Provider) {
	case "ollama":
		opts.Embedder = ollama.NewEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.Model)
	default:
		opts.Embedder = memory.NewHashEmbedder(cfg.Embedding.Dimensions)
	}
	if opts.Store == nil && strings.EqualFold(cfg.Vectors.Type, "qdrant") {
		qs, err := qdrant.New(cfg.Vectors.Address)
		if err != nil {
			return errors.New(errors.CodeMemoryError, "connect retrieval vector store", err)
		}
		a.closers = append(a.closers, qs.Close)
		opts.Store = qs
	}

	r, err := factory(ctx, opts)
	if err != nil {
		return err
	}
	if err := a.RegisterRetriever(r); err != nil {
		return err
	}
	b.attached(ctx, SlotRetriever, r.Name())
	return nil
}

func providerFor(c config.LLMConfig) (llm.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "", "ollama":
		return llm.NewOllama(c.BaseURL, llm.WithOllamaRetry(resilience.DefaultPolicy())), nil
	case "mock":
		return &llm.MockProvider{Response: c.Response}, nil
	default:
		return nil, errors.Newf(errors.CodeConfiguration,
			"invalid llm provider '%s'. Must be one of ollama, mock", c.Provider).
			WithContext("field", "llm.provider")
	}
}
