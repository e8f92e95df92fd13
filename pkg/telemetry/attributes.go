// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires OpenTelemetry tracing and metrics and the slog
// handler used across NeuralChat.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for NeuralChat spans and metrics.
const (
	// Command dispatch
	AttrCommandPath      = "command.path"
	AttrCommandFallback  = "command.fallback"
	AttrCommandArgs      = "command.args"
	AttrCommandStatus    = "command.status"
	AttrCommandReference = "command.reference"

	// Chatbot composition
	AttrChatbotDevice    = "neuralchat.device"
	AttrChatbotBackend   = "neuralchat.backend"
	AttrChatbotModel     = "neuralchat.model"
	AttrChatbotAudioLang = "neuralchat.audio.lang"
	AttrChatbotPlugins   = "neuralchat.plugins"

	// Plugins
	AttrPluginSlot = "plugin.slot"
	AttrPluginImpl = "plugin.impl"

	// Retrieval and cache
	AttrRetrievalType  = "neuralchat.retrieval.type"
	AttrRetrievalCount = "neuralchat.retrieval.count"
	AttrCacheHit       = "neuralchat.cache.hit"
	AttrCacheStored    = "neuralchat.cache.stored"

	// LLM attributes (gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMPrompt       = "gen_ai.prompt"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
)

// CommandAttributes returns attributes for a command.dispatch span.
func CommandAttributes(path string, fallback bool, args int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCommandPath, path),
		attribute.Bool(AttrCommandFallback, fallback),
		attribute.Int(AttrCommandArgs, args),
	}
}

// CompositionAttributes returns attributes for a chatbot.build span.
// device and backend are the concrete values after detection.
func CompositionAttributes(device, backend, model, audioLang string, plugins []string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrChatbotDevice, device),
		attribute.String(AttrChatbotBackend, backend),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrChatbotModel, model))
	}
	if audioLang != "" {
		attrs = append(attrs, attribute.String(AttrChatbotAudioLang, audioLang))
	}
	if len(plugins) > 0 {
		attrs = append(attrs, attribute.StringSlice(AttrChatbotPlugins, plugins))
	}
	return attrs
}

// PluginAttributes identifies the plugin bound to a slot.
func PluginAttributes(slot, impl string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrPluginSlot, slot),
		attribute.String(AttrPluginImpl, impl),
	}
}

// RetrievalAttributes returns attributes for a retrieval span.
func RetrievalAttributes(kind string, retrieved int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrRetrievalType, kind)}
	if retrieved > 0 {
		attrs = append(attrs, attribute.Int(AttrRetrievalCount, retrieved))
	}
	return attrs
}

// CacheAttributes reports a cache lookup outcome.
func CacheAttributes(hit, stored bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(AttrCacheHit, hit),
		attribute.Bool(AttrCacheStored, stored),
	}
}

// LLMAttributes returns attributes for LLM call spans. The prompt is
// truncated to maxLen bytes (500 when maxLen <= 0).
func LLMAttributes(model, provider, prompt string, msgCount, maxLen int) []attribute.KeyValue {
	if maxLen <= 0 {
		maxLen = 500
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if prompt != "" {
		if len(prompt) > maxLen {
			prompt = prompt[:maxLen] + "..."
		}
		attrs = append(attrs, attribute.String(AttrLLMPrompt, prompt))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	return attrs
}
