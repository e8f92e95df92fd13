// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	stderrors "errors"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/neuralchat/pkg/errors"
)

// Metrics records dispatch, resolution and composition counters.
// All methods are safe on a nil receiver.
type Metrics struct {
	dispatches   metric.Int64Counter
	dispatchTime metric.Float64Histogram
	resolutions  metric.Int64Counter
	compositions metric.Int64Counter
	plugins      metric.Int64Counter
	errorCounter metric.Int64Counter
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide Metrics bound to the global meter
// provider. It returns nil when instruments cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(nil)
		if err == nil {
			defaultMetrics = m
		}
	})
	return defaultMetrics
}

// NewMetrics creates the instruments on mp, or on the global provider when
// mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("neuralchat")

	dispatches, err := meter.Int64Counter(
		"neuralchat.command.dispatches",
		metric.WithDescription("Commands dispatched by path and exit status"),
	)
	if err != nil {
		return nil, err
	}
	dispatchTime, err := meter.Float64Histogram(
		"neuralchat.command.duration",
		metric.WithDescription("Command execution time"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	resolutions, err := meter.Int64Counter(
		"neuralchat.command.resolutions",
		metric.WithDescription("Deferred command references resolved through the catalog"),
	)
	if err != nil {
		return nil, err
	}
	compositions, err := meter.Int64Counter(
		"neuralchat.chatbot.compositions",
		metric.WithDescription("Chatbot compositions by outcome"),
	)
	if err != nil {
		return nil, err
	}
	plugins, err := meter.Int64Counter(
		"neuralchat.chatbot.plugins",
		metric.WithDescription("Plugins attached to composed chatbots by slot"),
	)
	if err != nil {
		return nil, err
	}
	errorCounter, err := meter.Int64Counter(
		"neuralchat.errors.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		dispatches:   dispatches,
		dispatchTime: dispatchTime,
		resolutions:  resolutions,
		compositions: compositions,
		plugins:      plugins,
		errorCounter: errorCounter,
	}, nil
}

// RecordDispatch counts one dispatch of path and its duration.
func (m *Metrics) RecordDispatch(ctx context.Context, path string, status int, fallback bool, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrCommandPath, path),
		attribute.Int(AttrCommandStatus, status),
		attribute.Bool(AttrCommandFallback, fallback),
	)
	m.dispatches.Add(ctx, 1, attrs)
	m.dispatchTime.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
}

// RecordResolution counts one catalog lookup for ref.
func (m *Metrics) RecordResolution(ctx context.Context, ref string, ok bool) {
	if m == nil {
		return
	}
	m.resolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrCommandReference, ref),
		attribute.Bool("success", ok),
	))
}

// RecordComposition counts one chatbot build. rule names the violated rule
// when ok is false.
func (m *Metrics) RecordComposition(ctx context.Context, ok bool, rule string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.Bool("success", ok)}
	if !ok && rule != "" {
		attrs = append(attrs, attribute.String("rule", rule))
	}
	m.compositions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPluginAttached counts one plugin attached to slot.
func (m *Metrics) RecordPluginAttached(ctx context.Context, slot, impl string) {
	if m == nil {
		return
	}
	m.plugins.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPluginSlot, slot),
		attribute.String(AttrPluginImpl, impl),
	))
}

// RecordError counts err under component. Untyped errors are recorded with
// code UNKNOWN.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	code, recoverable := "UNKNOWN", "unknown"
	var ce *errors.ChatError
	if stderrors.As(err, &ce) {
		code = string(ce.Code)
		recoverable = strconv.FormatBool(ce.Recoverable)
	}
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", code),
		attribute.String("component", component),
		attribute.String("recoverable", recoverable),
	))
}
