package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
)

func TestInit(t *testing.T) {
	shutdown, err := Init("test-service", "v0.0.1")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("Shutdown function should not be nil")
	}

	// Ensure shutdown works
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitWithConfig_Exporters(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty is none", cfg: Config{}},
		{name: "none", cfg: Config{Exporter: "NONE"}},
		{name: "otlp without endpoint", cfg: Config{Exporter: "otlp"}, wantErr: true},
		{name: "unknown", cfg: Config{Exporter: "zipkin"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := InitWithConfig("test-service", "v0.0.1", tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("InitWithConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if err := shutdown(context.Background()); err != nil {
					t.Errorf("Shutdown failed: %v", err)
				}
			}
		})
	}
}

func TestInitWithConfig_StdoutWriter(t *testing.T) {
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	}()

	var buf bytes.Buffer
	shutdown, err := InitWithConfig("test-service", "v0.0.1", Config{
		Exporter:    ExporterStdout,
		Writer:      &buf,
		SampleRatio: 1,
	})
	if err != nil {
		t.Fatalf("InitWithConfig: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "command.dispatch")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !strings.Contains(buf.String(), "command.dispatch") {
		t.Errorf("span not exported to writer: %s", buf.String())
	}
}

func TestConfigureSlog_AddsTraceIDs(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "debug", "json")

	tp := trace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "hello")
	span.End()

	out := buf.String()
	if !strings.Contains(out, `"trace_id":"`+span.SpanContext().TraceID().String()+`"`) {
		t.Errorf("missing trace_id in %s", out)
	}
	if !strings.Contains(out, `"span_id"`) {
		t.Errorf("missing span_id in %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_CommandFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "text")

	ctx := ContextWithCommand(context.Background(), "cache.stats")
	logger.InfoContext(ctx, "with command")
	logger.InfoContext(ctx, "explicit", LogKeyCommand, "textchat")
	logger.Debug("filtered out")
	logger.Info("no context")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "command=cache.stats") {
		t.Errorf("line 0 = %s", lines[0])
	}
	if strings.Count(lines[1], "command=") != 1 || !strings.Contains(lines[1], "command=textchat") {
		t.Errorf("explicit attribute should win: %s", lines[1])
	}
	if strings.Contains(lines[2], "command=") {
		t.Errorf("line 2 = %s", lines[2])
	}
	if got := CommandFromContext(context.Background()); got != "" {
		t.Errorf("CommandFromContext(empty) = %q", got)
	}
}
