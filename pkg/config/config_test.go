package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Device != DeviceAuto {
		t.Errorf("expected default device auto, got %s", cfg.Device)
	}
	if cfg.Backend != BackendAuto {
		t.Errorf("expected default backend auto, got %s", cfg.Backend)
	}
	if cfg.ModelNameOrPath != DefaultModel {
		t.Errorf("expected default model %s, got %s", DefaultModel, cfg.ModelNameOrPath)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %s", cfg.LLM.Provider)
	}
	if cfg.Telemetry.Exporter != "none" {
		t.Errorf("expected telemetry disabled by default, got %s", cfg.Telemetry.Exporter)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neuralchat.yaml")
	content := `
device: cpu
backend: torch
audio_input: true
audio_lang: chinese
audio_input_path: ./in.wav
cache_chat: true
llm:
  provider: mock
  response: hello
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Device != "cpu" || cfg.Backend != "torch" {
		t.Errorf("unexpected device/backend %s/%s", cfg.Device, cfg.Backend)
	}
	if !cfg.AudioInput || cfg.AudioLang != "chinese" || cfg.AudioInputPath != "./in.wav" {
		t.Errorf("audio fields not loaded: %+v", cfg)
	}
	if !cfg.CacheChat {
		t.Errorf("expected cache_chat=true")
	}
	if cfg.LLM.Provider != "mock" || cfg.LLM.Response != "hello" {
		t.Errorf("unexpected llm section %+v", cfg.LLM)
	}
	if cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Errorf("expected default base url to survive partial llm section, got %s", cfg.LLM.BaseURL)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("NEURALCHAT_DEVICE", "hpu")
	t.Setenv("NEURALCHAT_SAFETY_CHECKER", "true")
	t.Setenv("NEURALCHAT_LLM__BASE_URL", "http://ollama:11434")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Device != "hpu" {
		t.Errorf("expected device from env, got %s", cfg.Device)
	}
	if !cfg.SafetyChecker {
		t.Errorf("expected safety_checker from env")
	}
	if cfg.LLM.BaseURL != "http://ollama:11434" {
		t.Errorf("expected nested key from env, got %s", cfg.LLM.BaseURL)
	}
}

func TestLoadWithProfile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(base, []byte("device: cpu\nbackend: torch\n"), 0o644); err != nil {
		t.Fatalf("write base: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.dev.yaml"), []byte("device: xpu\n"), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	tests := []struct {
		name        string
		profile     string
		wantDevice  string
		wantBackend string
	}{
		{name: "no profile", profile: "", wantDevice: "cpu", wantBackend: "torch"},
		{name: "dev profile", profile: "dev", wantDevice: "xpu", wantBackend: "torch"},
		{name: "missing profile falls back to base", profile: "staging", wantDevice: "cpu", wantBackend: "torch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"--config", base}
			if tt.profile != "" {
				args = append(args, "--profile", tt.profile)
			}
			cfg, err := LoadWithCLI(args)
			if err != nil {
				t.Fatalf("LoadWithCLI failed: %v", err)
			}
			if cfg.Device != tt.wantDevice {
				t.Errorf("device = %s, want %s", cfg.Device, tt.wantDevice)
			}
			if cfg.Backend != tt.wantBackend {
				t.Errorf("backend = %s, want %s", cfg.Backend, tt.wantBackend)
			}
		})
	}
}

func TestLoadWithCLIOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("device: cpu\nretrieval: false\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("NEURALCHAT_DEVICE", "gpu")

	cfg, err := LoadWithCLI([]string{
		"--config", path,
		"--set", "device=cuda",
		"--set=retrieval=true",
		"--set", "document_path=./docs",
		"--set", "speech.timeout_seconds=12",
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}
	if cfg.Device != "cuda" {
		t.Fatalf("expected cli override to beat env, got %s", cfg.Device)
	}
	if !cfg.Retrieval || cfg.DocumentPath != "./docs" {
		t.Fatalf("expected retrieval overrides, got %+v", cfg)
	}
	if cfg.Speech.TimeoutSeconds != 12 {
		t.Fatalf("expected speech timeout override, got %d", cfg.Speech.TimeoutSeconds)
	}
}

func TestParseCLIOverridesErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--config"},
		{"--set"},
		{"--set", "invalid"},
		{"--set", "=value"},
	} {
		if _, err := parseCLIOverrides(args); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestStripCLIOverrides(t *testing.T) {
	got := StripCLIOverrides([]string{"--prompt", "hi", "--config", "c.yaml", "--set=a=b", "--profile", "dev", "--verbose"})
	want := []string{"--prompt", "hi", "--verbose"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFileFromCLI(t *testing.T) {
	path, profile, err := FileFromCLI([]string{"textchat", "--config=c.yaml", "--profile", "dev", "--set", "device=cpu"})
	if err != nil {
		t.Fatalf("FileFromCLI: %v", err)
	}
	if path != "c.yaml" || profile != "dev" {
		t.Errorf("got (%q, %q), want (c.yaml, dev)", path, profile)
	}
	if _, _, err := FileFromCLI([]string{"--config"}); err == nil {
		t.Error("expected error for --config without a value")
	}
}
