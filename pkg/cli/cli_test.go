package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jllopis/neuralchat/pkg/chatbot"
	"github.com/jllopis/neuralchat/pkg/command"
	"github.com/jllopis/neuralchat/pkg/config"
	"github.com/jllopis/neuralchat/pkg/mcp"
	"github.com/jllopis/neuralchat/pkg/plugins/audio"
	"github.com/jllopis/neuralchat/pkg/plugins/cache"
)

type run struct {
	status int
	stdout string
	stderr string
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Device = config.DeviceCPU
	cfg.Backend = config.BackendTorch
	cfg.LLM.Provider = "mock"
	cfg.LLM.Response = "hello from the model"
	return &cfg
}

func dispatch(t *testing.T, app *App, argv ...string) run {
	t.Helper()
	tree, err := Tree(app)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	var stdout, stderr bytes.Buffer
	d := command.NewDispatcher(tree, Catalog(app), command.WithOutput(&stdout, &stderr))
	status, err := d.Execute(context.Background(), argv)
	if err != nil {
		t.Fatalf("Execute(%v): %v", argv, err)
	}
	return run{status: status, stdout: stdout.String(), stderr: stderr.String()}
}

func TestHelp(t *testing.T) {
	app := &App{Config: testConfig()}
	tests := []struct {
		name string
		argv []string
		want []string
	}{
		{"empty argv", nil, []string{"neuralchat <command> <options>", "textchat", "voicechat", "config", "cache", "mcp", "version"}},
		{"unknown command", []string{"bogus"}, []string{"Show help for neuralchat commands."}},
		{"namespace", []string{"config"}, []string{"neuralchat config <command> <options>", "validate", "show"}},
		{"namespace with unknown child", []string{"cache", "purge"}, []string{"neuralchat cache <command> <options>", "stats"}},
		{"help with path", []string{"help", "mcp"}, []string{"neuralchat mcp <command> <options>", "serve", "call"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := dispatch(t, app, tt.argv...)
			if r.status != command.StatusSuccess {
				t.Fatalf("status = %d", r.status)
			}
			for _, want := range tt.want {
				if !strings.Contains(r.stdout, want) {
					t.Errorf("help output missing %q:\n%s", want, r.stdout)
				}
			}
		})
	}
}

func TestVersion(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{"1.2.3", "Package Version:\n    1.2.3\n\n"},
		{"", "Package Version:\n    Not an official release\n\n"},
	}
	for _, tt := range tests {
		r := dispatch(t, &App{Version: tt.version}, "version")
		if r.stdout != tt.want {
			t.Errorf("version %q printed %q, want %q", tt.version, r.stdout, tt.want)
		}
	}
}

func TestTextChatPrompt(t *testing.T) {
	r := dispatch(t, &App{Config: testConfig()}, "textchat", "--prompt", "hi")
	if r.status != command.StatusSuccess {
		t.Fatalf("status = %d, stderr = %s", r.status, r.stderr)
	}
	if r.stdout != "hello from the model\n" {
		t.Errorf("stdout = %q", r.stdout)
	}

	r = dispatch(t, &App{Config: testConfig()}, "textchat", "--prompt", "hi", "--stream")
	if r.stdout != "hello from the model\n" {
		t.Errorf("streamed stdout = %q", r.stdout)
	}
}

func TestTextChatInteractive(t *testing.T) {
	app := &App{Config: testConfig(), Stdin: strings.NewReader("first\n\n/reset\nsecond\nexit\nnever read\n")}
	r := dispatch(t, app, "textchat")
	if r.status != command.StatusSuccess {
		t.Fatalf("status = %d, stderr = %s", r.status, r.stderr)
	}
	if got := strings.Count(r.stdout, "hello from the model"); got != 2 {
		t.Errorf("answers = %d, want 2:\n%s", got, r.stdout)
	}
}

func TestTextChatFailures(t *testing.T) {
	bad := testConfig()
	bad.Device = "tpu"
	r := dispatch(t, &App{Config: bad}, "textchat", "--prompt", "hi")
	if r.status != command.StatusFailure || !strings.Contains(r.stderr, "TextChatExecutor Exception") {
		t.Errorf("invalid config: status = %d, stderr = %q", r.status, r.stderr)
	}

	r = dispatch(t, &App{Config: testConfig()}, "textchat", "--bogus")
	if r.status != command.StatusFailure {
		t.Errorf("unknown flag: status = %d", r.status)
	}

	r = dispatch(t, &App{Config: testConfig()}, "textchat", "--help")
	if r.status != command.StatusSuccess || !strings.Contains(r.stderr, "--prompt") {
		t.Errorf("--help: status = %d, stderr = %q", r.status, r.stderr)
	}
}

func fakeSpeech(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/audio/transcriptions":
			_, _ = io.Copy(io.Discard, r.Body)
			_ = json.NewEncoder(w).Encode(map[string]string{"text": "what time is it"})
		case "/v1/audio/speech":
			_, _ = w.Write([]byte("wav-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVoiceChat(t *testing.T) {
	srv := fakeSpeech(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "question.wav")
	if err := os.WriteFile(input, []byte("RIFF"), 0o600); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(dir, "answer.wav")
	app := &App{
		Config:  testConfig(),
		Options: []chatbot.Option{chatbot.WithSpeechService(audio.ServiceConfig{BaseURL: srv.URL})},
	}

	t.Run("text in, text out", func(t *testing.T) {
		r := dispatch(t, app, "voicechat", "--input", "just text")
		if r.status != command.StatusSuccess || r.stdout != "hello from the model\n" {
			t.Errorf("status = %d, stdout = %q, stderr = %q", r.status, r.stdout, r.stderr)
		}
	})

	t.Run("audio in, audio out", func(t *testing.T) {
		r := dispatch(t, app, "voicechat", "--input", input, "--output", output)
		if r.status != command.StatusSuccess || r.stdout != output+"\n" {
			t.Fatalf("status = %d, stdout = %q, stderr = %q", r.status, r.stdout, r.stderr)
		}
		data, err := os.ReadFile(output)
		if err != nil || string(data) != "wav-bytes" {
			t.Errorf("output file = %q, %v", data, err)
		}
	})

	t.Run("missing input", func(t *testing.T) {
		r := dispatch(t, app, "voicechat")
		if r.status != command.StatusFailure || !strings.Contains(r.stderr, "VoiceChatExecutor Exception") {
			t.Errorf("status = %d, stderr = %q", r.status, r.stderr)
		}
	})
}

func TestConfigCommands(t *testing.T) {
	r := dispatch(t, &App{Config: testConfig()}, "config", "validate")
	if r.status != command.StatusSuccess || !strings.Contains(r.stdout, "configuration is valid") {
		t.Errorf("valid: status = %d, stdout = %q", r.status, r.stdout)
	}

	bad := testConfig()
	bad.Device = "tpu"
	bad.Retrieval = true
	r = dispatch(t, &App{Config: bad}, "config", "validate")
	if r.status != command.StatusFailure {
		t.Fatalf("invalid: status = %d", r.status)
	}
	for _, rule := range []string{config.RuleDevice, config.RuleRetrieval} {
		if !strings.Contains(r.stderr, rule) {
			t.Errorf("stderr missing rule %s:\n%s", rule, r.stderr)
		}
	}

	r = dispatch(t, &App{Config: testConfig()}, "config", "show")
	if r.status != command.StatusSuccess || !strings.Contains(r.stdout, "device: cpu") {
		t.Errorf("show: status = %d, stdout = %q", r.status, r.stdout)
	}
}

func TestCacheStats(t *testing.T) {
	t.Cleanup(func() { _ = cache.Reset() })
	_ = cache.Reset()

	cfg := testConfig()
	cfg.CacheChatConfigFile = filepath.Join(t.TempDir(), "missing.yaml")
	r := dispatch(t, &App{Config: cfg}, "cache", "stats")
	if r.status != command.StatusSuccess {
		t.Fatalf("status = %d, stderr = %s", r.status, r.stderr)
	}
	for _, want := range []string{"entries: 0", "data_manager: memory", "embedding_model: " + cache.DefaultEmbeddingModel} {
		if !strings.Contains(r.stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, r.stdout)
		}
	}
}

func TestMCPServeResolvesEveryCommand(t *testing.T) {
	app := &App{Config: testConfig(), Stdin: strings.NewReader("")}
	tree, err := Tree(app)
	if err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	d := command.NewDispatcher(tree, Catalog(app), command.WithOutput(&stdout, &stderr))

	status, err := d.Execute(context.Background(), []string{"mcp", "serve"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if status != command.StatusSuccess {
		t.Fatalf("status = %d, stderr = %s", status, stderr.String())
	}
	_ = tree.Walk(func(path string, leaf *command.Leaf) error {
		if !leaf.Resolved() {
			t.Errorf("%s not resolved by mcp serve", path)
		}
		return nil
	})
}

func TestMCPServeWatchNeedsConfig(t *testing.T) {
	app := &App{Config: testConfig(), Stdin: strings.NewReader("")}
	r := dispatch(t, app, "mcp", "serve", "--watch")
	if r.status != command.StatusFailure || !strings.Contains(r.stderr, "--watch needs --config") {
		t.Errorf("status = %d, stderr = %q", r.status, r.stderr)
	}
}

func TestRegistrationsAreResolvable(t *testing.T) {
	app := &App{}
	tree, err := Tree(app)
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.ResolveAll(Catalog(app)); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
}

func TestDirectCalls(t *testing.T) {
	app := &App{Config: testConfig()}
	got, err := app.TextChat(context.Background(), "hi")
	if err != nil || got != "hello from the model" {
		t.Errorf("TextChat = %q, %v", got, err)
	}
	got, err = app.VoiceChat(context.Background(), "hi", "")
	if err != nil || got != "hello from the model" {
		t.Errorf("VoiceChat = %q, %v", got, err)
	}
	if _, err := app.VoiceChat(context.Background(), "", ""); err == nil {
		t.Error("VoiceChat without input should fail")
	}

	bad := testConfig()
	bad.Backend = "onnx"
	if _, err := (&App{Config: bad}).TextChat(context.Background(), "hi"); err == nil {
		t.Error("TextChat with an invalid backend should fail")
	}
}

type failingChatter struct{}

func (failingChatter) Converse(context.Context, string, string) (chatbot.Reply, error) {
	return chatbot.Reply{}, errors.New("model unavailable")
}

// inProcess serves chatter in process and records the server argument mcp
// call dialed with.
func inProcess(t *testing.T, chatter mcp.Chatter, dialed *string) func(context.Context, string, ...mcp.ClientOption) (*mcp.Client, error) {
	t.Helper()
	srv := mcp.NewServer(Program, "test", chatter)
	return func(ctx context.Context, server string, opts ...mcp.ClientOption) (*mcp.Client, error) {
		*dialed = server
		return mcp.NewInProcessClient(ctx, srv, opts...)
	}
}

func TestMCPCall(t *testing.T) {
	adapter, err := chatbot.Build(context.Background(), *testConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = adapter.Close() })

	var dialed string
	app := &App{Config: testConfig(), DialMCP: inProcess(t, adapter, &dialed)}

	tests := []struct {
		name   string
		argv   []string
		status int
		stdout string
		stderr string
	}{
		{"chat", []string{"--server", "neuralchat mcp serve", "--prompt", "hi"}, command.StatusSuccess, "hello from the model\n", ""},
		{"chat with session and retries", []string{"--server", "x", "--prompt", "hi", "--session", "s1", "--retries", "0", "--timeout", "5s"}, command.StatusSuccess, "hello from the model\n", ""},
		{"list", []string{"--server", "x", "--list"}, command.StatusSuccess, "", ""},
		{"missing prompt", []string{"--server", "x"}, command.StatusFailure, "", "prompt is required"},
		{"unknown tool", []string{"--server", "x", "--tool", "nope", "--retries", "0"}, command.StatusFailure, "", "mcp call Exception"},
		{"malformed arg", []string{"--server", "x", "--arg", "novalue"}, command.StatusFailure, "", "invalid --arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := dispatch(t, app, append([]string{"mcp", "call"}, tt.argv...)...)
			if r.status != tt.status {
				t.Fatalf("status = %d, stdout = %q, stderr = %q", r.status, r.stdout, r.stderr)
			}
			if tt.stdout != "" && r.stdout != tt.stdout {
				t.Errorf("stdout = %q, want %q", r.stdout, tt.stdout)
			}
			if tt.stderr != "" && !strings.Contains(r.stderr, tt.stderr) {
				t.Errorf("stderr = %q, want %q", r.stderr, tt.stderr)
			}
		})
	}

	r := dispatch(t, app, "mcp", "call", "--server", "neuralchat mcp serve", "--list")
	if !strings.Contains(r.stdout, mcp.ToolChat+"\t") {
		t.Errorf("tool list missing chat:\n%s", r.stdout)
	}
	if dialed != "neuralchat mcp serve" {
		t.Errorf("dialed %q", dialed)
	}
}

func TestMCPCallToolError(t *testing.T) {
	var dialed string
	app := &App{Config: testConfig(), DialMCP: inProcess(t, failingChatter{}, &dialed)}
	r := dispatch(t, app, "mcp", "call", "--server", "x", "--prompt", "hi")
	if r.status != command.StatusFailure || !strings.Contains(r.stderr, "tool chat: model unavailable") {
		t.Errorf("status = %d, stderr = %q", r.status, r.stderr)
	}
}

func TestMCPCallNeedsServer(t *testing.T) {
	r := dispatch(t, &App{Config: testConfig()}, "mcp", "call", "--prompt", "hi")
	if r.status != command.StatusFailure || !strings.Contains(r.stderr, "--server is required") {
		t.Errorf("status = %d, stderr = %q", r.status, r.stderr)
	}
	if _, err := DialStdio(context.Background(), "   "); err == nil {
		t.Error("DialStdio with an empty command line should fail")
	}
}
