package config

import (
	"os"
	"strings"
	"testing"
)

func TestBuildAgentArgv(t *testing.T) {
	cfg := Default()

	argv, err := cfg.BuildAgentArgv(LaunchSpec{
		AgentType: "claude",
		Model:     "sonnet",
	})
	if err != nil {
		t.Fatalf("BuildAgentArgv: %v", err)
	}
	want := []string{"claude", "--model", "sonnet"}
	if len(argv) != len(want) {
		t.Fatalf("argv = %v, want %v", argv, want)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, argv[i], want[i])
		}
	}
}

func TestBuildAgentArgvUnknownType(t *testing.T) {
	cfg := Default()
	if _, err := cfg.BuildAgentArgv(LaunchSpec{AgentType: "emacs"}); err == nil {
		t.Fatal("expected error for unknown agent type")
	}
}

func TestBuildAgentCommandQuoting(t *testing.T) {
	cfg := Default()
	command, err := cfg.BuildAgentCommand(LaunchSpec{
		AgentType:    "claude",
		Model:        "sonnet",
		SystemPrompt: "you're helpful",
	})
	if err != nil {
		t.Fatalf("BuildAgentCommand: %v", err)
	}
	if !strings.Contains(command, `'you'\''re helpful'`) {
		t.Errorf("command %q does not single-quote the system prompt", command)
	}
}

func TestBuildAgentCommandAutoApprove(t *testing.T) {
	cfg := Default()
	command, err := cfg.BuildAgentCommand(LaunchSpec{
		AgentType:   "claude",
		AutoApprove: true,
	})
	if err != nil {
		t.Fatalf("BuildAgentCommand: %v", err)
	}
	if !strings.Contains(command, "--dangerously-skip-permissions") {
		t.Errorf("command %q missing auto-approve flags", command)
	}
}

func TestPrependEnv(t *testing.T) {
	got := PrependEnv("claude --model sonnet", map[string]string{
		"B_VAR": "two",
		"A_VAR": "one",
	})
	want := "A_VAR=one B_VAR=two claude --model sonnet"
	if got != want {
		t.Errorf("PrependEnv() = %q, want %q", got, want)
	}
}

func TestPrependEnvEmpty(t *testing.T) {
	got := PrependEnv("claude", nil)
	if got != "claude" {
		t.Errorf("PrependEnv() = %q, want %q", got, "claude")
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"", "''"},
		{"two words", "'two words'"},
		{"a'b", `'a'\''b'`},
		{"$HOME", "'$HOME'"},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsValidAgentType(t *testing.T) {
	cfg := Default()
	if !cfg.IsValidAgentType("claude") {
		t.Error("claude should be a valid agent type")
	}
	if cfg.IsValidAgentType("vim") {
		t.Error("vim should not be a valid agent type")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ports.Min != 3100 || cfg.Ports.Max != 3999 {
		t.Errorf("port range = %d-%d, want 3100-3999", cfg.Ports.Min, cfg.Ports.Max)
	}
	if cfg.StateDir != dir {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, dir)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir+"/config.toml", `
listen_addr = "127.0.0.1:9999"

[ports]
min = 4000
max = 4100
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Ports.Min != 4000 || cfg.Ports.Max != 4100 {
		t.Errorf("port range = %d-%d, want 4000-4100", cfg.Ports.Min, cfg.Ports.Max)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
