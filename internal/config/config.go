// Package config loads the AgentOS configuration and resolves state-dir
// paths. Configuration lives in <state>/config.toml; every field has a
// default so a missing file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultStateDirName is the directory under $HOME holding all durable state.
const DefaultStateDirName = ".agentos"

// Config is the parsed configuration for the core.
type Config struct {
	// StateDir is the root for store.db, worktrees/, mcp/, and agentos.lock.
	// Defaults to ~/.agentos.
	StateDir string `toml:"state_dir"`

	// ListenAddr is the HTTP listen address for agentos serve.
	ListenAddr string `toml:"listen_addr"`

	Ports    PortsConfig    `toml:"ports"`
	Worktree WorktreeConfig `toml:"worktree"`
	Mux      MuxConfig      `toml:"mux"`
	Agents   AgentsConfig   `toml:"agents"`
}

// PortsConfig bounds the dev-server port range.
type PortsConfig struct {
	Min int `toml:"min"`
	Max int `toml:"max"`
}

// WorktreeConfig controls worktree creation and environment bootstrap.
type WorktreeConfig struct {
	// EnvFileGlobs are the .env file patterns copied from the source
	// working directory into a fresh worktree.
	EnvFileGlobs []string `toml:"env_file_globs"`

	// SetupSteps are commands run inside a fresh worktree after the
	// env files are copied. Each step is an argv list.
	SetupSteps [][]string `toml:"setup_steps"`
}

// MuxConfig holds the status-classification pattern table. Patterns are
// matched against the trailing lines of a pane; first hit wins in the
// order waiting, error, running, idle.
type MuxConfig struct {
	WaitingPatterns []string `toml:"waiting_patterns"`
	ErrorPatterns   []string `toml:"error_patterns"`
	RunningPatterns []string `toml:"running_patterns"`
	IdlePatterns    []string `toml:"idle_patterns"`

	// SessionIDPattern extracts an upstream agent session handle from
	// pane output. The first capture group is the handle.
	SessionIDPattern string `toml:"session_id_pattern"`
}

// AgentsConfig names the recognized agent types and their launchers.
type AgentsConfig struct {
	// Types maps agent type name to its command builder settings.
	Types map[string]AgentType `toml:"types"`
}

// AgentType describes how to launch one vendor CLI.
type AgentType struct {
	// Command is the executable name.
	Command string `toml:"command"`
	// ModelFlag is the flag that selects a model, e.g. "--model".
	ModelFlag string `toml:"model_flag"`
	// ResumeFlag resumes a prior upstream session by handle.
	ResumeFlag string `toml:"resume_flag"`
	// AutoApproveFlags are appended when a session has auto_approve set.
	AutoApproveFlags []string `toml:"auto_approve_flags"`
	// SystemPromptFlag injects a system prompt, empty if unsupported.
	SystemPromptFlag string `toml:"system_prompt_flag"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StateDir:   filepath.Join(homeDir(), DefaultStateDirName),
		ListenAddr: "127.0.0.1:4040",
		Ports:      PortsConfig{Min: 3100, Max: 3999},
		Worktree: WorktreeConfig{
			EnvFileGlobs: []string{".env", ".env.*"},
		},
		Mux: MuxConfig{
			WaitingPatterns: []string{
				`\[y/N\]`,
				`\[Y/n\]`,
				`(?i)do you want to`,
				`(?i)permission`,
				`❯ 1\.`,
			},
			ErrorPatterns: []string{
				`Traceback \(most recent call last\)`,
				`(?i)^panic:`,
				`(?i)fatal error:`,
			},
			RunningPatterns: []string{
				`[⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏]`,
				`(?i)esc to interrupt`,
				`(?i)\.\.\.$`,
			},
			IdlePatterns: []string{
				`^[$%>#] ?$`,
				`^❯ ?$`,
			},
			SessionIDPattern: `(?i)session[ -_:]*id[^0-9a-f]*([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`,
		},
		Agents: AgentsConfig{
			Types: map[string]AgentType{
				"claude": {
					Command:          "claude",
					ModelFlag:        "--model",
					ResumeFlag:       "--resume",
					AutoApproveFlags: []string{"--dangerously-skip-permissions"},
					SystemPromptFlag: "--append-system-prompt",
				},
				"codex": {
					Command:   "codex",
					ModelFlag: "--model",
				},
				"gemini": {
					Command:   "gemini",
					ModelFlag: "--model",
				},
				"opencode": {
					Command:   "opencode",
					ModelFlag: "--model",
				},
			},
		},
	}
}

// Load reads <stateDir>/config.toml over the defaults. A missing file
// returns the defaults; a malformed file is an error.
func Load(stateDir string) (*Config, error) {
	cfg := Default()
	if stateDir != "" {
		cfg.StateDir = ExpandHome(stateDir)
	}

	path := filepath.Join(cfg.StateDir, "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.StateDir = ExpandHome(cfg.StateDir)
	return cfg, nil
}

// IsValidAgentType reports whether name is a recognized agent type.
func (c *Config) IsValidAgentType(name string) bool {
	_, ok := c.Agents.Types[name]
	return ok
}

// AgentTypeNames returns the recognized agent type names.
func (c *Config) AgentTypeNames() []string {
	names := make([]string, 0, len(c.Agents.Types))
	for name := range c.Agents.Types {
		names = append(names, name)
	}
	return names
}

// StorePath returns the sqlite database path.
func (c *Config) StorePath() string {
	return filepath.Join(c.StateDir, "store.db")
}

// WorktreesRoot returns the directory under which worktrees are created.
func (c *Config) WorktreesRoot() string {
	return filepath.Join(c.StateDir, "worktrees")
}

// MCPDir returns the directory holding per-session MCP tool manifests.
func (c *Config) MCPDir() string {
	return filepath.Join(c.StateDir, "mcp")
}

// LockPath returns the single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.StateDir, "agentos.lock")
}

// EnsureStateDirs creates the state directory tree.
func (c *Config) EnsureStateDirs() error {
	for _, dir := range []string{c.StateDir, c.WorktreesRoot(), c.MCPDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// ExpandHome expands a leading ~/ (or a bare ~) to the user's home directory.
// Returns the path unchanged if it starts with neither or if the home
// directory cannot be determined.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
