package config

import (
	"fmt"
	"sort"
	"strings"
)

// Environment variables recognized across the system.
const (
	// EnvServerURL points in-agent tooling at the AgentOS server.
	EnvServerURL = "AGENTOS_URL"
	// EnvConductorID is the default conductor for orchestrator tool calls.
	EnvConductorID = "CONDUCTOR_SESSION_ID"
)

// LaunchSpec carries the per-session options a vendor CLI launch needs.
type LaunchSpec struct {
	AgentType    string
	Model        string
	SystemPrompt string
	AutoApprove  bool
	// ResumeHandle is the upstream agent session id to resume, if known.
	ResumeHandle string
	// MCPConfig is a path to an MCP tool manifest, injected for sessions
	// that opt into the conductor toolset.
	MCPConfig string
}

// BuildAgentArgv builds the argv for launching the vendor CLI described by
// spec. The returned slice is safe to pass to exec without a shell.
func (c *Config) BuildAgentArgv(spec LaunchSpec) ([]string, error) {
	at, ok := c.Agents.Types[spec.AgentType]
	if !ok {
		return nil, fmt.Errorf("unknown agent type %q", spec.AgentType)
	}

	argv := []string{at.Command}
	if spec.Model != "" && at.ModelFlag != "" {
		argv = append(argv, at.ModelFlag, spec.Model)
	}
	if spec.SystemPrompt != "" && at.SystemPromptFlag != "" {
		argv = append(argv, at.SystemPromptFlag, spec.SystemPrompt)
	}
	if spec.AutoApprove {
		argv = append(argv, at.AutoApproveFlags...)
	}
	if spec.ResumeHandle != "" && at.ResumeFlag != "" {
		argv = append(argv, at.ResumeFlag, spec.ResumeHandle)
	}
	if spec.MCPConfig != "" && spec.AgentType == "claude" {
		argv = append(argv, "--mcp-config", spec.MCPConfig)
	}
	return argv, nil
}

// BuildAgentCommand renders the launch argv as a single shell-safe command
// line. The multiplexer runs the initial pane process from a command string,
// so this is the one place argv is flattened; quoting is single-quote based.
func (c *Config) BuildAgentCommand(spec LaunchSpec) (string, error) {
	argv, err := c.BuildAgentArgv(spec)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = shellQuote(a)
	}
	return strings.Join(parts, " "), nil
}

// PrependEnv prefixes a command line with KEY=value assignments. Keys are
// emitted in sorted order so the command is deterministic.
func PrependEnv(command string, env map[string]string) string {
	if len(env) == 0 {
		return command
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, k+"="+shellQuote(env[k]))
	}
	parts = append(parts, command)
	return strings.Join(parts, " ")
}

// shellQuote single-quotes a string for POSIX shells.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'`$&|;<>()*?[]#~%{}\\") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
