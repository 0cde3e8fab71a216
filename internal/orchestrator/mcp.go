package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/saadnvd1/agentos/internal/config"
	"github.com/saadnvd1/agentos/internal/session"
)

// mcpManifest is the tool-manifest shape the agent CLI consumes via
// --mcp-config. The agentos binary itself serves the tools over stdio when
// invoked with the mcp-serve subcommand.
type mcpManifest struct {
	MCPServers map[string]mcpServer `json:"mcpServers"`
}

type mcpServer struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

// EnableConductor writes the per-session MCP manifest that exposes the
// orchestrator toolset to the named session, and returns the manifest path.
// The session's next pane launch picks it up.
func EnableConductor(sessions *session.Manager, serverURL, sessionID string) (string, error) {
	path := sessions.MCPManifestPath(sessionID)

	exe, err := os.Executable()
	if err != nil {
		exe = "agentos"
	}
	manifest := mcpManifest{
		MCPServers: map[string]mcpServer{
			"agentos": {
				Command: exe,
				Args:    []string{"mcp-serve"},
				Env: map[string]string{
					config.EnvServerURL:   serverURL,
					config.EnvConductorID: sessionID,
				},
			},
		},
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding MCP manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing MCP manifest: %w", err)
	}
	return path, nil
}

// DisableConductor removes a session's MCP manifest if present.
func DisableConductor(sessions *session.Manager, sessionID string) error {
	err := os.Remove(sessions.MCPManifestPath(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
