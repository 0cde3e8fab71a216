package session

import (
	"os"
	"path/filepath"
)

// mcpManifestPath returns where a session's MCP tool manifest lives when the
// session opts into the conductor toolset.
func (m *Manager) mcpManifestPath(sessionID string) string {
	return filepath.Join(m.cfg.MCPDir(), sessionID+".json")
}

// hasMCPManifest reports whether a manifest was written for the session.
func (m *Manager) hasMCPManifest(sessionID string) bool {
	_, err := os.Stat(m.mcpManifestPath(sessionID))
	return err == nil
}

// MCPManifestPath exposes the manifest location for the orchestrator.
func (m *Manager) MCPManifestPath(sessionID string) string {
	return m.mcpManifestPath(sessionID)
}
