package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/saadnvd1/agentos/internal/config"
)

// promptDelay gives the agent CLI time to finish drawing its input box
// before the pending initial prompt is pasted in.
const promptDelay = 3 * time.Second

// PrepareAttach resolves a pane name to the attach argv the terminal
// gateway should run. The pane is created lazily here, on first attach: a
// pane backing a known session starts the session's agent command in the
// right directory; an unknown pane name gets a plain shell.
func (m *Manager) PrepareAttach(ctx context.Context, paneName string) ([]string, error) {
	sess, err := m.store.GetSessionByTmuxName(paneName)
	if err != nil {
		// Not a session pane; attach (and create) as-is.
		return m.mux.AttachCommand(ctx, paneName, "")
	}

	cwd := sess.WorkingDirectory
	if sess.HasWorktree() {
		cwd = sess.WorktreePath
	}

	exists, err := m.mux.Has(ctx, paneName)
	if err != nil {
		return nil, err
	}
	if !exists {
		command, err := m.LaunchCommand(sess)
		if err != nil {
			return nil, err
		}
		env := map[string]string{
			config.EnvServerURL: m.serverURL,
		}
		if m.hasMCPManifest(sess.ID) {
			env[config.EnvConductorID] = sess.ID
		}
		command = config.PrependEnv(command, env)
		if err := m.mux.Create(ctx, paneName, cwd, command); err != nil {
			return nil, err
		}
		m.deliverPendingPrompt(sess.ID, paneName)
	}
	return m.mux.AttachCommand(ctx, paneName, cwd)
}

// deliverPendingPrompt sends the stored initial prompt into a freshly
// created pane after the agent has had a moment to come up.
func (m *Manager) deliverPendingPrompt(sessionID, paneName string) {
	prompt, err := m.store.ClearPendingPrompt(sessionID)
	if err != nil || prompt == "" {
		return
	}
	go func() {
		time.Sleep(promptDelay)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.mux.SendCommand(ctx, paneName, prompt); err != nil {
			slog.Warn("delivering initial prompt", "session", sessionID, "err", err)
		}
	}()
}
