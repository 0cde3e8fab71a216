// Package tmux drives the terminal multiplexer on behalf of the rest of the
// system. Every operation shells out to the tmux binary through the command
// runner; the driver holds no state of its own, pane state is recomputed
// from List.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saadnvd1/agentos/internal/execx"
)

// Common errors.
var (
	ErrNoServer        = errors.New("no tmux server running")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// shortTimeout bounds quick queries (has-session, capture-pane, list).
const shortTimeout = 5 * time.Second

// sendDebounce is the pause between a literal paste and the Enter key.
// Sending both in one command races the pane's input processing.
const sendDebounce = 100 * time.Millisecond

// Driver wraps tmux operations.
type Driver struct {
	runner *execx.Runner
}

// NewDriver creates a Driver using the given runner.
func NewDriver(runner *execx.Runner) *Driver {
	return &Driver{runner: runner}
}

// run executes a tmux command and returns trimmed stdout.
func (d *Driver) run(ctx context.Context, args ...string) (string, error) {
	res, err := d.runner.Run(ctx, execx.Cmd{
		Argv:    append([]string{"tmux"}, args...),
		Timeout: shortTimeout,
	})
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		return "", wrapError(err, stderr, args)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// wrapError maps tmux stderr text onto the driver's sentinel errors.
func wrapError(err error, stderr string, args []string) error {
	stderr = strings.TrimSpace(stderr)
	switch {
	case strings.Contains(stderr, "no server running"),
		strings.Contains(stderr, "error connecting to"):
		return ErrNoServer
	case strings.Contains(stderr, "duplicate session"):
		return ErrSessionExists
	case strings.Contains(stderr, "session not found"),
		strings.Contains(stderr, "can't find session"),
		strings.Contains(stderr, "can't find pane"):
		return ErrSessionNotFound
	}
	if stderr != "" {
		return fmt.Errorf("tmux %s: %s", args[0], stderr)
	}
	return fmt.Errorf("tmux %s: %w", args[0], err)
}

// IsAvailable reports whether the tmux binary can be invoked.
func (d *Driver) IsAvailable(ctx context.Context) bool {
	_, err := d.runner.Run(ctx, execx.Cmd{Argv: []string{"tmux", "-V"}, Timeout: shortTimeout})
	return err == nil
}

// Create creates a detached session if absent. An initialCommand, when
// non-empty, runs as the pane's initial process; starting the process this
// way avoids racing a send-keys against an unready shell.
func (d *Driver) Create(ctx context.Context, name, cwd, initialCommand string) error {
	exists, err := d.Has(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	args := []string{"new-session", "-d", "-s", name}
	if cwd != "" {
		args = append(args, "-c", cwd)
	}
	if initialCommand != "" {
		args = append(args, initialCommand)
	}
	_, err = d.run(ctx, args...)
	if errors.Is(err, ErrSessionExists) {
		return nil
	}
	return err
}

// Has reports whether a session exists. The "=" prefix forces exact
// matching so "claude-a" never matches a check for "claude-a1".
func (d *Driver) Has(ctx context.Context, name string) (bool, error) {
	_, err := d.run(ctx, "has-session", "-t", "="+name)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AttachCommand returns the argv the terminal gateway runs inside a PTY to
// attach to the named pane, creating the pane first if needed.
func (d *Driver) AttachCommand(ctx context.Context, name, cwd string) ([]string, error) {
	if err := d.Create(ctx, name, cwd, ""); err != nil {
		return nil, err
	}
	return []string{"tmux", "attach-session", "-t", "=" + name}, nil
}

// Detach sends the protocol detach keystroke (prefix + d) to the pane.
func (d *Driver) Detach(ctx context.Context, name string) error {
	_, err := d.run(ctx, "send-keys", "-t", "="+name, "C-b", "d")
	return err
}

// SendKeys writes bytes to the pane without interpretation and without a
// trailing Enter.
func (d *Driver) SendKeys(ctx context.Context, name, keys string) error {
	_, err := d.run(ctx, "send-keys", "-t", "="+name, "-l", keys)
	return err
}

// SendCommand sends a line followed by Enter. The Enter goes as a separate
// send-keys after a short debounce; pasting text and newline together makes
// agent CLIs treat the newline as input, not submission.
func (d *Driver) SendCommand(ctx context.Context, name, line string) error {
	if err := d.SendKeys(ctx, name, line); err != nil {
		return err
	}
	time.Sleep(sendDebounce)
	_, err := d.run(ctx, "send-keys", "-t", "="+name, "Enter")
	return err
}

// Capture returns the last n lines of the pane. A missing pane yields an
// empty slice, not an error.
func (d *Driver) Capture(ctx context.Context, name string, n int) ([]string, error) {
	out, err := d.run(ctx, "capture-pane", "-p", "-t", "="+name, "-S", fmt.Sprintf("-%d", n))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	lines := strings.Split(out, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Rename renames a session. Fails with ErrSessionExists when the target
// name is taken.
func (d *Driver) Rename(ctx context.Context, oldName, newName string) error {
	exists, err := d.Has(ctx, newName)
	if err != nil {
		return err
	}
	if exists {
		return ErrSessionExists
	}
	_, err = d.run(ctx, "rename-session", "-t", "="+oldName, newName)
	return err
}

// PaneInfo is one entry from List.
type PaneInfo struct {
	Name     string
	LastLine string
}

// List enumerates session names with the last line of each pane.
func (d *Driver) List(ctx context.Context) ([]PaneInfo, error) {
	out, err := d.run(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		if errors.Is(err, ErrNoServer) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var infos []PaneInfo
	for _, name := range strings.Split(out, "\n") {
		if name == "" {
			continue
		}
		info := PaneInfo{Name: name}
		if lines, err := d.Capture(ctx, name, 1); err == nil && len(lines) > 0 {
			info.LastLine = lines[len(lines)-1]
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Kill terminates a session. Killing an absent session is a no-op.
func (d *Driver) Kill(ctx context.Context, name string) error {
	_, err := d.run(ctx, "kill-session", "-t", "="+name)
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
		return nil
	}
	return err
}

// PaneCommand returns the command currently running in the pane's first
// process slot ("bash", "node", "claude", ...).
func (d *Driver) PaneCommand(ctx context.Context, name string) (string, error) {
	out, err := d.run(ctx, "list-panes", "-t", "="+name, "-F", "#{pane_current_command}")
	if err != nil {
		return "", err
	}
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}
	return strings.TrimSpace(out), nil
}
