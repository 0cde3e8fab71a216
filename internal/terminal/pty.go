package terminal

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// attachPTY is a running attach command on a pseudo-terminal.
type attachPTY struct {
	f   *os.File
	cmd *exec.Cmd
}

// startAttach launches argv on a PTY sized cols×rows. The child runs with
// the multiplexer env vars stripped (see filterMuxEnv).
func startAttach(argv []string, cols, rows int) (*attachPTY, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty attach argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = filterMuxEnv(os.Environ())

	f, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		return nil, fmt.Errorf("starting pty: %w", err)
	}
	return &attachPTY{f: f, cmd: cmd}, nil
}

func (p *attachPTY) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *attachPTY) Write(b []byte) (int, error) { return p.f.Write(b) }

// Resize adjusts the PTY dimensions; the kernel delivers SIGWINCH to the
// child.
func (p *attachPTY) Resize(cols, rows int) error {
	return pty.Setsize(p.f, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Close hangs up the PTY. The attach client receives SIGHUP and exits; the
// pane it was attached to keeps running.
func (p *attachPTY) Close() error {
	err := p.f.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGHUP)
		// Reap to avoid a zombie.
		go func() { _ = p.cmd.Wait() }()
	}
	return err
}
