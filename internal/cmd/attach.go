package cmd

import (
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/saadnvd1/agentos/internal/apperr"
	"github.com/saadnvd1/agentos/internal/execx"
	"github.com/saadnvd1/agentos/internal/store"
	"github.com/saadnvd1/agentos/internal/tmux"
)

var attachCmd = &cobra.Command{
	Use:   "attach <session-name-or-id>",
	Short: "Attach the current terminal to a session's pane",
	Long: `Attach the current terminal to a session's tmux pane.

The pane is created if it does not exist yet. Detach with the normal tmux
keystroke (C-b d); the agent keeps running.

Examples:
  agentos attach "Session 1"
  agentos attach 2f6c1d`,
	Args: cobra.ExactArgs(1),
	RunE: runAttach,
}

func runAttach(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := findSession(st, args[0])
	if err != nil {
		return err
	}
	if sess.TmuxName == "" {
		return apperr.New(apperr.BadRequest,
			"session %q was created without a mux pane", sess.Name)
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return apperr.New(apperr.BadRequest, "attach requires a terminal")
	}

	driver := tmux.NewDriver(execx.NewRunner())
	argv, err := driver.AttachCommand(cmd.Context(), sess.TmuxName, sess.WorkingDirectory)
	if err != nil {
		return err
	}

	// Hand the terminal to tmux directly; it manages raw mode itself.
	attach := exec.Command(argv[0], argv[1:]...)
	attach.Stdin = os.Stdin
	attach.Stdout = os.Stdout
	attach.Stderr = os.Stderr
	return attach.Run()
}

// findSession resolves an argument as a session id, then as a name.
func findSession(st *store.Store, arg string) (*store.Session, error) {
	if sess, err := st.GetSession(arg); err == nil {
		return sess, nil
	}
	sessions, err := st.ListSessions()
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if sess.Name == arg {
			return sess, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "no session named %q", arg)
}
