// Package cmd implements the agentos CLI.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saadnvd1/agentos/internal/apperr"
	"github.com/saadnvd1/agentos/internal/config"
)

// Exit codes: 0 success, 1 user error, 2 internal error.
const (
	exitOK       = 0
	exitUser     = 1
	exitInternal = 2
)

var stateDirFlag string

var rootCmd = &cobra.Command{
	Use:   "agentos",
	Short: "Multi-agent coding-session control plane",
	Long: `agentos runs many concurrent CLI coding agents against different
checkouts, each inside a persistent tmux session, with per-feature git
worktrees, dev-server port allocation, and a conductor/worker tool surface.

Start the server with 'agentos serve', then point the web UI (or curl) at
it. 'agentos ps' and 'agentos attach' work without the browser.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&stateDirFlag, "state-dir", "",
		"state directory (default ~/.agentos)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads configuration honoring --state-dir.
func loadConfig() (*config.Config, error) {
	return config.Load(stateDirFlag)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "agentos: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

// exitCode maps error kinds onto the CLI contract: user mistakes exit 1,
// everything else exits 2.
func exitCode(err error) int {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperr.BadRequest, apperr.NotFound, apperr.Conflict:
			return exitUser
		}
	}
	return exitInternal
}
