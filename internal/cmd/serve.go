package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/saadnvd1/agentos/internal/devserver"
	"github.com/saadnvd1/agentos/internal/execx"
	"github.com/saadnvd1/agentos/internal/gitops"
	"github.com/saadnvd1/agentos/internal/orchestrator"
	"github.com/saadnvd1/agentos/internal/ports"
	"github.com/saadnvd1/agentos/internal/session"
	"github.com/saadnvd1/agentos/internal/store"
	"github.com/saadnvd1/agentos/internal/terminal"
	"github.com/saadnvd1/agentos/internal/tmux"
	"github.com/saadnvd1/agentos/internal/web"
	"github.com/saadnvd1/agentos/internal/worktree"
)

// pollInterval is how often the status poller refreshes sessions.
const pollInterval = 3 * time.Second

var listenFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the AgentOS server",
	Long: `Run the AgentOS HTTP server.

The server owns the metadata store, the tmux sessions, worktrees, dev
servers, and the orchestrator tool surface. Only one server may run per
state directory; a second start exits with an error.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenFlag, "listen", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureStateDirs(); err != nil {
		return err
	}
	addr := cfg.ListenAddr
	if listenFlag != "" {
		addr = listenFlag
	}

	// Single instance per state dir: two servers racing one store and one
	// tmux namespace corrupt both.
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another agentos server is already running (lock %s)", cfg.LockPath())
	}
	defer lock.Unlock()

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return err
	}
	defer st.Close()

	runner := execx.NewRunner()
	mux := tmux.NewDriver(runner)
	worktrees := worktree.NewManager(runner, cfg.WorktreesRoot())
	bootstrap := worktree.NewBootstrapper(runner, cfg.Worktree.EnvFileGlobs, cfg.Worktree.SetupSteps)
	allocator := ports.NewAllocator(st, cfg.Ports.Min, cfg.Ports.Max)
	sessions := session.NewManager(cfg, st, mux, worktrees, bootstrap, allocator, runner)
	sessions.SetServerURL("http://" + addr)

	var resolver devserver.ContainerResolver
	if docker, err := devserver.NewDockerClient(); err == nil {
		resolver = docker
		defer docker.Close()
	} else {
		slog.Warn("docker unavailable, container ids will not be recorded", "err", err)
	}
	devServers := devserver.NewSupervisor(st, runner, resolver)

	srv := &web.Server{
		Sessions:   sessions,
		DevServers: devServers,
		Orch:       orchestrator.New(sessions),
		Git:        gitops.New(runner),
		Gateway:    terminal.NewGateway(sessions),
		BaseURL:    "http://" + addr,
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller := session.NewPoller(sessions, pollInterval)
	go poller.Run(ctx)

	slog.Info("agentos starting", "state_dir", cfg.StateDir, "addr", addr)
	return srv.ListenAndServe(ctx, addr)
}
