package worktree

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/saadnvd1/agentos/internal/execx"
)

// setupStepTimeout bounds one bootstrap step (dependency installs are slow).
const setupStepTimeout = 10 * time.Minute

// StepResult records one bootstrap step's outcome.
type StepResult struct {
	Command string `json:"command"`
	Output  string `json:"output"`
	Success bool   `json:"success"`
}

// BootstrapResult summarizes environment bootstrap for a worktree.
type BootstrapResult struct {
	EnvFilesCopied []string     `json:"env_files_copied"`
	Steps          []StepResult `json:"steps"`
	Success        bool         `json:"success"`
	Done           bool         `json:"done"`
}

// Bootstrapper runs environment bootstrap asynchronously and retains the
// result per session for the UI to fetch. A bootstrap failure never deletes
// the worktree; it is only reported.
type Bootstrapper struct {
	runner   *execx.Runner
	envGlobs []string
	steps    [][]string
	mu       sync.Mutex
	results  map[string]*BootstrapResult
	inFlight sync.WaitGroup
}

// NewBootstrapper creates a Bootstrapper with the configured env-file
// allowlist and setup steps.
func NewBootstrapper(runner *execx.Runner, envGlobs []string, steps [][]string) *Bootstrapper {
	return &Bootstrapper{
		runner:   runner,
		envGlobs: envGlobs,
		steps:    steps,
		results:  make(map[string]*BootstrapResult),
	}
}

// Start kicks off bootstrap for a session's worktree and returns
// immediately. Progress is visible through Result.
func (b *Bootstrapper) Start(sessionID, sourceDir, worktreeDir string) {
	b.mu.Lock()
	b.results[sessionID] = &BootstrapResult{}
	b.mu.Unlock()

	b.inFlight.Add(1)
	go func() {
		defer b.inFlight.Done()
		res := b.run(sourceDir, worktreeDir)
		b.mu.Lock()
		b.results[sessionID] = res
		b.mu.Unlock()
		slog.Info("worktree bootstrap finished",
			"session", sessionID, "worktree", worktreeDir, "success", res.Success)
	}()
}

// Result returns the bootstrap summary for a session, nil if bootstrap was
// never started.
func (b *Bootstrapper) Result(sessionID string) *BootstrapResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.results[sessionID]
}

// Forget drops the retained result, called when a session is deleted.
func (b *Bootstrapper) Forget(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.results, sessionID)
}

// Wait blocks until all in-flight bootstraps finish. Used in tests and
// shutdown.
func (b *Bootstrapper) Wait() { b.inFlight.Wait() }

func (b *Bootstrapper) run(sourceDir, worktreeDir string) *BootstrapResult {
	res := &BootstrapResult{Success: true, Done: true}

	res.EnvFilesCopied = b.copyEnvFiles(sourceDir, worktreeDir)

	for _, argv := range b.steps {
		if len(argv) == 0 {
			continue
		}
		step := StepResult{Command: strings.Join(argv, " ")}
		out, err := b.runner.Run(context.Background(), execx.Cmd{
			Argv: argv, Dir: worktreeDir, Timeout: setupStepTimeout,
		})
		if out != nil {
			step.Output = tail(out.Stdout+out.Stderr, 4096)
		}
		step.Success = err == nil
		if err != nil {
			step.Output += "\n" + err.Error()
			res.Success = false
		}
		res.Steps = append(res.Steps, step)
	}
	return res
}

// copyEnvFiles copies allowlisted .env files from the source working
// directory into the worktree. Files the worktree already has (checked in)
// are left alone.
func (b *Bootstrapper) copyEnvFiles(sourceDir, worktreeDir string) []string {
	var copied []string
	for _, glob := range b.envGlobs {
		matches, err := filepath.Glob(filepath.Join(sourceDir, glob))
		if err != nil {
			continue
		}
		for _, src := range matches {
			name := filepath.Base(src)
			dst := filepath.Join(worktreeDir, name)
			if _, err := os.Stat(dst); err == nil {
				continue
			}
			data, err := os.ReadFile(src)
			if err != nil {
				continue
			}
			if err := os.WriteFile(dst, data, 0o600); err != nil {
				continue
			}
			copied = append(copied, name)
		}
	}
	return copied
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
