// Package worktree creates and destroys the isolated git checkouts that
// back feature sessions. All git invocations flow through the command
// runner under the owning project's serialization key, so two creates
// against the same repository never interleave.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/saadnvd1/agentos/internal/apperr"
	"github.com/saadnvd1/agentos/internal/execx"
)

// addTimeout bounds git worktree add; checking out a large base can be slow.
const addTimeout = 30 * time.Second

// listTimeout bounds list/prune/branch queries.
const listTimeout = 10 * time.Second

// Manager creates and removes worktrees under a well-known root.
type Manager struct {
	runner *execx.Runner
	root   string
}

// NewManager creates a Manager rooted at root (usually <state>/worktrees).
func NewManager(runner *execx.Runner, root string) *Manager {
	return &Manager{runner: runner, root: root}
}

// Root returns the worktrees root directory.
func (m *Manager) Root() string { return m.root }

// Info describes a created worktree.
type Info struct {
	Path       string
	BranchName string
	BaseBranch string
}

// CreateOptions configures Create.
type CreateOptions struct {
	// SourceDir is the existing git repository to branch from.
	SourceDir string
	// Feature is the human feature name the branch derives from.
	Feature string
	// BaseBranch defaults to "main".
	BaseBranch string
	// ProjectKey serializes git operations per project.
	ProjectKey string
	// DirPrefix prefixes the worktree directory name, usually the
	// project name.
	DirPrefix string
}

// Create validates the source repository, picks a free branch name and
// directory, and adds the worktree. The environment bootstrap is the
// caller's business (see Bootstrapper); Create returns as soon as the checkout
// exists.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Info, error) {
	if opts.BaseBranch == "" {
		opts.BaseBranch = "main"
	}
	if err := m.validateRepo(ctx, opts.SourceDir, opts.ProjectKey); err != nil {
		return nil, err
	}

	branch, err := m.freeBranchName(ctx, opts.SourceDir, opts.ProjectKey, opts.Feature)
	if err != nil {
		return nil, err
	}

	dir, err := m.freeWorktreeDir(opts.DirPrefix, Slugify(opts.Feature))
	if err != nil {
		return nil, err
	}

	if err := m.addWorktree(ctx, opts, dir, branch); err != nil {
		return nil, err
	}

	return &Info{Path: dir, BranchName: branch, BaseBranch: opts.BaseBranch}, nil
}

// validateRepo checks that dir is inside a git work tree.
func (m *Manager) validateRepo(ctx context.Context, dir, key string) error {
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return apperr.New(apperr.BadRequest, "working directory %s does not exist", dir)
	}
	_, err := m.runner.Run(ctx, execx.Cmd{
		Argv: []string{"git", "rev-parse", "--is-inside-work-tree"},
		Dir:  dir, Key: key, Timeout: listTimeout,
	})
	if err != nil {
		return apperr.Wrap(apperr.BadRequest, err, "%s is not a git repository", dir)
	}
	return nil
}

// freeBranchName generates a branch name from the feature, suffixing -2,
// -3, ... past existing branches.
func (m *Manager) freeBranchName(ctx context.Context, dir, key, feature string) (string, error) {
	base := BranchName(feature)
	candidate := base
	for i := 2; ; i++ {
		exists, err := m.branchExists(ctx, dir, key, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func (m *Manager) branchExists(ctx context.Context, dir, key, name string) (bool, error) {
	_, err := m.runner.Run(ctx, execx.Cmd{
		Argv: []string{"git", "rev-parse", "--verify", "--quiet", "refs/heads/" + name},
		Dir:  dir, Key: key, Timeout: listTimeout,
	})
	if err != nil {
		var ee *execx.ExitError
		if errors.As(err, &ee) {
			return false, nil
		}
		return false, fmt.Errorf("checking branch %s: %w", name, err)
	}
	return true, nil
}

// freeWorktreeDir picks <root>/<prefix>-<slug>, appending a numeric suffix
// until the directory does not exist. The directory is not created here;
// git worktree add creates it.
func (m *Manager) freeWorktreeDir(prefix, slug string) (string, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", fmt.Errorf("creating worktrees root: %w", err)
	}
	name := slug
	if prefix != "" {
		name = prefix + "-" + slug
	}
	candidate := filepath.Join(m.root, name)
	for i := 2; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
		candidate = filepath.Join(m.root, fmt.Sprintf("%s-%d", name, i))
	}
}

// addWorktree tries origin/<base>, refs/heads/<base>, then <base> as the
// source ref; the first that succeeds wins. If all fail the last error is
// surfaced verbatim.
func (m *Manager) addWorktree(ctx context.Context, opts CreateOptions, dir, branch string) error {
	refs := []string{
		"origin/" + opts.BaseBranch,
		"refs/heads/" + opts.BaseBranch,
		opts.BaseBranch,
	}
	var lastErr error
	for _, ref := range refs {
		_, err := m.runner.Run(ctx, execx.Cmd{
			Argv: []string{"git", "worktree", "add", "-b", branch, dir, ref},
			Dir:  opts.SourceDir, Key: opts.ProjectKey, Timeout: addTimeout,
		})
		if err == nil {
			return nil
		}
		lastErr = err
		// A half-created branch blocks the next attempt; clear it.
		_, _ = m.runner.Run(ctx, execx.Cmd{
			Argv: []string{"git", "branch", "-D", branch},
			Dir:  opts.SourceDir, Key: opts.ProjectKey, Timeout: listTimeout,
		})
	}
	return apperr.Wrap(apperr.BadRequest, lastErr, "adding worktree for %s", branch)
}

// RemoveOptions configures Remove.
type RemoveOptions struct {
	SourceDir    string
	Path         string
	BranchName   string
	DeleteBranch bool
	ProjectKey   string
}

// Remove deletes a worktree. git worktree remove --force is tried first;
// on failure the directory is removed from the filesystem and the worktree
// list pruned. The branch is deleted only when asked, and never for
// main/master.
func (m *Manager) Remove(ctx context.Context, opts RemoveOptions) error {
	_, err := m.runner.Run(ctx, execx.Cmd{
		Argv: []string{"git", "worktree", "remove", "--force", opts.Path},
		Dir:  opts.SourceDir, Key: opts.ProjectKey, Timeout: listTimeout,
	})
	if err != nil {
		if rmErr := os.RemoveAll(opts.Path); rmErr != nil {
			return fmt.Errorf("removing worktree %s: %w", opts.Path, rmErr)
		}
		_, _ = m.runner.Run(ctx, execx.Cmd{
			Argv: []string{"git", "worktree", "prune"},
			Dir:  opts.SourceDir, Key: opts.ProjectKey, Timeout: listTimeout,
		})
	}

	if opts.DeleteBranch && opts.BranchName != "" && !isProtectedBranch(opts.BranchName) {
		_, _ = m.runner.Run(ctx, execx.Cmd{
			Argv: []string{"git", "branch", "-D", opts.BranchName},
			Dir:  opts.SourceDir, Key: opts.ProjectKey, Timeout: listTimeout,
		})
	}
	return nil
}

func isProtectedBranch(name string) bool {
	short := strings.TrimPrefix(name, "refs/heads/")
	return short == "main" || short == "master"
}
