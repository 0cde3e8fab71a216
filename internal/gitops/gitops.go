// Package gitops backs the git panel: working-tree status plus stage,
// unstage, and discard mutations against an arbitrary checkout path.
package gitops

import (
	"context"
	"strings"
	"time"

	"github.com/saadnvd1/agentos/internal/apperr"
	"github.com/saadnvd1/agentos/internal/execx"
)

// gitTimeout bounds the quick porcelain commands used here.
const gitTimeout = 10 * time.Second

// FileStatus is one entry of porcelain status.
type FileStatus struct {
	Path      string `json:"path"`
	Index     string `json:"index"`    // staged state letter
	Worktree  string `json:"worktree"` // unstaged state letter
	Staged    bool   `json:"staged"`
	Unstaged  bool   `json:"unstaged"`
	Untracked bool   `json:"untracked"`
}

// Status is the parsed working-tree state.
type Status struct {
	Branch string       `json:"branch"`
	Files  []FileStatus `json:"files"`
}

// Git runs git-panel operations through the shared runner.
type Git struct {
	runner *execx.Runner
}

// New creates a Git.
func New(runner *execx.Runner) *Git {
	return &Git{runner: runner}
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	res, err := g.runner.Run(ctx, execx.Cmd{
		Argv: append([]string{"git"}, args...),
		Dir:  dir, Timeout: gitTimeout,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.Upstream, err, "git %s", args[0])
	}
	return res.Stdout, nil
}

// Status returns branch and per-file stage state for a checkout.
func (g *Git) Status(ctx context.Context, dir string) (*Status, error) {
	out, err := g.run(ctx, dir, "status", "--porcelain", "--branch")
	if err != nil {
		return nil, err
	}
	return parseStatus(out), nil
}

// parseStatus parses `git status --porcelain --branch` output.
func parseStatus(out string) *Status {
	st := &Status{}
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "## ") {
			branch := strings.TrimPrefix(line, "## ")
			if i := strings.IndexAny(branch, ". "); i > 0 {
				branch = branch[:i]
			}
			st.Branch = branch
			continue
		}
		if len(line) < 4 {
			continue
		}
		index, worktree := line[0:1], line[1:2]
		path := line[3:]
		// Renames carry "old -> new"; the new path is the live one.
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		fs := FileStatus{
			Path:      path,
			Index:     index,
			Worktree:  worktree,
			Untracked: index == "?" && worktree == "?",
		}
		fs.Staged = !fs.Untracked && index != " "
		fs.Unstaged = fs.Untracked || worktree != " "
		st.Files = append(st.Files, fs)
	}
	return st
}

// Stage adds paths to the index; no paths stages everything.
func (g *Git) Stage(ctx context.Context, dir string, paths []string) error {
	args := []string{"add", "--"}
	if len(paths) == 0 {
		args = []string{"add", "-A"}
	} else {
		args = append(args, paths...)
	}
	_, err := g.run(ctx, dir, args...)
	return err
}

// Unstage removes paths from the index, keeping worktree content.
func (g *Git) Unstage(ctx context.Context, dir string, paths []string) error {
	args := []string{"restore", "--staged", "--"}
	if len(paths) == 0 {
		args = []string{"reset", "HEAD"}
	} else {
		args = append(args, paths...)
	}
	_, err := g.run(ctx, dir, args...)
	return err
}

// Discard throws away unstaged changes to paths. Untracked files are
// removed outright.
func (g *Git) Discard(ctx context.Context, dir string, paths []string) error {
	if len(paths) == 0 {
		return apperr.New(apperr.BadRequest, "discard requires explicit paths")
	}
	st, err := g.Status(ctx, dir)
	if err != nil {
		return err
	}
	untracked := make(map[string]bool)
	for _, f := range st.Files {
		if f.Untracked {
			untracked[f.Path] = true
		}
	}
	var tracked, clean []string
	for _, p := range paths {
		if untracked[p] {
			clean = append(clean, p)
		} else {
			tracked = append(tracked, p)
		}
	}
	if len(tracked) > 0 {
		if _, err := g.run(ctx, dir, append([]string{"checkout", "--"}, tracked...)...); err != nil {
			return err
		}
	}
	if len(clean) > 0 {
		if _, err := g.run(ctx, dir, append([]string{"clean", "-f", "--"}, clean...)...); err != nil {
			return err
		}
	}
	return nil
}
