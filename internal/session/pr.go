package session

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/saadnvd1/agentos/internal/apperr"
	"github.com/saadnvd1/agentos/internal/execx"
	"github.com/saadnvd1/agentos/internal/store"
)

// ghTimeout bounds GitHub CLI calls.
const ghTimeout = 60 * time.Second

// prNumberPat extracts the number from a PR URL like .../pull/123.
var prNumberPat = regexp.MustCompile(`/pull/(\d+)`)

// PRUpsert creates a pull request for the session's feature branch if none
// exists, otherwise refreshes its state. The gh CLI runs inside the
// worktree so it resolves the right repository and branch.
func (m *Manager) PRUpsert(ctx context.Context, id, title, body string) (*store.Session, error) {
	sess, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if !sess.HasWorktree() {
		return nil, apperr.New(apperr.BadRequest, "session %s has no worktree to open a PR from", id)
	}

	if sess.PRURL == "" {
		if title == "" {
			title = prTitleFromBranch(sess.BranchName)
		}
		if body == "" {
			body = fmt.Sprintf("Changes from session %q.", sess.Name)
		}
		if err := m.pushBranch(ctx, sess); err != nil {
			return nil, err
		}
		url, err := m.createPR(ctx, sess, title, body)
		if err != nil {
			return nil, err
		}
		sess.PRURL = url
		sess.PRNumber = prNumberFromURL(url)
		sess.PRStatus = store.PROpen
	} else {
		status, err := m.fetchPRState(ctx, sess)
		if err != nil {
			return nil, err
		}
		sess.PRStatus = status
	}

	if err := m.store.UpdateSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// PRStatus refreshes and returns the session's PR state.
func (m *Manager) PRStatus(ctx context.Context, id string) (*store.Session, error) {
	sess, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess.PRURL == "" {
		return sess, nil
	}
	status, err := m.fetchPRState(ctx, sess)
	if err != nil {
		return nil, err
	}
	if status != sess.PRStatus {
		sess.PRStatus = status
		if err := m.store.UpdateSession(sess); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func (m *Manager) pushBranch(ctx context.Context, sess *store.Session) error {
	_, err := m.runner.Run(ctx, execx.Cmd{
		Argv: []string{"git", "push", "-u", "origin", sess.BranchName},
		Dir:  sess.WorktreePath, Key: projectKey(sess.ProjectID), Timeout: ghTimeout,
	})
	return apperr.Wrap(apperr.Upstream, err, "pushing %s", sess.BranchName)
}

func (m *Manager) createPR(ctx context.Context, sess *store.Session, title, body string) (string, error) {
	res, err := m.runner.Run(ctx, execx.Cmd{
		Argv: []string{"gh", "pr", "create",
			"--title", title, "--body", body,
			"--head", sess.BranchName, "--base", sess.BaseBranch},
		Dir: sess.WorktreePath, Timeout: ghTimeout,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.Upstream, err, "gh pr create")
	}
	// gh prints the PR URL on success.
	return strings.TrimSpace(res.Stdout), nil
}

// fetchPRState maps gh's PR state onto the tracked set.
func (m *Manager) fetchPRState(ctx context.Context, sess *store.Session) (string, error) {
	res, err := m.runner.Run(ctx, execx.Cmd{
		Argv: []string{"gh", "pr", "view", strconv.Itoa(sess.PRNumber),
			"--json", "state,mergedAt"},
		Dir: sess.WorktreePath, Timeout: ghTimeout,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.Upstream, err, "gh pr view")
	}
	var view struct {
		State    string `json:"state"`
		MergedAt string `json:"mergedAt"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &view); err != nil {
		return "", fmt.Errorf("parsing gh pr view output: %w", err)
	}
	switch strings.ToUpper(view.State) {
	case "MERGED":
		return store.PRMerged, nil
	case "CLOSED":
		return store.PRClosed, nil
	default:
		return store.PROpen, nil
	}
}

func prNumberFromURL(url string) int {
	m := prNumberPat.FindStringSubmatch(url)
	if len(m) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// prTitleFromBranch turns "feature/add-dark-mode" into "Add dark mode".
func prTitleFromBranch(branch string) string {
	s := strings.TrimPrefix(branch, "feature/")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return branch
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
