package session

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/saadnvd1/agentos/internal/apperr"
	"github.com/saadnvd1/agentos/internal/config"
	"github.com/saadnvd1/agentos/internal/execx"
	"github.com/saadnvd1/agentos/internal/ports"
	"github.com/saadnvd1/agentos/internal/store"
	"github.com/saadnvd1/agentos/internal/tmux"
	"github.com/saadnvd1/agentos/internal/worktree"
)

// newTestManager wires a Manager over a temp store. Worktree-less code
// paths never run git, and the best-effort pane kill on delete only logs a
// tmux failure, so the external binaries are not needed.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StateDir = dir
	if err := cfg.EnsureStateDirs(); err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(filepath.Join(dir, "store.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	runner := execx.NewRunner()
	return NewManager(cfg, st,
		tmux.NewDriver(runner),
		worktree.NewManager(runner, cfg.WorktreesRoot()),
		worktree.NewBootstrapper(runner, nil, nil),
		ports.NewAllocator(st, cfg.Ports.Min, cfg.Ports.Max),
		runner)
}

func TestCreateDefaults(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.Create(context.Background(), CreateSpec{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Name != "Session 1" {
		t.Errorf("Name = %q, want Session 1", sess.Name)
	}
	if sess.ProjectID != store.UncategorizedProjectID {
		t.Errorf("ProjectID = %q, want uncategorized", sess.ProjectID)
	}
	if sess.Model != "sonnet" || sess.AgentType != "claude" {
		t.Errorf("defaults = %s/%s, want claude/sonnet", sess.AgentType, sess.Model)
	}
	if want := TmuxName("claude", sess.ID); sess.TmuxName != want {
		t.Errorf("TmuxName = %q, want %q", sess.TmuxName, want)
	}
}

func TestCreateNumbersSessions(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.Create(ctx, CreateSpec{}); err != nil {
		t.Fatal(err)
	}
	second, err := m.Create(ctx, CreateSpec{})
	if err != nil {
		t.Fatal(err)
	}
	if second.Name != "Session 2" {
		t.Errorf("second Name = %q, want Session 2", second.Name)
	}
}

func TestCreateUsesFeatureNameWhenBlank(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.Create(context.Background(), CreateSpec{FeatureName: "dark-mode"})
	if err != nil {
		t.Fatal(err)
	}
	if sess.Name != "dark-mode" {
		t.Errorf("Name = %q, want dark-mode", sess.Name)
	}
}

func TestCreateRejectsUnknownAgentType(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(context.Background(), CreateSpec{AgentType: "netscape"})
	if !apperr.IsKind(err, apperr.BadRequest) {
		t.Fatalf("err = %v, want BadRequest", err)
	}
}

func TestCreateWithoutMux(t *testing.T) {
	m := newTestManager(t)
	useMux := false
	sess, err := m.Create(context.Background(), CreateSpec{UseMux: &useMux})
	if err != nil {
		t.Fatal(err)
	}
	if sess.TmuxName != "" {
		t.Errorf("TmuxName = %q, want empty when mux disabled", sess.TmuxName)
	}
}

func TestForkCopiesTranscriptAndClearsHandle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	parent, err := m.Create(ctx, CreateSpec{Name: "parent", ClaudeSessionID: "handle-1"})
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range []string{"one", "two", "three"} {
		if err := m.Store().AddMessage(parent.ID, "user", msg); err != nil {
			t.Fatal(err)
		}
	}

	child, err := m.Fork(ctx, parent.ID)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if child.ParentSessionID != parent.ID {
		t.Errorf("ParentSessionID = %q, want %q", child.ParentSessionID, parent.ID)
	}
	if child.ProjectID != parent.ProjectID {
		t.Errorf("ProjectID = %q, want parent's %q", child.ProjectID, parent.ProjectID)
	}
	if child.ClaudeSessionID != "" {
		t.Errorf("ClaudeSessionID = %q, want cleared", child.ClaudeSessionID)
	}
	if child.TmuxName == parent.TmuxName {
		t.Error("fork must get a fresh pane name")
	}
	msgs, err := m.Store().ListMessages(child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Errorf("fork transcript = %d messages, want 3", len(msgs))
	}
}

func TestRenameIdempotentAndConflict(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	x, err := m.Create(ctx, CreateSpec{Name: "Alpha"})
	if err != nil {
		t.Fatal(err)
	}
	y, err := m.Create(ctx, CreateSpec{Name: "Beta"})
	if err != nil {
		t.Fatal(err)
	}

	// Renaming to the current name is a no-op.
	got, err := m.Rename(ctx, x.ID, "Alpha")
	if err != nil || got.Name != "Alpha" {
		t.Fatalf("idempotent rename = (%v, %v)", got, err)
	}

	// Renaming onto a taken name conflicts and changes nothing.
	if _, err := m.Rename(ctx, y.ID, "Alpha"); !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("rename conflict err = %v, want Conflict", err)
	}
	after, _ := m.Store().GetSession(y.ID)
	if after.Name != "Beta" {
		t.Errorf("Y name = %q, want Beta", after.Name)
	}
}

func TestMoveValidatesProject(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	sess, err := m.Create(ctx, CreateSpec{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Move(ctx, sess.ID, "nope"); !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("Move to unknown project = %v, want NotFound", err)
	}

	p, err := m.Store().CreateProject(&store.Project{Name: "web"})
	if err != nil {
		t.Fatal(err)
	}
	moved, err := m.Move(ctx, sess.ID, p.ID)
	if err != nil || moved.ProjectID != p.ID {
		t.Fatalf("Move = (%v, %v)", moved, err)
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	sess, err := m.Create(ctx, CreateSpec{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, sess.ID, DeleteOptions{}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Store().GetSession(sess.ID); !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("GetSession after delete = %v, want NotFound", err)
	}
}

func TestTmuxNameShape(t *testing.T) {
	got := TmuxName("claude", "abc-123")
	if got != "claude-abc-123" {
		t.Errorf("TmuxName = %q", got)
	}
}

func TestPRTitleFromBranch(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"feature/add-dark-mode", "Add dark mode"},
		{"feature/x", "X"},
		{"weird", "Weird"},
	}
	for _, tt := range tests {
		if got := prTitleFromBranch(tt.in); got != tt.want {
			t.Errorf("prTitleFromBranch(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProjectKeyStable(t *testing.T) {
	if !strings.HasPrefix(ProjectKey("abc"), "project:") {
		t.Error("project keys carry the project: prefix")
	}
}
