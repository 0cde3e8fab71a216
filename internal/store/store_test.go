package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/saadnvd1/agentos/internal/apperr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsSeedUncategorized(t *testing.T) {
	s := openTestStore(t)
	p, err := s.GetProject(UncategorizedProjectID)
	if err != nil {
		t.Fatalf("GetProject(uncategorized): %v", err)
	}
	if !p.IsUncategorized {
		t.Error("uncategorized project should have is_uncategorized set")
	}
}

func TestMigrationReplayIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	first, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	// Reopen: the runner must apply nothing new.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()
	second, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(first) != len(second) {
		t.Errorf("replay changed applied set: %v vs %v", first, second)
	}
	if len(first) != len(migrations) {
		t.Errorf("applied %d migrations, want %d", len(first), len(migrations))
	}
}

func TestUncategorizedCannotBeDeleted(t *testing.T) {
	s := openTestStore(t)
	err := s.DeleteProject(UncategorizedProjectID)
	if !apperr.IsKind(err, apperr.BadRequest) {
		t.Fatalf("DeleteProject(uncategorized) = %v, want BadRequest", err)
	}
}

func TestDeleteProjectRefusesNonEmpty(t *testing.T) {
	s := openTestStore(t)
	p, err := s.CreateProject(&Project{Name: "web"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := s.CreateSession(&Session{Name: "S", ProjectID: p.ID}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.DeleteProject(p.ID); !apperr.IsKind(err, apperr.BadRequest) {
		t.Fatalf("DeleteProject = %v, want BadRequest", err)
	}
}

func TestSessionCRUD(t *testing.T) {
	s := openTestStore(t)
	sess, err := s.CreateSession(&Session{
		Name:      "Session 1",
		ProjectID: UncategorizedProjectID,
		AgentType: "claude",
		Model:     "sonnet",
		TmuxName:  "claude-abc",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID == "" || sess.CreatedAt == "" {
		t.Fatal("id and created_at must be populated")
	}

	got, err := s.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.TmuxName != "claude-abc" {
		t.Errorf("TmuxName = %q", got.TmuxName)
	}

	byPane, err := s.GetSessionByTmuxName("claude-abc")
	if err != nil || byPane.ID != sess.ID {
		t.Errorf("GetSessionByTmuxName = %v, %v", byPane, err)
	}

	if err := s.DeleteSession(sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession after delete = %v, want ErrNotFound", err)
	}
}

func TestTmuxNameUnique(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CreateSession(&Session{Name: "a", ProjectID: UncategorizedProjectID, TmuxName: "claude-x"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.CreateSession(&Session{Name: "b", ProjectID: UncategorizedProjectID, TmuxName: "claude-x"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate tmux_name err = %v, want ErrConflict", err)
	}
}

func TestBranchUniquePerWorkingDirectory(t *testing.T) {
	s := openTestStore(t)
	base := Session{
		ProjectID:        UncategorizedProjectID,
		WorkingDirectory: "/repo",
		WorktreePath:     "/wt/one",
		BranchName:       "feature/x",
		BaseBranch:       "main",
	}
	a := base
	a.Name = "a"
	if _, err := s.CreateSession(&a); err != nil {
		t.Fatalf("first create: %v", err)
	}

	b := base
	b.Name = "b"
	b.WorktreePath = "/wt/two"
	if _, err := s.CreateSession(&b); !errors.Is(err, ErrConflict) {
		t.Fatalf("same branch same dir err = %v, want ErrConflict", err)
	}

	// Same branch in a different repository is fine.
	c := base
	c.Name = "c"
	c.WorkingDirectory = "/other"
	c.WorktreePath = "/wt/three"
	if _, err := s.CreateSession(&c); err != nil {
		t.Fatalf("same branch other dir: %v", err)
	}
}

func TestPortUnique(t *testing.T) {
	s := openTestStore(t)
	a := Session{Name: "a", ProjectID: UncategorizedProjectID, DevServerPort: 3100}
	if _, err := s.CreateSession(&a); err != nil {
		t.Fatalf("first create: %v", err)
	}
	b := Session{Name: "b", ProjectID: UncategorizedProjectID, DevServerPort: 3100}
	if _, err := s.CreateSession(&b); !errors.Is(err, ErrConflict) {
		t.Fatal("duplicate port should conflict")
	}
}

func TestNextSessionNumber(t *testing.T) {
	s := openTestStore(t)
	n, err := s.NextSessionNumber()
	if err != nil || n != 1 {
		t.Fatalf("NextSessionNumber on empty store = %d, %v; want 1", n, err)
	}
	for _, name := range []string{"Session 1", "Session 7", "Session not-a-number", "Other"} {
		if _, err := s.CreateSession(&Session{Name: name, ProjectID: UncategorizedProjectID}); err != nil {
			t.Fatalf("CreateSession(%q): %v", name, err)
		}
	}
	n, err = s.NextSessionNumber()
	if err != nil || n != 8 {
		t.Fatalf("NextSessionNumber = %d, %v; want 8", n, err)
	}
}

func TestClaudeSessionIDSetOnce(t *testing.T) {
	s := openTestStore(t)
	sess, err := s.CreateSession(&Session{Name: "a", ProjectID: UncategorizedProjectID})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	wrote, err := s.SetClaudeSessionID(sess.ID, "handle-1")
	if err != nil || !wrote {
		t.Fatalf("first set = (%v, %v), want (true, nil)", wrote, err)
	}
	wrote, err = s.SetClaudeSessionID(sess.ID, "handle-2")
	if err != nil || wrote {
		t.Fatalf("second set = (%v, %v), want (false, nil)", wrote, err)
	}
	got, _ := s.GetSession(sess.ID)
	if got.ClaudeSessionID != "handle-1" {
		t.Errorf("ClaudeSessionID = %q, want handle-1", got.ClaudeSessionID)
	}

	// UpdateSession must not clobber it either.
	got.ClaudeSessionID = "handle-3"
	if err := s.UpdateSession(got); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	got, _ = s.GetSession(sess.ID)
	if got.ClaudeSessionID != "handle-1" {
		t.Errorf("ClaudeSessionID after update = %q, want handle-1", got.ClaudeSessionID)
	}
}

func TestMessagesCopyAndCascade(t *testing.T) {
	s := openTestStore(t)
	a, _ := s.CreateSession(&Session{Name: "a", ProjectID: UncategorizedProjectID})
	b, _ := s.CreateSession(&Session{Name: "b", ProjectID: UncategorizedProjectID})

	for _, content := range []string{"one", "two", "three"} {
		if err := s.AddMessage(a.ID, "user", content); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}
	if err := s.CopyMessages(a.ID, b.ID); err != nil {
		t.Fatalf("CopyMessages: %v", err)
	}
	msgs, err := s.ListMessages(b.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("copied %d messages, want 3", len(msgs))
	}
	if msgs[0].Content != "one" || msgs[2].Content != "three" {
		t.Errorf("copy order broken: %v", msgs)
	}

	if err := s.DeleteSession(b.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	msgs, _ = s.ListMessages(b.ID)
	if len(msgs) != 0 {
		t.Errorf("messages should cascade on session delete, got %d", len(msgs))
	}
}

func TestPendingPrompt(t *testing.T) {
	s := openTestStore(t)
	sess, _ := s.CreateSession(&Session{Name: "a", ProjectID: UncategorizedProjectID, PendingPrompt: "do things"})

	prompt, err := s.ClearPendingPrompt(sess.ID)
	if err != nil || prompt != "do things" {
		t.Fatalf("ClearPendingPrompt = (%q, %v)", prompt, err)
	}
	prompt, err = s.ClearPendingPrompt(sess.ID)
	if err != nil || prompt != "" {
		t.Fatalf("second ClearPendingPrompt = (%q, %v), want empty", prompt, err)
	}
}

func TestPortsInUse(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CreateSession(&Session{Name: "a", ProjectID: UncategorizedProjectID, DevServerPort: 3105}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateDevServer(&DevServer{
		ProjectID: UncategorizedProjectID, Type: DevTypeNode, Name: "web",
		Command: "npm run dev", Status: DevRunning, Ports: []int{3200, 3201},
	}); err != nil {
		t.Fatal(err)
	}
	// Stopped servers do not hold ports.
	if _, err := s.CreateDevServer(&DevServer{
		ProjectID: UncategorizedProjectID, Type: DevTypeNode, Name: "old",
		Command: "npm run dev", Status: DevStopped, Ports: []int{3300},
	}); err != nil {
		t.Fatal(err)
	}

	used, err := s.PortsInUse()
	if err != nil {
		t.Fatalf("PortsInUse: %v", err)
	}
	for _, want := range []int{3105, 3200, 3201} {
		if !used[want] {
			t.Errorf("port %d should be in use", want)
		}
	}
	if used[3300] {
		t.Error("port 3300 belongs to a stopped server and should be free")
	}
}

func TestRenameSessionTxConflict(t *testing.T) {
	s := openTestStore(t)
	x, _ := s.CreateSession(&Session{Name: "Alpha", ProjectID: UncategorizedProjectID, TmuxName: "claude-x"})
	y, _ := s.CreateSession(&Session{Name: "Beta", ProjectID: UncategorizedProjectID, TmuxName: "claude-y"})

	err := s.RenameSessionTx(y.ID, "Alpha", y.TmuxName)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("rename to taken name = %v, want ErrConflict", err)
	}
	got, _ := s.GetSession(y.ID)
	if got.Name != "Beta" {
		t.Errorf("Y name = %q, want Beta (unchanged)", got.Name)
	}
	gotX, _ := s.GetSession(x.ID)
	if gotX.TmuxName != "claude-x" {
		t.Errorf("X pane = %q, want claude-x (unchanged)", gotX.TmuxName)
	}
}

func TestWorkersQueries(t *testing.T) {
	s := openTestStore(t)
	conductor, _ := s.CreateSession(&Session{Name: "cond", ProjectID: UncategorizedProjectID})
	for i, status := range []string{WorkerPending, WorkerRunning, WorkerCompleted} {
		_, err := s.CreateSession(&Session{
			Name:               "w" + string(rune('a'+i)),
			ProjectID:          UncategorizedProjectID,
			ConductorSessionID: conductor.ID,
			WorkerTask:         "task",
			WorkerStatus:       status,
		})
		if err != nil {
			t.Fatalf("creating worker: %v", err)
		}
	}
	workers, err := s.ListWorkers(conductor.ID)
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	if len(workers) != 3 {
		t.Fatalf("ListWorkers = %d, want 3", len(workers))
	}
}
