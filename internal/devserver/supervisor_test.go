package devserver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/saadnvd1/agentos/internal/apperr"
	"github.com/saadnvd1/agentos/internal/execx"
	"github.com/saadnvd1/agentos/internal/store"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return NewSupervisor(st, execx.NewRunner(), nil), st
}

func TestStartValidation(t *testing.T) {
	s, _ := newTestSupervisor(t)
	ctx := context.Background()

	_, err := s.Start(ctx, StartSpec{ProjectID: store.UncategorizedProjectID, Type: "weird", Command: "x"})
	if !apperr.IsKind(err, apperr.BadRequest) {
		t.Errorf("unknown type = %v, want BadRequest", err)
	}
	_, err = s.Start(ctx, StartSpec{ProjectID: store.UncategorizedProjectID, Type: store.DevTypeNode})
	if !apperr.IsKind(err, apperr.BadRequest) {
		t.Errorf("missing command = %v, want BadRequest", err)
	}
	_, err = s.Start(ctx, StartSpec{ProjectID: "ghost", Type: store.DevTypeNode, Command: "true"})
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("unknown project = %v, want NotFound", err)
	}
}

func TestNodeEarlyExitFails(t *testing.T) {
	s, st := newTestSupervisor(t)
	inst, err := s.Start(context.Background(), StartSpec{
		ProjectID: store.UncategorizedProjectID,
		Type:      store.DevTypeNode,
		Name:      "doomed",
		Command:   "exit 7",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := st.GetDevServer(inst.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == store.DevFailed {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("instance never reached failed after early exit")
}

func TestNodeSurvivesGraceThenStops(t *testing.T) {
	s, st := newTestSupervisor(t)
	inst, err := s.Start(context.Background(), StartSpec{
		ProjectID: store.UncategorizedProjectID,
		Type:      store.DevTypeNode,
		Name:      "steady",
		Command:   "sleep 30",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if inst.Status != store.DevStarting {
		t.Errorf("initial status = %q, want starting", inst.Status)
	}
	if inst.PID <= 0 {
		t.Errorf("PID = %d, want recorded", inst.PID)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := st.GetDevServer(inst.ID)
		if got.Status == store.DevRunning {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	got, _ := st.GetDevServer(inst.ID)
	if got.Status != store.DevRunning {
		t.Fatalf("status = %q, want running after grace window", got.Status)
	}

	stopped, err := s.Stop(context.Background(), inst.ID)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.Status != store.DevStopped {
		t.Errorf("status after stop = %q, want stopped", stopped.Status)
	}
}

func TestRemoveDeletesRow(t *testing.T) {
	s, st := newTestSupervisor(t)
	inst, err := s.Start(context.Background(), StartSpec{
		ProjectID: store.UncategorizedProjectID,
		Type:      store.DevTypeNode,
		Name:      "temp",
		Command:   "sleep 30",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(context.Background(), inst.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := st.GetDevServer(inst.ID); !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("row should be gone, got %v", err)
	}
}

func TestSplitLines(t *testing.T) {
	lines := splitLines("a\nb\nc\n", 2)
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Errorf("splitLines = %v, want [b c]", lines)
	}
	if splitLines("", 5) != nil {
		t.Error("empty input yields nil")
	}
}
