package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/saadnvd1/agentos/internal/devserver"
	"github.com/saadnvd1/agentos/internal/execx"
	"github.com/saadnvd1/agentos/internal/gitops"
	"github.com/saadnvd1/agentos/internal/orchestrator"
	"github.com/saadnvd1/agentos/internal/ports"
	"github.com/saadnvd1/agentos/internal/session"
	"github.com/saadnvd1/agentos/internal/store"
	"github.com/saadnvd1/agentos/internal/terminal"
	"github.com/saadnvd1/agentos/internal/tmux"
	"github.com/saadnvd1/agentos/internal/worktree"

	"github.com/saadnvd1/agentos/internal/config"
)

func newTestServer(t *testing.T) *httptest.Server {
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
	mux := tmux.NewDriver(runner)
	sessions := session.NewManager(cfg, st, mux,
		worktree.NewManager(runner, cfg.WorktreesRoot()),
		worktree.NewBootstrapper(runner, nil, nil),
		ports.NewAllocator(st, cfg.Ports.Min, cfg.Ports.Max),
		runner)

	srv := &Server{
		Sessions:   sessions,
		DevServers: devserver.NewSupervisor(st, runner, nil),
		Orch:       orchestrator.New(sessions),
		Git:        gitops.New(runner),
		Gateway:    terminal.NewGateway(sessions),
		BaseURL:    "http://test",
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestCreateAndFetchSession(t *testing.T) {
	ts := newTestServer(t)

	resp, created := doJSON(t, http.MethodPost, ts.URL+"/sessions",
		map[string]any{"name": "Alpha"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /sessions = %d, want 201", resp.StatusCode)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("created session has no id")
	}

	resp, fetched := doJSON(t, http.MethodGet, ts.URL+"/sessions/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /sessions/{id} = %d, want 200", resp.StatusCode)
	}
	if fetched["name"] != "Alpha" {
		t.Errorf("name = %v, want Alpha", fetched["name"])
	}
}

func TestRenameCollisionKeepsNames(t *testing.T) {
	ts := newTestServer(t)

	_, x := doJSON(t, http.MethodPost, ts.URL+"/sessions", map[string]any{"name": "Alpha"})
	_, y := doJSON(t, http.MethodPost, ts.URL+"/sessions", map[string]any{"name": "Beta"})

	resp, body := doJSON(t, http.MethodPatch, ts.URL+"/sessions/"+y["id"].(string),
		map[string]any{"name": "Alpha"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("rename collision = %d, want 409", resp.StatusCode)
	}
	if body["kind"] != "conflict" {
		t.Errorf("error kind = %v, want conflict", body["kind"])
	}

	_, yAfter := doJSON(t, http.MethodGet, ts.URL+"/sessions/"+y["id"].(string), nil)
	if yAfter["name"] != "Beta" {
		t.Errorf("Y name = %v, want Beta", yAfter["name"])
	}
	_, xAfter := doJSON(t, http.MethodGet, ts.URL+"/sessions/"+x["id"].(string), nil)
	if xAfter["tmux_name"] != x["tmux_name"] {
		t.Errorf("X pane changed: %v → %v", x["tmux_name"], xAfter["tmux_name"])
	}
}

func TestForkEndpointCopiesTranscript(t *testing.T) {
	ts := newTestServer(t)

	_, a := doJSON(t, http.MethodPost, ts.URL+"/sessions", map[string]any{"name": "A"})
	aid := a["id"].(string)
	for i := 0; i < 3; i++ {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/sessions/"+aid+"/messages",
			map[string]any{"role": "user", "content": fmt.Sprintf("msg %d", i)})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("POST message = %d, want 201", resp.StatusCode)
		}
	}

	resp, b := doJSON(t, http.MethodPost, ts.URL+"/sessions/"+aid+"/fork", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("fork = %d, want 201", resp.StatusCode)
	}
	if b["parent_session_id"] != aid {
		t.Errorf("parent_session_id = %v, want %v", b["parent_session_id"], aid)
	}
	if handle, ok := b["claude_session_id"]; ok && handle != "" {
		t.Errorf("claude_session_id = %v, want empty", handle)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/sessions/"+b["id"].(string)+"/messages", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var msgs []map[string]any
	if err := json.NewDecoder(res.Body).Decode(&msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Errorf("fork transcript = %d messages, want 3", len(msgs))
	}
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t)
	_, created := doJSON(t, http.MethodPost, ts.URL+"/sessions", map[string]any{"name": "gone"})
	id := created["id"].(string)

	resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/sessions/"+id, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE = %d, want 204", resp.StatusCode)
	}
	resp, body := doJSON(t, http.MethodGet, ts.URL+"/sessions/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete = %d, want 404", resp.StatusCode)
	}
	if body["kind"] != "not_found" {
		t.Errorf("kind = %v, want not_found", body["kind"])
	}
}

func TestStatusMap(t *testing.T) {
	ts := newTestServer(t)
	_, created := doJSON(t, http.MethodPost, ts.URL+"/sessions", map[string]any{"name": "S"})

	resp, statuses := doJSON(t, http.MethodGet, ts.URL+"/sessions/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /sessions/status = %d", resp.StatusCode)
	}
	if statuses[created["id"].(string)] != "idle" {
		t.Errorf("status = %v, want idle", statuses[created["id"].(string)])
	}
}

func TestProjectLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp, p := doJSON(t, http.MethodPost, ts.URL+"/projects",
		map[string]any{"name": "web", "working_directory": "/repo"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /projects = %d", resp.StatusCode)
	}
	pid := p["id"].(string)

	// A project with a session refuses deletion.
	_, sess := doJSON(t, http.MethodPost, ts.URL+"/sessions",
		map[string]any{"name": "inside", "project_id": pid})
	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/projects/"+pid, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("DELETE non-empty project = %d, want 400", resp.StatusCode)
	}

	doJSON(t, http.MethodDelete, ts.URL+"/sessions/"+sess["id"].(string), nil)
	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/projects/"+pid, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE empty project = %d, want 204", resp.StatusCode)
	}
}

func TestOrchestrateToolErrorsAreContent(t *testing.T) {
	ts := newTestServer(t)

	// Unknown conductor: transport must stay 200, the error rides in the
	// envelope.
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/orchestrate/spawn_worker",
		map[string]any{"conductor_id": "nope", "task": "x"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("orchestrate status = %d, want 200", resp.StatusCode)
	}
	if body["error"] == "" || body["error"] == nil {
		t.Error("expected tool-level error text")
	}
}

func TestOrchestrateSpawnRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	_, cond := doJSON(t, http.MethodPost, ts.URL+"/sessions", map[string]any{"name": "cond"})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/orchestrate/spawn_worker",
		map[string]any{
			"conductor_id": cond["id"], "task": "write tests", "use_worktree": false,
		})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("spawn status = %d", resp.StatusCode)
	}
	result, _ := body["result"].(map[string]any)
	if result == nil || result["worker_id"] == "" {
		t.Fatalf("spawn result = %v, want worker_id", body)
	}

	resp, sum := doJSON(t, http.MethodPost, ts.URL+"/orchestrate/get_workers_summary",
		map[string]any{"conductor_id": cond["id"]})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary status = %d", resp.StatusCode)
	}
	sumResult, _ := sum["result"].(map[string]any)
	if sumResult["total"] != float64(1) {
		t.Errorf("summary total = %v, want 1", sumResult["total"])
	}
}
