package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Handler exposes the tool surface under /orchestrate/<tool>. Every call is
// POST with a JSON body; the response is always 200 with either a result or
// an error string — tool errors are content for the conductor, not
// transport faults.
type Handler struct {
	orch *Orchestrator
}

// NewHandler creates the RPC handler.
func NewHandler(orch *Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// toolResult is the envelope every tool call returns.
type toolResult struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	tool := strings.TrimPrefix(r.URL.Path, "/orchestrate/")
	result, err := h.dispatch(r.Context(), tool, r.Body)

	w.Header().Set("Content-Type", "application/json")
	env := toolResult{Result: result}
	if err != nil {
		// Best-effort contract: the conductor reads the error text and
		// decides retry policy.
		env = toolResult{Error: err.Error()}
		slog.Warn("orchestrate tool failed", "tool", tool, "err", err)
	}
	if encErr := json.NewEncoder(w).Encode(env); encErr != nil {
		slog.Warn("orchestrate response write failed", "tool", tool, "err", encErr)
	}
}

type workerRef struct {
	WorkerID        string `json:"worker_id"`
	Lines           int    `json:"lines"`
	Message         string `json:"message"`
	CleanupWorktree bool   `json:"cleanup_worktree"`
}

type conductorRef struct {
	ConductorID string `json:"conductor_id"`
}

func (h *Handler) dispatch(ctx context.Context, tool string, body io.Reader) (any, error) {
	dec := json.NewDecoder(body)
	switch tool {
	case "spawn_worker":
		var spec SpawnSpec
		if err := dec.Decode(&spec); err != nil {
			return nil, err
		}
		// A vanished client must not abort a spawn in flight; the work
		// completes so state stays consistent, the result just goes
		// unreported.
		worker, err := h.orch.SpawnWorker(context.WithoutCancel(ctx), spec)
		if err != nil {
			return nil, err
		}
		return map[string]string{"worker_id": worker.ID}, nil

	case "list_workers":
		var ref conductorRef
		if err := dec.Decode(&ref); err != nil {
			return nil, err
		}
		return h.orch.ListWorkers(ref.ConductorID)

	case "get_worker_output":
		var ref workerRef
		if err := dec.Decode(&ref); err != nil {
			return nil, err
		}
		lines, err := h.orch.GetWorkerOutput(ctx, ref.WorkerID, ref.Lines)
		if err != nil {
			return nil, err
		}
		return map[string]any{"lines": lines}, nil

	case "send_to_worker":
		var ref workerRef
		if err := dec.Decode(&ref); err != nil {
			return nil, err
		}
		if err := h.orch.SendToWorker(ctx, ref.WorkerID, ref.Message); err != nil {
			return nil, err
		}
		return "ok", nil

	case "complete_worker":
		var ref workerRef
		if err := dec.Decode(&ref); err != nil {
			return nil, err
		}
		if err := h.orch.CompleteWorker(ref.WorkerID); err != nil {
			return nil, err
		}
		return "ok", nil

	case "fail_worker":
		var ref workerRef
		if err := dec.Decode(&ref); err != nil {
			return nil, err
		}
		if err := h.orch.FailWorker(ref.WorkerID); err != nil {
			return nil, err
		}
		return "ok", nil

	case "kill_worker":
		var ref workerRef
		if err := dec.Decode(&ref); err != nil {
			return nil, err
		}
		if err := h.orch.KillWorker(ctx, ref.WorkerID, ref.CleanupWorktree); err != nil {
			return nil, err
		}
		return "ok", nil

	case "get_workers_summary":
		var ref conductorRef
		if err := dec.Decode(&ref); err != nil {
			return nil, err
		}
		return h.orch.GetWorkersSummary(ref.ConductorID)
	}
	return nil, errUnknownTool(tool)
}

type errUnknownTool string

func (e errUnknownTool) Error() string { return "unknown tool: " + string(e) }
