package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/saadnvd1/agentos/internal/config"
)

// defaultServerURL is used when AGENTOS_URL is unset.
const defaultServerURL = "http://127.0.0.1:4040"

// clientTimeout bounds one tool call end to end.
const clientTimeout = 2 * time.Minute

// Client is the in-agent RPC client a conductor process uses to reach the
// orchestrator. It speaks the same /orchestrate/<tool> envelope the Handler
// serves.
type Client struct {
	baseURL     string
	conductorID string
	httpClient  *http.Client
}

// NewClientFromEnv builds a Client from AGENTOS_URL and
// CONDUCTOR_SESSION_ID. Absent variables fall back to the documented
// defaults.
func NewClientFromEnv() *Client {
	base := os.Getenv(config.EnvServerURL)
	if base == "" {
		base = defaultServerURL
	}
	return &Client{
		baseURL:     base,
		conductorID: os.Getenv(config.EnvConductorID),
		httpClient:  &http.Client{Timeout: clientTimeout},
	}
}

// ConductorID returns the default conductor id, empty if unset.
func (c *Client) ConductorID() string { return c.conductorID }

// Call invokes one tool with the given arguments, decoding the result into
// out when out is non-nil. A tool-level error string comes back as an
// error.
func (c *Client) Call(ctx context.Context, tool string, args, out any) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding %s args: %w", tool, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/orchestrate/"+tool, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", tool, err)
	}
	defer resp.Body.Close()

	var env struct {
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding %s response: %w", tool, err)
	}
	if env.Error != "" {
		return fmt.Errorf("%s: %s", tool, env.Error)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", tool, err)
		}
	}
	return nil
}

// SpawnWorker spawns a worker and returns its session id.
func (c *Client) SpawnWorker(ctx context.Context, spec SpawnSpec) (string, error) {
	if spec.ConductorID == "" {
		spec.ConductorID = c.conductorID
	}
	var out struct {
		WorkerID string `json:"worker_id"`
	}
	if err := c.Call(ctx, "spawn_worker", spec, &out); err != nil {
		return "", err
	}
	return out.WorkerID, nil
}

// ListWorkers lists the conductor's workers.
func (c *Client) ListWorkers(ctx context.Context, conductorID string) ([]WorkerInfo, error) {
	if conductorID == "" {
		conductorID = c.conductorID
	}
	var out []WorkerInfo
	err := c.Call(ctx, "list_workers", map[string]string{"conductor_id": conductorID}, &out)
	return out, err
}

// GetWorkerOutput fetches the last n pane lines from a worker.
func (c *Client) GetWorkerOutput(ctx context.Context, workerID string, lines int) ([]string, error) {
	var out struct {
		Lines []string `json:"lines"`
	}
	err := c.Call(ctx, "get_worker_output",
		map[string]any{"worker_id": workerID, "lines": lines}, &out)
	return out.Lines, err
}

// SendToWorker delivers a message to a worker's pane.
func (c *Client) SendToWorker(ctx context.Context, workerID, message string) error {
	return c.Call(ctx, "send_to_worker",
		map[string]string{"worker_id": workerID, "message": message}, nil)
}

// CompleteWorker marks a worker completed.
func (c *Client) CompleteWorker(ctx context.Context, workerID string) error {
	return c.Call(ctx, "complete_worker", map[string]string{"worker_id": workerID}, nil)
}

// FailWorker marks a worker failed.
func (c *Client) FailWorker(ctx context.Context, workerID string) error {
	return c.Call(ctx, "fail_worker", map[string]string{"worker_id": workerID}, nil)
}

// KillWorker terminates a worker and removes its worktree; cleanupWorktree
// also deletes the worktree's branch.
func (c *Client) KillWorker(ctx context.Context, workerID string, cleanupWorktree bool) error {
	return c.Call(ctx, "kill_worker",
		map[string]any{"worker_id": workerID, "cleanup_worktree": cleanupWorktree}, nil)
}

// GetWorkersSummary fetches per-status worker counts.
func (c *Client) GetWorkersSummary(ctx context.Context, conductorID string) (*Summary, error) {
	if conductorID == "" {
		conductorID = c.conductorID
	}
	var out Summary
	err := c.Call(ctx, "get_workers_summary", map[string]string{"conductor_id": conductorID}, &out)
	return &out, err
}
