// Package orchestrator implements the conductor tool surface: spawning,
// monitoring, and terminating worker sessions on behalf of a conductor
// session. Workers are ordinary sessions owned by their conductor for
// policy; failures here surface as text in tool results, never as protocol
// faults.
package orchestrator

import (
	"context"
	"strings"

	"github.com/saadnvd1/agentos/internal/apperr"
	"github.com/saadnvd1/agentos/internal/session"
	"github.com/saadnvd1/agentos/internal/store"
)

// outputTail is the default line count for get_worker_output.
const outputTail = 50

// Orchestrator executes conductor tool calls against the session manager.
type Orchestrator struct {
	sessions *session.Manager
}

// New creates an Orchestrator.
func New(sessions *session.Manager) *Orchestrator {
	return &Orchestrator{sessions: sessions}
}

// SpawnSpec is the input to SpawnWorker.
type SpawnSpec struct {
	ConductorID      string `json:"conductor_id"`
	Task             string `json:"task"`
	WorkingDirectory string `json:"working_directory"`
	BranchName       string `json:"branch_name"`
	UseWorktree      *bool  `json:"use_worktree"`
	Model            string `json:"model"`
	AgentType        string `json:"agent_type"`
}

// WorkerInfo is the row shape returned by ListWorkers.
type WorkerInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Task       string `json:"task"`
	BranchName string `json:"branch_name,omitempty"`
}

// SpawnWorker creates a worker session for a conductor. Workers never spawn
// workers: a conductor that is itself a worker is rejected.
func (o *Orchestrator) SpawnWorker(ctx context.Context, spec SpawnSpec) (*store.Session, error) {
	if spec.ConductorID == "" {
		return nil, apperr.New(apperr.BadRequest, "conductor_id is required")
	}
	if strings.TrimSpace(spec.Task) == "" {
		return nil, apperr.New(apperr.BadRequest, "task is required")
	}
	conductor, err := o.sessions.Store().GetSession(spec.ConductorID)
	if err != nil {
		return nil, err
	}
	if conductor.IsWorker() {
		return nil, apperr.New(apperr.BadRequest,
			"session %s is a worker; workers do not spawn workers", spec.ConductorID)
	}

	useWorktree := spec.UseWorktree == nil || *spec.UseWorktree
	feature := spec.BranchName
	if feature == "" {
		feature = workerFeatureName(spec.Task)
	}
	workingDir := spec.WorkingDirectory
	if workingDir == "" {
		workingDir = conductor.WorkingDirectory
	}
	model := spec.Model
	if model == "" {
		model = "sonnet"
	}
	agentType := spec.AgentType
	if agentType == "" {
		agentType = "claude"
	}

	worker, err := o.sessions.Create(ctx, session.CreateSpec{
		Name:               feature,
		WorkingDirectory:   workingDir,
		Model:              model,
		AgentType:          agentType,
		ProjectID:          conductor.ProjectID,
		UseWorktree:        useWorktree,
		FeatureName:        feature,
		InitialPrompt:      spec.Task,
		ConductorSessionID: conductor.ID,
		WorkerTask:         spec.Task,
	})
	if err != nil {
		return nil, err
	}
	return worker, nil
}

// ListWorkers returns a conductor's workers.
func (o *Orchestrator) ListWorkers(conductorID string) ([]WorkerInfo, error) {
	workers, err := o.sessions.Store().ListWorkers(conductorID)
	if err != nil {
		return nil, err
	}
	out := make([]WorkerInfo, 0, len(workers))
	for _, w := range workers {
		out = append(out, WorkerInfo{
			ID:         w.ID,
			Name:       w.Name,
			Status:     w.WorkerStatus,
			Task:       w.WorkerTask,
			BranchName: w.BranchName,
		})
	}
	return out, nil
}

// GetWorkerOutput returns the last n lines of the worker's pane.
func (o *Orchestrator) GetWorkerOutput(ctx context.Context, workerID string, n int) ([]string, error) {
	if n <= 0 {
		n = outputTail
	}
	if _, err := o.requireWorker(workerID); err != nil {
		return nil, err
	}
	return o.sessions.Preview(ctx, workerID, n)
}

// SendToWorker delivers a message line to the worker's pane.
func (o *Orchestrator) SendToWorker(ctx context.Context, workerID, message string) error {
	if _, err := o.requireWorker(workerID); err != nil {
		return err
	}
	return o.sessions.SendPrompt(ctx, workerID, message)
}

// CompleteWorker marks a worker completed. The transition is terminal; the
// automatic dead-pane failure path no longer applies.
func (o *Orchestrator) CompleteWorker(workerID string) error {
	if _, err := o.requireWorker(workerID); err != nil {
		return err
	}
	return o.sessions.Store().SetWorkerStatus(workerID, store.WorkerCompleted)
}

// FailWorker marks a worker failed.
func (o *Orchestrator) FailWorker(workerID string) error {
	if _, err := o.requireWorker(workerID); err != nil {
		return err
	}
	return o.sessions.Store().SetWorkerStatus(workerID, store.WorkerFailed)
}

// KillWorker terminates the worker's pane and deletes its record,
// optionally removing the worktree's branch too.
func (o *Orchestrator) KillWorker(ctx context.Context, workerID string, cleanupWorktree bool) error {
	if _, err := o.requireWorker(workerID); err != nil {
		return err
	}
	return o.sessions.Delete(ctx, workerID, session.DeleteOptions{
		DeleteBranch: cleanupWorktree,
	})
}

// Summary is the per-status worker count for a conductor.
type Summary struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// GetWorkersSummary counts a conductor's workers by status.
func (o *Orchestrator) GetWorkersSummary(conductorID string) (*Summary, error) {
	workers, err := o.sessions.Store().ListWorkers(conductorID)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Total: len(workers)}
	for _, w := range workers {
		switch w.WorkerStatus {
		case store.WorkerPending:
			sum.Pending++
		case store.WorkerRunning:
			sum.Running++
		case store.WorkerCompleted:
			sum.Completed++
		case store.WorkerFailed:
			sum.Failed++
		}
	}
	return sum, nil
}

// requireWorker fetches a session and checks it actually is a worker.
func (o *Orchestrator) requireWorker(id string) (*store.Session, error) {
	sess, err := o.sessions.Store().GetSession(id)
	if err != nil {
		return nil, err
	}
	if !sess.IsWorker() {
		return nil, apperr.New(apperr.BadRequest, "session %s is not a worker", id)
	}
	return sess, nil
}

// workerFeatureName derives a short feature name from the task text.
func workerFeatureName(task string) string {
	words := strings.Fields(task)
	if len(words) > 6 {
		words = words[:6]
	}
	name := strings.Join(words, " ")
	if name == "" {
		name = "worker task"
	}
	return name
}
