// Package session implements session lifecycle: create, fork, rename, move,
// delete, and PR tracking. It binds a session to its mux pane, optional
// worktree, and optional dev-server port while holding the uniqueness
// invariants the store enforces.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/saadnvd1/agentos/internal/apperr"
	"github.com/saadnvd1/agentos/internal/config"
	"github.com/saadnvd1/agentos/internal/execx"
	"github.com/saadnvd1/agentos/internal/ports"
	"github.com/saadnvd1/agentos/internal/store"
	"github.com/saadnvd1/agentos/internal/tmux"
	"github.com/saadnvd1/agentos/internal/worktree"
)

// Manager owns session lifecycle.
type Manager struct {
	cfg       *config.Config
	store     *store.Store
	mux       *tmux.Driver
	worktrees *worktree.Manager
	bootstrap *worktree.Bootstrapper
	allocator *ports.Allocator
	runner    *execx.Runner
	classify  *tmux.Classifier
	serverURL string
}

// NewManager wires a Manager.
func NewManager(cfg *config.Config, st *store.Store, mux *tmux.Driver,
	wt *worktree.Manager, bs *worktree.Bootstrapper,
	alloc *ports.Allocator, runner *execx.Runner) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     st,
		mux:       mux,
		worktrees: wt,
		bootstrap: bs,
		allocator: alloc,
		runner:    runner,
		classify:  tmux.NewClassifier(cfg.Mux),
		serverURL: "http://" + cfg.ListenAddr,
	}
}

// SetServerURL overrides the advertised server URL injected into pane
// environments (used when --listen overrides config).
func (m *Manager) SetServerURL(url string) { m.serverURL = url }

// Store exposes the backing store for read paths that need no policy.
func (m *Manager) Store() *store.Store { return m.store }

// Mux exposes the mux driver for the terminal gateway.
func (m *Manager) Mux() *tmux.Driver { return m.mux }

// Classifier exposes the status classifier for the poller.
func (m *Manager) Classifier() *tmux.Classifier { return m.classify }

// Bootstrap exposes the worktree bootstrapper.
func (m *Manager) Bootstrap() *worktree.Bootstrapper { return m.bootstrap }

// CreateSpec enumerates the recognized session-creation options.
type CreateSpec struct {
	Name             string `json:"name"`
	WorkingDirectory string `json:"working_directory"`
	ParentSessionID  string `json:"parent_session_id"`
	Model            string `json:"model"`
	SystemPrompt     string `json:"system_prompt"`
	AgentType        string `json:"agent_type"`
	GroupPath        string `json:"group_path"` // legacy; ignored when ProjectID is set
	ProjectID        string `json:"project_id"`
	AutoApprove      bool   `json:"auto_approve"`
	UseWorktree      bool   `json:"use_worktree"`
	FeatureName      string `json:"feature_name"`
	BaseBranch       string `json:"base_branch"`
	UseMux           *bool  `json:"use_mux"`
	ClaudeSessionID  string `json:"claude_session_id"`
	InitialPrompt    string `json:"initial_prompt"`

	// Orchestration fields set by the worker orchestrator, not the HTTP
	// surface.
	ConductorSessionID string `json:"-"`
	WorkerTask         string `json:"-"`
}

// applyDefaults fills the documented defaults in place.
func (s *CreateSpec) applyDefaults() {
	if s.WorkingDirectory == "" {
		s.WorkingDirectory = "~"
	}
	if s.Model == "" {
		s.Model = "sonnet"
	}
	if s.AgentType == "" {
		s.AgentType = "claude"
	}
	if s.BaseBranch == "" {
		s.BaseBranch = "main"
	}
	if s.ProjectID == "" {
		s.ProjectID = store.UncategorizedProjectID
	}
}

// useMux reports whether the session gets a mux pane (default true).
func (s *CreateSpec) useMux() bool {
	return s.UseMux == nil || *s.UseMux
}

// Create creates a session. Creation is serialized per project (sharing
// the runner's key lock with the git and worktree commands) so name, pane,
// port, and branch uniqueness checks do not race.
func (m *Manager) Create(ctx context.Context, spec CreateSpec) (*store.Session, error) {
	spec.applyDefaults()
	var created *store.Session
	err := m.runner.Locked(projectKey(spec.ProjectID), func() error {
		var err error
		created, err = m.create(ctx, spec)
		return err
	})
	return created, err
}

// create is the body of Create; the caller holds the project lock, so all
// worktree git commands below run keyless.
func (m *Manager) create(ctx context.Context, spec CreateSpec) (*store.Session, error) {
	if !m.cfg.IsValidAgentType(spec.AgentType) {
		return nil, apperr.New(apperr.BadRequest,
			"unknown agent type %q (valid: %s)",
			spec.AgentType, strings.Join(m.cfg.AgentTypeNames(), ", "))
	}
	project, err := m.store.GetProject(spec.ProjectID)
	if err != nil {
		return nil, err
	}

	var parent *store.Session
	if spec.ParentSessionID != "" {
		parent, err = m.store.GetSession(spec.ParentSessionID)
		if err != nil {
			return nil, err
		}
		// Forks stay in the parent's project.
		spec.ProjectID = parent.ProjectID
	}

	sess := &store.Session{
		Name:               strings.TrimSpace(spec.Name),
		WorkingDirectory:   config.ExpandHome(spec.WorkingDirectory),
		AgentType:          spec.AgentType,
		Model:              spec.Model,
		SystemPrompt:       spec.SystemPrompt,
		ProjectID:          spec.ProjectID,
		AutoApprove:        spec.AutoApprove,
		PendingPrompt:      spec.InitialPrompt,
		ClaudeSessionID:    spec.ClaudeSessionID,
		ConductorSessionID: spec.ConductorSessionID,
		WorkerTask:         spec.WorkerTask,
	}
	if spec.ConductorSessionID != "" {
		sess.WorkerStatus = store.WorkerPending
	}
	if parent != nil {
		sess.ParentSessionID = parent.ID
		sess.WorkingDirectory = parent.WorkingDirectory
		sess.AgentType = parent.AgentType
		sess.Model = parent.Model
		sess.SystemPrompt = parent.SystemPrompt
		sess.AutoApprove = parent.AutoApprove
		// A fork never inherits the upstream handle; the new agent gets
		// its own.
		sess.ClaudeSessionID = ""
	}

	if sess.Name == "" {
		sess.Name, err = m.defaultName(spec.FeatureName)
		if err != nil {
			return nil, err
		}
	}

	if spec.UseWorktree {
		feature := spec.FeatureName
		if feature == "" {
			feature = sess.Name
		}
		info, err := m.worktrees.Create(ctx, worktree.CreateOptions{
			SourceDir:  sess.WorkingDirectory,
			Feature:    feature,
			BaseBranch: spec.BaseBranch,
			// The project lock is already held; git commands run keyless.
			ProjectKey: "",
			DirPrefix:  worktree.Slugify(project.Name),
		})
		if err != nil {
			return nil, err
		}
		sess.WorktreePath = info.Path
		sess.BranchName = info.BranchName
		sess.BaseBranch = info.BaseBranch

		port, err := m.allocator.Allocate()
		if err != nil {
			m.cleanupWorktree(ctx, sess, true)
			return nil, err
		}
		sess.DevServerPort = port
	}

	created, err := m.store.CreateSession(sess)
	if err != nil {
		m.cleanupWorktree(ctx, sess, true)
		return nil, err
	}

	// The pane name derives from the fresh id; store it now so the
	// uniqueness index reserves the name before the multiplexer is
	// touched. The pane itself is created lazily on first attach.
	if spec.useMux() {
		created.TmuxName = TmuxName(created.AgentType, created.ID)
		if err := m.store.UpdateSession(created); err != nil {
			_ = m.store.DeleteSession(created.ID)
			m.cleanupWorktree(ctx, created, true)
			return nil, err
		}
	}

	if parent != nil {
		if err := m.store.CopyMessages(parent.ID, created.ID); err != nil {
			slog.Warn("copying fork transcript", "from", parent.ID, "to", created.ID, "err", err)
		}
	}

	if sess.HasWorktree() {
		m.bootstrap.Start(created.ID, sess.WorkingDirectory, sess.WorktreePath)
	}

	slog.Info("session created", "id", created.ID, "name", created.Name,
		"project", created.ProjectID, "worktree", created.WorktreePath != "")
	return created, nil
}

// defaultName generates "Session N", or uses the feature name when one was
// given without an explicit name.
func (m *Manager) defaultName(featureName string) (string, error) {
	if featureName != "" {
		return featureName, nil
	}
	n, err := m.store.NextSessionNumber()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Session %d", n), nil
}

// Fork creates a new session copying the parent's metadata and transcript.
func (m *Manager) Fork(ctx context.Context, parentID string) (*store.Session, error) {
	return m.Create(ctx, CreateSpec{ParentSessionID: parentID})
}

// Rename updates a session's display name. The pane name derives from the
// session id, so tmux_name and the mux pane are left as they are; no mux
// call is made. A name already used by another session in the same project
// returns Conflict and nothing is persisted.
func (m *Manager) Rename(ctx context.Context, id, newName string) (*store.Session, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, apperr.New(apperr.BadRequest, "name must not be blank")
	}
	sess, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess.Name == newName {
		return sess, nil // idempotent
	}

	taken, err := m.store.SessionNameInProjectExists(sess.ProjectID, newName, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.New(apperr.Conflict, "session name %q already in use", newName)
	}

	if err := m.store.RenameSessionTx(id, newName, sess.TmuxName); err != nil {
		return nil, err
	}
	return m.store.GetSession(id)
}

// Move reassigns a session to another project. No filesystem action.
func (m *Manager) Move(ctx context.Context, id, projectID string) (*store.Session, error) {
	if _, err := m.store.GetProject(projectID); err != nil {
		return nil, err
	}
	sess, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	sess.ProjectID = projectID
	if err := m.store.UpdateSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// DeleteOptions configures Delete.
type DeleteOptions struct {
	// DeleteBranch removes the feature branch along with the worktree.
	DeleteBranch bool
}

// Delete kills the pane (best effort), removes the worktree if any,
// releases the port, and drops the row. Transcripts cascade in the store.
func (m *Manager) Delete(ctx context.Context, id string, opts DeleteOptions) error {
	sess, err := m.store.GetSession(id)
	if err != nil {
		return err
	}

	if sess.TmuxName != "" {
		if err := m.mux.Kill(ctx, sess.TmuxName); err != nil {
			slog.Warn("killing pane", "pane", sess.TmuxName, "err", err)
		}
	}

	if sess.HasWorktree() {
		err := m.runner.Locked(projectKey(sess.ProjectID), func() error {
			m.cleanupWorktree(ctx, sess, opts.DeleteBranch)
			return nil
		})
		if err != nil {
			return err
		}
	}
	m.bootstrap.Forget(id)

	// Port release is implicit: dropping the row frees it.
	return m.store.DeleteSession(id)
}

// cleanupWorktree removes a session's worktree. The caller holds the
// project lock; the git commands run keyless.
func (m *Manager) cleanupWorktree(ctx context.Context, sess *store.Session, deleteBranch bool) {
	if !sess.HasWorktree() {
		return
	}
	err := m.worktrees.Remove(ctx, worktree.RemoveOptions{
		SourceDir:    sess.WorkingDirectory,
		Path:         sess.WorktreePath,
		BranchName:   sess.BranchName,
		DeleteBranch: deleteBranch,
		ProjectKey:   "",
	})
	if err != nil {
		slog.Warn("removing worktree", "path", sess.WorktreePath, "err", err)
	}
}

// Preview returns the last n lines of the session's pane.
func (m *Manager) Preview(ctx context.Context, id string, n int) ([]string, error) {
	sess, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess.TmuxName == "" {
		return nil, nil
	}
	return m.mux.Capture(ctx, sess.TmuxName, n)
}

// SendPrompt delivers a line of input to the session's pane.
func (m *Manager) SendPrompt(ctx context.Context, id, text string) error {
	sess, err := m.store.GetSession(id)
	if err != nil {
		return err
	}
	if sess.TmuxName == "" {
		return apperr.New(apperr.BadRequest, "session %s has no pane", id)
	}
	return m.mux.SendCommand(ctx, sess.TmuxName, text)
}

// LaunchCommand builds the vendor-CLI command line the pane should run for
// this session.
func (m *Manager) LaunchCommand(sess *store.Session) (string, error) {
	spec := config.LaunchSpec{
		AgentType:    sess.AgentType,
		Model:        sess.Model,
		SystemPrompt: sess.SystemPrompt,
		AutoApprove:  sess.AutoApprove,
		ResumeHandle: sess.ClaudeSessionID,
	}
	if m.hasMCPManifest(sess.ID) {
		spec.MCPConfig = m.mcpManifestPath(sess.ID)
	}
	return m.cfg.BuildAgentCommand(spec)
}

// TmuxName derives the pane identifier for a session.
func TmuxName(agentType, id string) string {
	return agentType + "-" + id
}

// projectKey is the serialization key shared by every git, worktree, and
// session-create operation under one project.
func projectKey(projectID string) string {
	return "project:" + projectID
}

// ProjectKey exposes projectKey for collaborating packages.
func ProjectKey(projectID string) string { return projectKey(projectID) }
