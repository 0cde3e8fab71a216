// Package web is the HTTP surface of the AgentOS core. Routes map onto the
// session manager, dev-server supervisor, worker orchestrator, git panel,
// and terminal gateway; the UI is just one client of this API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/saadnvd1/agentos/internal/devserver"
	"github.com/saadnvd1/agentos/internal/gitops"
	"github.com/saadnvd1/agentos/internal/orchestrator"
	"github.com/saadnvd1/agentos/internal/session"
	"github.com/saadnvd1/agentos/internal/terminal"
)

// Server bundles the component handlers behind one mux.
type Server struct {
	Sessions   *session.Manager
	DevServers *devserver.Supervisor
	Orch       *orchestrator.Orchestrator
	Git        *gitops.Git
	Gateway    *terminal.Gateway
	// BaseURL is the externally reachable address, used when writing MCP
	// manifests.
	BaseURL string
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/status", s.handleSessionStatusMap)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /sessions/{id}", s.handlePatchSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/fork", s.handleForkSession)
	mux.HandleFunc("GET /sessions/{id}/preview", s.handleSessionPreview)
	mux.HandleFunc("GET /sessions/{id}/worktree", s.handleSessionWorktree)
	mux.HandleFunc("POST /sessions/{id}/pr", s.handleCreatePR)
	mux.HandleFunc("GET /sessions/{id}/pr", s.handleGetPR)
	mux.HandleFunc("POST /sessions/{id}/conductor", s.handleEnableConductor)
	mux.HandleFunc("GET /sessions/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /sessions/{id}/messages", s.handleAddMessage)

	mux.HandleFunc("GET /projects", s.handleListProjects)
	mux.HandleFunc("POST /projects", s.handleCreateProject)
	mux.HandleFunc("GET /projects/{id}", s.handleGetProject)
	mux.HandleFunc("PATCH /projects/{id}", s.handlePatchProject)
	mux.HandleFunc("DELETE /projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("GET /projects/{id}/dev-server-templates", s.handleListTemplates)
	mux.HandleFunc("POST /projects/{id}/dev-server-templates", s.handleCreateTemplate)
	mux.HandleFunc("DELETE /dev-server-templates/{id}", s.handleDeleteTemplate)

	mux.HandleFunc("GET /dev-servers", s.handleListDevServers)
	mux.HandleFunc("POST /dev-servers", s.handleStartDevServer)
	mux.HandleFunc("GET /dev-servers/{id}", s.handleGetDevServer)
	mux.HandleFunc("DELETE /dev-servers/{id}", s.handleRemoveDevServer)
	mux.HandleFunc("POST /dev-servers/{id}/stop", s.handleStopDevServer)
	mux.HandleFunc("POST /dev-servers/{id}/restart", s.handleRestartDevServer)
	mux.HandleFunc("GET /dev-servers/{id}/logs", s.handleDevServerLogs)

	mux.HandleFunc("GET /git/status", s.handleGitStatus)
	mux.HandleFunc("POST /git/stage", s.handleGitStage)
	mux.HandleFunc("POST /git/unstage", s.handleGitUnstage)
	mux.HandleFunc("POST /git/discard", s.handleGitDiscard)

	mux.Handle("/terminal", s.Gateway)
	mux.Handle("/orchestrate/", orchestrator.NewHandler(s.Orch))

	return mux
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	slog.Info("http listening", "addr", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
