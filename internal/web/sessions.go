package web

import (
	"net/http"
	"strconv"

	"github.com/saadnvd1/agentos/internal/apperr"
	"github.com/saadnvd1/agentos/internal/orchestrator"
	"github.com/saadnvd1/agentos/internal/session"
	"github.com/saadnvd1/agentos/internal/store"
)

// previewTail is the default pane preview depth.
const previewTail = 20

// sessionsResponse groups sessions by project for the sidebar.
type sessionsResponse struct {
	Projects []*store.Project `json:"projects"`
	Sessions []*store.Session `json:"sessions"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	projects, err := s.Sessions.Store().ListProjects()
	if err != nil {
		writeError(w, err)
		return
	}
	sessions, err := s.Sessions.Store().ListSessions()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Projects: projects, Sessions: sessions})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var spec session.CreateSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.Sessions.Create(r.Context(), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Store().GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// patchSessionBody carries the mutable flags of PATCH /sessions/{id}.
type patchSessionBody struct {
	Name        *string `json:"name"`
	ProjectID   *string `json:"project_id"`
	AutoApprove *bool   `json:"auto_approve"`
	Model       *string `json:"model"`
}

func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body patchSessionBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	if body.Name != nil {
		if _, err := s.Sessions.Rename(r.Context(), id, *body.Name); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.ProjectID != nil {
		if _, err := s.Sessions.Move(r.Context(), id, *body.ProjectID); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.AutoApprove != nil || body.Model != nil {
		sess, err := s.Sessions.Store().GetSession(id)
		if err != nil {
			writeError(w, err)
			return
		}
		if body.AutoApprove != nil {
			sess.AutoApprove = *body.AutoApprove
		}
		if body.Model != nil {
			sess.Model = *body.Model
		}
		if err := s.Sessions.Store().UpdateSession(sess); err != nil {
			writeError(w, err)
			return
		}
	}

	sess, err := s.Sessions.Store().GetSession(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	deleteBranch := r.URL.Query().Get("delete_branch") == "true"
	err := s.Sessions.Delete(r.Context(), r.PathValue("id"),
		session.DeleteOptions{DeleteBranch: deleteBranch})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleForkSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Fork(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSessionPreview(w http.ResponseWriter, r *http.Request) {
	n := previewTail
	if v := r.URL.Query().Get("lines"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	lines, err := s.Sessions.Preview(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeError(w, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (s *Server) handleSessionStatusMap(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Sessions.Store().ListSessions()
	if err != nil {
		writeError(w, err)
		return
	}
	statuses := make(map[string]string, len(sessions))
	for _, sess := range sessions {
		statuses[sess.ID] = sess.Status
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleSessionWorktree(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.Sessions.Store().GetSession(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !sess.HasWorktree() {
		writeError(w, apperr.New(apperr.BadRequest, "session %s has no worktree", id))
		return
	}
	result := s.Sessions.Bootstrap().Result(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"worktree_path": sess.WorktreePath,
		"branch_name":   sess.BranchName,
		"base_branch":   sess.BaseBranch,
		"bootstrap":     result,
	})
}

// prBody optionally overrides the generated PR title/body.
type prBody struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *Server) handleCreatePR(w http.ResponseWriter, r *http.Request) {
	var body prBody
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
	}
	sess, err := s.Sessions.PRUpsert(r.Context(), r.PathValue("id"), body.Title, body.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetPR(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.PRStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pr_url":    sess.PRURL,
		"pr_number": sess.PRNumber,
		"pr_status": sess.PRStatus,
	})
}

func (s *Server) handleEnableConductor(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.Sessions.Store().GetSession(id); err != nil {
		writeError(w, err)
		return
	}
	path, err := orchestrator.EnableConductor(s.Sessions, s.BaseURL, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mcp_config": path})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.Sessions.Store().ListMessages(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*store.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type messageBody struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.Sessions.Store().GetSession(id); err != nil {
		writeError(w, err)
		return
	}
	var body messageBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Role == "" {
		body.Role = "user"
	}
	if err := s.Sessions.Store().AddMessage(id, body.Role, body.Content); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
