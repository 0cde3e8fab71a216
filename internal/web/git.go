package web

import (
	"context"
	"net/http"
	"os"

	"github.com/saadnvd1/agentos/internal/apperr"
)

// gitPathsBody is the body of the git mutation endpoints.
type gitPathsBody struct {
	Path  string   `json:"path"`
	Files []string `json:"files"`
}

// checkoutPath validates the ?path= / body path argument.
func checkoutPath(raw string) (string, error) {
	if raw == "" {
		return "", apperr.New(apperr.BadRequest, "path is required")
	}
	st, err := os.Stat(raw)
	if err != nil || !st.IsDir() {
		return "", apperr.New(apperr.BadRequest, "path %s is not a directory", raw)
	}
	return raw, nil
}

func (s *Server) handleGitStatus(w http.ResponseWriter, r *http.Request) {
	dir, err := checkoutPath(r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := s.Git.Status(r.Context(), dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGitStage(w http.ResponseWriter, r *http.Request) {
	s.gitMutation(w, r, s.Git.Stage)
}

func (s *Server) handleGitUnstage(w http.ResponseWriter, r *http.Request) {
	s.gitMutation(w, r, s.Git.Unstage)
}

func (s *Server) handleGitDiscard(w http.ResponseWriter, r *http.Request) {
	s.gitMutation(w, r, s.Git.Discard)
}

func (s *Server) gitMutation(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, dir string, paths []string) error) {
	var body gitPathsBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	dir, err := checkoutPath(body.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(r.Context(), dir, body.Files); err != nil {
		writeError(w, err)
		return
	}
	status, err := s.Git.Status(r.Context(), dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
