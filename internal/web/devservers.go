package web

import (
	"net/http"
	"strconv"

	"github.com/saadnvd1/agentos/internal/devserver"
)

func (s *Server) handleListDevServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.DevServers.List(r.URL.Query().Get("project_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func (s *Server) handleStartDevServer(w http.ResponseWriter, r *http.Request) {
	var spec devserver.StartSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, err)
		return
	}
	inst, err := s.DevServers.Start(r.Context(), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (s *Server) handleGetDevServer(w http.ResponseWriter, r *http.Request) {
	inst, err := s.Sessions.Store().GetDevServer(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleStopDevServer(w http.ResponseWriter, r *http.Request) {
	inst, err := s.DevServers.Stop(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleRestartDevServer(w http.ResponseWriter, r *http.Request) {
	inst, err := s.DevServers.Restart(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleRemoveDevServer(w http.ResponseWriter, r *http.Request) {
	if err := s.DevServers.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDevServerLogs(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("lines"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			n = parsed
		}
	}
	lines, err := s.DevServers.Logs(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeError(w, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}
