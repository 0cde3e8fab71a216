package web

import (
	"net/http"

	"github.com/saadnvd1/agentos/internal/store"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.Sessions.Store().ListProjects()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var p store.Project
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.Sessions.Store().CreateProject(&p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.Sessions.Store().GetProject(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type patchProjectBody struct {
	Name             *string `json:"name"`
	WorkingDirectory *string `json:"working_directory"`
	AgentType        *string `json:"agent_type"`
	DefaultModel     *string `json:"default_model"`
	Expanded         *bool   `json:"expanded"`
	SortOrder        *int    `json:"sort_order"`
}

func (s *Server) handlePatchProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.Sessions.Store().GetProject(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body patchProjectBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Name != nil {
		p.Name = *body.Name
	}
	if body.WorkingDirectory != nil {
		p.WorkingDirectory = *body.WorkingDirectory
	}
	if body.AgentType != nil {
		p.AgentType = *body.AgentType
	}
	if body.DefaultModel != nil {
		p.DefaultModel = *body.DefaultModel
	}
	if body.Expanded != nil {
		p.Expanded = *body.Expanded
	}
	if body.SortOrder != nil {
		p.SortOrder = *body.SortOrder
	}
	if err := s.Sessions.Store().UpdateProject(p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Store().DeleteProject(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.Sessions.Store().ListDevServerTemplates(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if templates == nil {
		templates = []*store.DevServerTemplate{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if _, err := s.Sessions.Store().GetProject(projectID); err != nil {
		writeError(w, err)
		return
	}
	var t store.DevServerTemplate
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, err)
		return
	}
	t.ProjectID = projectID
	created, err := s.Sessions.Store().CreateDevServerTemplate(&t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Store().DeleteDevServerTemplate(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
