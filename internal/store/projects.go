package store

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/saadnvd1/agentos/internal/apperr"
)

// Project groups sessions sharing a working directory and default agent.
type Project struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	WorkingDirectory string `json:"working_directory"`
	AgentType        string `json:"agent_type"`
	DefaultModel     string `json:"default_model"`
	Expanded         bool   `json:"expanded"`
	SortOrder        int    `json:"sort_order"`
	IsUncategorized  bool   `json:"is_uncategorized"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

const projectCols = `id, name, working_directory, agent_type, default_model,
	expanded, sort_order, is_uncategorized, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	var p Project
	var expanded, uncat int
	err := row.Scan(&p.ID, &p.Name, &p.WorkingDirectory, &p.AgentType,
		&p.DefaultModel, &expanded, &p.SortOrder, &uncat,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Expanded = expanded != 0
	p.IsUncategorized = uncat != 0
	return &p, nil
}

// CreateProject inserts a project. A blank id gets a fresh uuid.
func (s *Store) CreateProject(p *Project) (*Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.AgentType == "" {
		p.AgentType = "claude"
	}
	if p.DefaultModel == "" {
		p.DefaultModel = "sonnet"
	}
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	_, err := s.db.Exec(`INSERT INTO projects
		(id, name, working_directory, agent_type, default_model, expanded,
		 sort_order, is_uncategorized, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		p.ID, p.Name, p.WorkingDirectory, p.AgentType, p.DefaultModel,
		boolInt(p.Expanded), p.SortOrder, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "creating project")
	}
	return p, nil
}

// GetProject fetches a project by id.
func (s *Store) GetProject(id string) (*Project, error) {
	row := s.db.QueryRow(`SELECT `+projectCols+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, mapErr(err, "project "+id)
	}
	return p, nil
}

// ListProjects returns all projects ordered by sort_order then name.
func (s *Store) ListProjects() ([]*Project, error) {
	rows, err := s.db.Query(`SELECT ` + projectCols + ` FROM projects
		ORDER BY sort_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProject persists mutable project fields and bumps updated_at.
func (s *Store) UpdateProject(p *Project) error {
	res, err := s.db.Exec(`UPDATE projects SET name = ?, working_directory = ?,
		agent_type = ?, default_model = ?, expanded = ?, sort_order = ?,
		updated_at = ? WHERE id = ?`,
		p.Name, p.WorkingDirectory, p.AgentType, p.DefaultModel,
		boolInt(p.Expanded), p.SortOrder, now(), p.ID)
	if err != nil {
		return mapErr(err, "updating project")
	}
	return requireRow(res, "project "+p.ID)
}

// DeleteProject removes a project. It refuses to delete the reserved
// uncategorized project, or any project that still owns sessions or dev
// servers.
func (s *Store) DeleteProject(id string) error {
	if id == UncategorizedProjectID {
		return apperr.New(apperr.BadRequest, "the uncategorized project cannot be deleted")
	}
	return s.tx(func(tx *sql.Tx) error {
		var sessions, servers int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM sessions WHERE project_id = ?`, id).Scan(&sessions); err != nil {
			return err
		}
		if err := tx.QueryRow(`SELECT COUNT(*) FROM dev_servers WHERE project_id = ?`, id).Scan(&servers); err != nil {
			return err
		}
		if sessions > 0 || servers > 0 {
			return apperr.New(apperr.BadRequest,
				"project has %d sessions and %d dev servers; delete them first", sessions, servers)
		}
		if _, err := tx.Exec(`DELETE FROM dev_server_templates WHERE project_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.Exec(`DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return mapErr(err, "deleting project")
		}
		return requireRow(res, "project "+id)
	})
}

// requireRow converts a zero-row result into NotFound.
func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.Wrap(apperr.NotFound, ErrNotFound, "%s", what)
	}
	return nil
}

// DevServerTemplate is a named, persistent dev-server configuration.
type DevServerTemplate struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Command    string `json:"command"`
	Port       int    `json:"port,omitempty"`
	PortEnvVar string `json:"port_env_var,omitempty"`
	SortOrder  int    `json:"sort_order"`
}

// CreateDevServerTemplate inserts a template under a project.
func (s *Store) CreateDevServerTemplate(t *DevServerTemplate) (*DevServerTemplate, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	ts := now()
	var port any
	if t.Port > 0 {
		port = t.Port
	}
	_, err := s.db.Exec(`INSERT INTO dev_server_templates
		(id, project_id, name, type, command, port, port_env_var, sort_order,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Name, t.Type, t.Command, port,
		nullIfEmpty(t.PortEnvVar), t.SortOrder, ts, ts)
	if err != nil {
		return nil, mapErr(err, "creating dev server template")
	}
	return t, nil
}

// ListDevServerTemplates returns a project's templates in sort order.
func (s *Store) ListDevServerTemplates(projectID string) ([]*DevServerTemplate, error) {
	rows, err := s.db.Query(`SELECT id, project_id, name, type, command,
		port, port_env_var, sort_order
		FROM dev_server_templates WHERE project_id = ? ORDER BY sort_order, name`,
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*DevServerTemplate
	for rows.Next() {
		var t DevServerTemplate
		var port sql.NullInt64
		var env sql.NullString
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Type, &t.Command,
			&port, &env, &t.SortOrder); err != nil {
			return nil, err
		}
		t.Port = intOrZero(port)
		t.PortEnvVar = strOrEmpty(env)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// DeleteDevServerTemplate removes a template.
func (s *Store) DeleteDevServerTemplate(id string) error {
	res, err := s.db.Exec(`DELETE FROM dev_server_templates WHERE id = ?`, id)
	if err != nil {
		return mapErr(err, "deleting dev server template")
	}
	return requireRow(res, "dev server template "+id)
}
