package store

import (
	"database/sql"

	"github.com/google/uuid"
)

// Dev-server instance statuses.
const (
	DevStopped  = "stopped"
	DevStarting = "starting"
	DevRunning  = "running"
	DevFailed   = "failed"
)

// Dev-server types.
const (
	DevTypeNode   = "node"
	DevTypeDocker = "docker"
)

// DevServer is a currently-or-recently running dev server under a project.
type DevServer struct {
	ID               string `json:"id"`
	ProjectID        string `json:"project_id"`
	Type             string `json:"type"`
	Name             string `json:"name"`
	Command          string `json:"command"`
	Status           string `json:"status"`
	PID              int    `json:"pid,omitempty"`
	ContainerID      string `json:"container_id,omitempty"`
	Ports            []int  `json:"ports"`
	WorkingDirectory string `json:"working_directory"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

const devServerCols = `id, project_id, type, name, command, status, pid,
	container_id, ports, working_directory, created_at, updated_at`

func scanDevServer(row interface{ Scan(...any) error }) (*DevServer, error) {
	var d DevServer
	var pid sql.NullInt64
	var container sql.NullString
	var ports string
	err := row.Scan(&d.ID, &d.ProjectID, &d.Type, &d.Name, &d.Command,
		&d.Status, &pid, &container, &ports, &d.WorkingDirectory,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.PID = intOrZero(pid)
	d.ContainerID = strOrEmpty(container)
	d.Ports = splitInts(ports)
	return &d, nil
}

// CreateDevServer inserts a dev-server instance row.
func (s *Store) CreateDevServer(d *DevServer) (*DevServer, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DevStopped
	}
	ts := now()
	d.CreatedAt, d.UpdatedAt = ts, ts
	var pid any
	if d.PID > 0 {
		pid = d.PID
	}
	_, err := s.db.Exec(`INSERT INTO dev_servers (`+devServerCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProjectID, d.Type, d.Name, d.Command, d.Status, pid,
		nullIfEmpty(d.ContainerID), joinInts(d.Ports), d.WorkingDirectory,
		d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "creating dev server")
	}
	return d, nil
}

// GetDevServer fetches a dev server by id.
func (s *Store) GetDevServer(id string) (*DevServer, error) {
	row := s.db.QueryRow(`SELECT `+devServerCols+` FROM dev_servers WHERE id = ?`, id)
	d, err := scanDevServer(row)
	if err != nil {
		return nil, mapErr(err, "dev server "+id)
	}
	return d, nil
}

// ListDevServers returns a project's dev servers; an empty projectID lists
// all of them.
func (s *Store) ListDevServers(projectID string) ([]*DevServer, error) {
	query := `SELECT ` + devServerCols + ` FROM dev_servers ORDER BY created_at, id`
	args := []any{}
	if projectID != "" {
		query = `SELECT ` + devServerCols + ` FROM dev_servers
			WHERE project_id = ? ORDER BY created_at, id`
		args = append(args, projectID)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*DevServer
	for rows.Next() {
		d, err := scanDevServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDevServer persists mutable instance fields.
func (s *Store) UpdateDevServer(d *DevServer) error {
	var pid any
	if d.PID > 0 {
		pid = d.PID
	}
	res, err := s.db.Exec(`UPDATE dev_servers SET type = ?, name = ?,
		command = ?, status = ?, pid = ?, container_id = ?, ports = ?,
		working_directory = ?, updated_at = ? WHERE id = ?`,
		d.Type, d.Name, d.Command, d.Status, pid, nullIfEmpty(d.ContainerID),
		joinInts(d.Ports), d.WorkingDirectory, now(), d.ID)
	if err != nil {
		return mapErr(err, "updating dev server")
	}
	return requireRow(res, "dev server "+d.ID)
}

// SetDevServerStatus updates only the status column.
func (s *Store) SetDevServerStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE dev_servers SET status = ?, updated_at = ?
		WHERE id = ?`, status, now(), id)
	if err != nil {
		return mapErr(err, "updating dev server status")
	}
	return requireRow(res, "dev server "+id)
}

// DeleteDevServer removes a dev-server instance row.
func (s *Store) DeleteDevServer(id string) error {
	res, err := s.db.Exec(`DELETE FROM dev_servers WHERE id = ?`, id)
	if err != nil {
		return mapErr(err, "deleting dev server")
	}
	return requireRow(res, "dev server "+id)
}

// PortsInUse returns every port held by a live session or a running dev
// server. It runs two plain queries outside any transaction; the port
// allocator serializes its own calls with a mutex.
func (s *Store) PortsInUse() (map[int]bool, error) {
	used := make(map[int]bool)

	rows, err := s.db.Query(`SELECT dev_server_port FROM sessions
		WHERE dev_server_port IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, err
		}
		used[p] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(`SELECT ports FROM dev_servers
		WHERE status IN (?, ?)`, DevStarting, DevRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ports string
		if err := rows.Scan(&ports); err != nil {
			return nil, err
		}
		for _, p := range splitInts(ports) {
			used[p] = true
		}
	}
	return used, rows.Err()
}
