package store

import (
	"database/sql"
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"github.com/saadnvd1/agentos/internal/apperr"
)

// Session statuses derived from the multiplexer.
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusWaiting = "waiting"
	StatusError   = "error"
)

// Worker statuses, driven by the orchestrator.
const (
	WorkerPending   = "pending"
	WorkerRunning   = "running"
	WorkerCompleted = "completed"
	WorkerFailed    = "failed"
)

// PR states tracked per session.
const (
	PROpen   = "open"
	PRMerged = "merged"
	PRClosed = "closed"
)

// Session is one running or idle agent instance.
type Session struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Status           string `json:"status"`
	WorkingDirectory string `json:"working_directory"`
	AgentType        string `json:"agent_type"`
	Model            string `json:"model"`
	SystemPrompt     string `json:"system_prompt,omitempty"`
	TmuxName         string `json:"tmux_name,omitempty"`
	ProjectID        string `json:"project_id"`
	ParentSessionID  string `json:"parent_session_id,omitempty"`
	ClaudeSessionID  string `json:"claude_session_id,omitempty"`
	AutoApprove      bool   `json:"auto_approve"`
	PendingPrompt    string `json:"pending_prompt,omitempty"`

	WorktreePath  string `json:"worktree_path,omitempty"`
	BranchName    string `json:"branch_name,omitempty"`
	BaseBranch    string `json:"base_branch,omitempty"`
	DevServerPort int    `json:"dev_server_port,omitempty"`

	PRURL    string `json:"pr_url,omitempty"`
	PRNumber int    `json:"pr_number,omitempty"`
	PRStatus string `json:"pr_status,omitempty"`

	ConductorSessionID string `json:"conductor_session_id,omitempty"`
	WorkerTask         string `json:"worker_task,omitempty"`
	WorkerStatus       string `json:"worker_status,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// HasWorktree reports whether the session owns a worktree.
func (s *Session) HasWorktree() bool { return s.WorktreePath != "" }

// IsWorker reports whether the session was spawned by a conductor.
func (s *Session) IsWorker() bool { return s.ConductorSessionID != "" }

const sessionCols = `id, name, status, working_directory, agent_type, model,
	system_prompt, tmux_name, project_id, parent_session_id, claude_session_id,
	auto_approve, pending_prompt, worktree_path, branch_name, base_branch,
	dev_server_port, pr_url, pr_number, pr_status, conductor_session_id,
	worker_task, worker_status, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	var sysPrompt, tmuxName, parent, claudeID, pending sql.NullString
	var wtPath, branch, base, prURL, prStatus, conductor, task, wstatus sql.NullString
	var port, prNumber sql.NullInt64
	var autoApprove int
	err := row.Scan(&s.ID, &s.Name, &s.Status, &s.WorkingDirectory,
		&s.AgentType, &s.Model, &sysPrompt, &tmuxName, &s.ProjectID,
		&parent, &claudeID, &autoApprove, &pending, &wtPath, &branch, &base,
		&port, &prURL, &prNumber, &prStatus, &conductor, &task, &wstatus,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.SystemPrompt = strOrEmpty(sysPrompt)
	s.TmuxName = strOrEmpty(tmuxName)
	s.ParentSessionID = strOrEmpty(parent)
	s.ClaudeSessionID = strOrEmpty(claudeID)
	s.AutoApprove = autoApprove != 0
	s.PendingPrompt = strOrEmpty(pending)
	s.WorktreePath = strOrEmpty(wtPath)
	s.BranchName = strOrEmpty(branch)
	s.BaseBranch = strOrEmpty(base)
	s.DevServerPort = intOrZero(port)
	s.PRURL = strOrEmpty(prURL)
	s.PRNumber = intOrZero(prNumber)
	s.PRStatus = strOrEmpty(prStatus)
	s.ConductorSessionID = strOrEmpty(conductor)
	s.WorkerTask = strOrEmpty(task)
	s.WorkerStatus = strOrEmpty(wstatus)
	return &s, nil
}

// CreateSession inserts a session row. Uniqueness of tmux_name,
// worktree_path, (working_directory, branch_name) and dev_server_port is
// enforced by the schema; violations surface as Conflict.
func (s *Store) CreateSession(sess *Session) (*Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = StatusIdle
	}
	ts := now()
	sess.CreatedAt, sess.UpdatedAt = ts, ts

	var port any
	if sess.DevServerPort > 0 {
		port = sess.DevServerPort
	}
	var prNumber any
	if sess.PRNumber > 0 {
		prNumber = sess.PRNumber
	}
	_, err := s.db.Exec(`INSERT INTO sessions (`+sessionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, sess.Status, sess.WorkingDirectory, sess.AgentType,
		sess.Model, nullIfEmpty(sess.SystemPrompt), nullIfEmpty(sess.TmuxName),
		sess.ProjectID, nullIfEmpty(sess.ParentSessionID),
		nullIfEmpty(sess.ClaudeSessionID), boolInt(sess.AutoApprove),
		nullIfEmpty(sess.PendingPrompt), nullIfEmpty(sess.WorktreePath),
		nullIfEmpty(sess.BranchName), nullIfEmpty(sess.BaseBranch), port,
		nullIfEmpty(sess.PRURL), prNumber, nullIfEmpty(sess.PRStatus),
		nullIfEmpty(sess.ConductorSessionID), nullIfEmpty(sess.WorkerTask),
		nullIfEmpty(sess.WorkerStatus), sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "creating session")
	}
	return sess, nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, mapErr(err, "session "+id)
	}
	return sess, nil
}

// GetSessionByTmuxName finds the session bound to a pane name.
func (s *Store) GetSessionByTmuxName(name string) (*Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE tmux_name = ?`, name)
	sess, err := scanSession(row)
	if err != nil {
		return nil, mapErr(err, "session for pane "+name)
	}
	return sess, nil
}

// ListSessions returns all sessions ordered by creation time.
func (s *Store) ListSessions() ([]*Session, error) {
	return s.querySessions(`SELECT ` + sessionCols + ` FROM sessions ORDER BY created_at, id`)
}

// ListProjectSessions returns a project's sessions.
func (s *Store) ListProjectSessions(projectID string) ([]*Session, error) {
	return s.querySessions(`SELECT `+sessionCols+` FROM sessions
		WHERE project_id = ? ORDER BY created_at, id`, projectID)
}

// ListWorkers returns the workers owned by a conductor.
func (s *Store) ListWorkers(conductorID string) ([]*Session, error) {
	return s.querySessions(`SELECT `+sessionCols+` FROM sessions
		WHERE conductor_session_id = ? ORDER BY created_at, id`, conductorID)
}

func (s *Store) querySessions(query string, args ...any) ([]*Session, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpdateSession persists every mutable column and bumps updated_at. The
// claude_session_id column is set-once: an existing value is never
// overwritten, matching the learn-exactly-once contract.
func (s *Store) UpdateSession(sess *Session) error {
	var port any
	if sess.DevServerPort > 0 {
		port = sess.DevServerPort
	}
	var prNumber any
	if sess.PRNumber > 0 {
		prNumber = sess.PRNumber
	}
	res, err := s.db.Exec(`UPDATE sessions SET
		name = ?, status = ?, working_directory = ?, agent_type = ?, model = ?,
		system_prompt = ?, tmux_name = ?, project_id = ?, parent_session_id = ?,
		claude_session_id = COALESCE(claude_session_id, ?),
		auto_approve = ?, pending_prompt = ?, worktree_path = ?, branch_name = ?,
		base_branch = ?, dev_server_port = ?, pr_url = ?, pr_number = ?,
		pr_status = ?, conductor_session_id = ?, worker_task = ?,
		worker_status = ?, updated_at = ?
		WHERE id = ?`,
		sess.Name, sess.Status, sess.WorkingDirectory, sess.AgentType,
		sess.Model, nullIfEmpty(sess.SystemPrompt), nullIfEmpty(sess.TmuxName),
		sess.ProjectID, nullIfEmpty(sess.ParentSessionID),
		nullIfEmpty(sess.ClaudeSessionID), boolInt(sess.AutoApprove),
		nullIfEmpty(sess.PendingPrompt), nullIfEmpty(sess.WorktreePath),
		nullIfEmpty(sess.BranchName), nullIfEmpty(sess.BaseBranch), port,
		nullIfEmpty(sess.PRURL), prNumber, nullIfEmpty(sess.PRStatus),
		nullIfEmpty(sess.ConductorSessionID), nullIfEmpty(sess.WorkerTask),
		nullIfEmpty(sess.WorkerStatus), now(), sess.ID)
	if err != nil {
		return mapErr(err, "updating session")
	}
	return requireRow(res, "session "+sess.ID)
}

// SetSessionStatus updates only the derived status column.
func (s *Store) SetSessionStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE sessions SET status = ?, updated_at = ?
		WHERE id = ?`, status, now(), id)
	if err != nil {
		return mapErr(err, "updating session status")
	}
	return requireRow(res, "session "+id)
}

// SetWorkerStatus updates only the worker_status column.
func (s *Store) SetWorkerStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE sessions SET worker_status = ?, updated_at = ?
		WHERE id = ?`, status, now(), id)
	if err != nil {
		return mapErr(err, "updating worker status")
	}
	return requireRow(res, "session "+id)
}

// SetClaudeSessionID records the upstream agent handle if none is set.
// Returns true when the value was written; false when a handle was already
// present (the existing value wins).
func (s *Store) SetClaudeSessionID(id, handle string) (bool, error) {
	res, err := s.db.Exec(`UPDATE sessions SET claude_session_id = ?, updated_at = ?
		WHERE id = ? AND claude_session_id IS NULL`, handle, now(), id)
	if err != nil {
		return false, mapErr(err, "recording agent session id")
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClearPendingPrompt removes and returns the stored initial prompt, if any.
func (s *Store) ClearPendingPrompt(id string) (string, error) {
	var prompt string
	err := s.tx(func(tx *sql.Tx) error {
		var p sql.NullString
		if err := tx.QueryRow(`SELECT pending_prompt FROM sessions WHERE id = ?`, id).Scan(&p); err != nil {
			return mapErr(err, "session "+id)
		}
		if !p.Valid || p.String == "" {
			return nil
		}
		prompt = p.String
		_, err := tx.Exec(`UPDATE sessions SET pending_prompt = NULL, updated_at = ?
			WHERE id = ?`, now(), id)
		return err
	})
	return prompt, err
}

// DeleteSession removes a session row; transcript messages cascade.
func (s *Store) DeleteSession(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return mapErr(err, "deleting session")
	}
	return requireRow(res, "session "+id)
}

// sessionNumberPat matches generated default names.
var sessionNumberPat = regexp.MustCompile(`^Session (\d+)$`)

// NextSessionNumber returns 1 + the highest numeric suffix among sessions
// named "Session N".
func (s *Store) NextSessionNumber() (int, error) {
	rows, err := s.db.Query(`SELECT name FROM sessions WHERE name LIKE 'Session %'`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	max := 0
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return 0, err
		}
		m := sessionNumberPat.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return max + 1, nil
}

// SessionNameInProjectExists reports whether another session in the project
// already carries the name.
func (s *Store) SessionNameInProjectExists(projectID, name, excludeID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions
		WHERE project_id = ? AND name = ? AND id != ?`,
		projectID, name, excludeID).Scan(&count)
	return count > 0, err
}

// RenameSessionTx updates name and tmux_name in one transaction, refusing
// names already taken inside the project.
func (s *Store) RenameSessionTx(id, name, tmuxName string) error {
	return s.tx(func(tx *sql.Tx) error {
		var projectID string
		if err := tx.QueryRow(`SELECT project_id FROM sessions WHERE id = ?`, id).Scan(&projectID); err != nil {
			return mapErr(err, "session "+id)
		}
		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM sessions
			WHERE project_id = ? AND name = ? AND id != ?`,
			projectID, name, id).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return apperr.Wrap(apperr.Conflict, ErrConflict,
				"session name %q already in use", name)
		}
		_, err := tx.Exec(`UPDATE sessions SET name = ?, tmux_name = ?, updated_at = ?
			WHERE id = ?`, name, nullIfEmpty(tmuxName), now(), id)
		return mapErr(err, "renaming session")
	})
}

// Message is one transcript entry. The core persists transcripts only so
// forks can copy them; token streams stay with the UI.
type Message struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// AddMessage appends a transcript message.
func (s *Store) AddMessage(sessionID, role, content string) error {
	_, err := s.db.Exec(`INSERT INTO messages (session_id, role, content, created_at)
		VALUES (?, ?, ?, ?)`, sessionID, role, content, now())
	return mapErr(err, "adding message")
}

// ListMessages returns a session's transcript in insertion order.
func (s *Store) ListMessages(sessionID string) ([]*Message, error) {
	rows, err := s.db.Query(`SELECT id, session_id, role, content, created_at
		FROM messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// CopyMessages duplicates the transcript of one session into another.
func (s *Store) CopyMessages(fromID, toID string) error {
	_, err := s.db.Exec(`INSERT INTO messages (session_id, role, content, created_at)
		SELECT ?, role, content, created_at FROM messages
		WHERE session_id = ? ORDER BY id`, toID, fromID)
	return mapErr(err, "copying messages")
}
