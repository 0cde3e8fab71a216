package store

import (
	"database/sql"
	"fmt"
)

// migration is one schema change. Migrations are append-only; ids never
// change once shipped.
type migration struct {
	id    int
	name  string
	apply func(*sql.Tx) error
}

// migrations is the ordered schema history.
var migrations = []migration{
	{1, "base schema", func(tx *sql.Tx) error {
		_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS projects (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	working_directory TEXT NOT NULL DEFAULT '',
	agent_type        TEXT NOT NULL DEFAULT 'claude',
	default_model     TEXT NOT NULL DEFAULT 'sonnet',
	expanded          INTEGER NOT NULL DEFAULT 1,
	sort_order        INTEGER NOT NULL DEFAULT 0,
	is_uncategorized  INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	status               TEXT NOT NULL DEFAULT 'idle',
	working_directory    TEXT NOT NULL DEFAULT '~',
	agent_type           TEXT NOT NULL DEFAULT 'claude',
	model                TEXT NOT NULL DEFAULT 'sonnet',
	system_prompt        TEXT,
	tmux_name            TEXT UNIQUE,
	project_id           TEXT NOT NULL REFERENCES projects(id),
	parent_session_id    TEXT REFERENCES sessions(id) ON DELETE SET NULL,
	claude_session_id    TEXT,
	auto_approve         INTEGER NOT NULL DEFAULT 0,
	pending_prompt       TEXT,
	worktree_path        TEXT UNIQUE,
	branch_name          TEXT,
	base_branch          TEXT,
	dev_server_port      INTEGER,
	pr_url               TEXT,
	pr_number            INTEGER,
	pr_status            TEXT,
	conductor_session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
	worker_task          TEXT,
	worker_status        TEXT,
	created_at           TEXT NOT NULL,
	updated_at           TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_branch
	ON sessions(working_directory, branch_name)
	WHERE branch_name IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_port
	ON sessions(dev_server_port)
	WHERE dev_server_port IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);
CREATE INDEX IF NOT EXISTS idx_sessions_conductor ON sessions(conductor_session_id);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);

CREATE TABLE IF NOT EXISTS dev_servers (
	id                TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL REFERENCES projects(id),
	type              TEXT NOT NULL,
	name              TEXT NOT NULL,
	command           TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'stopped',
	pid               INTEGER,
	container_id      TEXT,
	ports             TEXT NOT NULL DEFAULT '',
	working_directory TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dev_servers_project ON dev_servers(project_id);

CREATE TABLE IF NOT EXISTS dev_server_templates (
	id           TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	type         TEXT NOT NULL,
	command      TEXT NOT NULL,
	port         INTEGER,
	port_env_var TEXT,
	sort_order   INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
`)
		return err
	}},
	{2, "seed uncategorized project", func(tx *sql.Tx) error {
		ts := now()
		_, err := tx.Exec(`INSERT OR IGNORE INTO projects
			(id, name, is_uncategorized, sort_order, created_at, updated_at)
			VALUES (?, 'Uncategorized', 1, 9999, ?, ?)`,
			UncategorizedProjectID, ts, ts)
		return err
	}},
	{3, "migrate legacy group_path rows", func(tx *sql.Tx) error {
		// Older stores grouped sessions by a free-form group_path. The
		// column may not exist on fresh databases; probe before touching.
		var count int
		err := tx.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('sessions')
			WHERE name = 'group_path'`).Scan(&count)
		if err != nil || count == 0 {
			return err
		}
		_, err = tx.Exec(`UPDATE sessions SET project_id = ?
			WHERE project_id IS NULL OR project_id = ''`, UncategorizedProjectID)
		return err
	}},
}

// migrate applies pending migrations in order. Each migration records its
// id with INSERT OR IGNORE so concurrent starts cannot double-apply: the
// loser of the insert race skips the migration body.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (
		id         INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.id, m.name, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(m migration) error {
	return s.tx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT OR IGNORE INTO _migrations (id, name, applied_at)
			VALUES (?, ?, ?)`, m.id, m.name, now())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// Already applied (possibly by a concurrent start).
			return nil
		}
		return m.apply(tx)
	})
}

// AppliedMigrations returns the applied migration ids in order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query(`SELECT id FROM _migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
