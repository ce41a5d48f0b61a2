package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps working state and the episodic log in a single-file database.
// Designed for:
//   - Local runs that must survive restarts
//   - Replay-baseline checks that re-read trace rows by id
//   - Development with zero setup
//
// Schema:
//   - tasks: task_id, status, archived, data (task JSON), updated_at
//   - decisions: id, timestamp, task_id, action_type, content, status
//   - tool_calls: id, decision_id -> decisions.id, tool_name, params, result, timestamp
//   - validations: id, decision_id -> decisions.id, validator_type, result, notes
//
// Features:
//   - Auto-migration on first use
//   - WAL mode for concurrent reads
//   - Foreign keys enforced, so tool calls need an existing decision
type SQLiteStore struct {
	*sqlStore
	path string
}

// NewSQLiteStore opens or creates the database at path.
//
// The path parameter specifies the database file location:
//   - "./data/episodic/trace.db" - file relative to the working directory
//   - ":memory:" - in-memory database (data lost on close)
//
// Example:
//
//	st, err := store.NewSQLiteStore("./data/episodic/trace.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(1)    // SQLite supports one writer at a time
	db.SetMaxIdleConns(1)    // Keep connection open (required for :memory:)
	db.SetConnMaxLifetime(0) // No max lifetime for SQLite

	ctx := context.Background()
	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA foreign_keys=ON", "enable foreign keys"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.stmt); err != nil {
			_ = db.Close() // Ignore close error when returning pragma error
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}

	s := &SQLiteStore{
		sqlStore: &sqlStore{
			db: db,
			upsertTask: `
				INSERT INTO tasks (task_id, status, archived, data, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(task_id) DO UPDATE SET
					status = excluded.status,
					archived = excluded.archived,
					data = excluded.data,
					updated_at = excluded.updated_at
			`,
			now: time.Now,
		},
		path: path,
	}

	if err := s.createTables(ctx); err != nil {
		_ = db.Close() // Ignore close error when returning table creation error
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	return execAll(ctx, s.db, []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT NOT NULL PRIMARY KEY,
			status TEXT NOT NULL,
			archived INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			task_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			content TEXT NOT NULL,
			status TEXT NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_decisions_task_action ON decisions(task_id, action_type, id)",
		`CREATE TABLE IF NOT EXISTS tool_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			decision_id INTEGER NOT NULL,
			tool_name TEXT NOT NULL,
			params TEXT NOT NULL,
			result TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			FOREIGN KEY(decision_id) REFERENCES decisions(id)
		)`,
		`CREATE TABLE IF NOT EXISTS validations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			decision_id INTEGER NOT NULL,
			validator_type TEXT NOT NULL,
			result TEXT NOT NULL,
			notes TEXT NOT NULL,
			FOREIGN KEY(decision_id) REFERENCES decisions(id)
		)`,
	})
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}
