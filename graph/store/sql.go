package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// sqlStore holds the queries SQLiteStore and MySQLStore share. Both drivers
// use '?' placeholders; only DDL and the task upsert differ.
type sqlStore struct {
	db         *sql.DB
	mu         sync.RWMutex
	closed     bool
	upsertTask string
	now        func() time.Time
}

func (s *sqlStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// CreateTask implements Store.
func (s *sqlStore) CreateTask(ctx context.Context, taskID, goal string, steps []string) (Task, error) {
	task, err := NewTask(taskID, goal, steps)
	if err != nil {
		return Task{}, err
	}
	if err := s.PutTask(ctx, task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// GetTask implements Store.
func (s *sqlStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	if err := s.checkOpen(); err != nil {
		return Task{}, err
	}
	key, err := SanitizeTaskID(taskID)
	if err != nil {
		return Task{}, err
	}
	return s.loadTask(ctx, s.db, key)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *sqlStore) loadTask(ctx context.Context, q queryer, key string) (Task, error) {
	var data string
	err := q.QueryRowContext(ctx, "SELECT data FROM tasks WHERE task_id = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("failed to load task: %w", err)
	}
	task, err := decodeTask(data)
	if err != nil {
		return Task{}, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return task, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *sqlStore) saveTask(ctx context.Context, e execer, task Task) error {
	data, err := encodeTask(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	_, err = e.ExecContext(ctx, s.upsertTask,
		task.TaskID, task.Status, task.Archived, data, formatTimestamp(s.now()))
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// PutTask implements Store.
func (s *sqlStore) PutTask(ctx context.Context, task Task) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	key, err := SanitizeTaskID(task.TaskID)
	if err != nil {
		return err
	}
	task.TaskID = key
	return s.saveTask(ctx, s.db, task)
}

// update runs a read-modify-write of one task inside a transaction.
func (s *sqlStore) update(ctx context.Context, taskID string, fn func(*Task)) (Task, error) {
	if err := s.checkOpen(); err != nil {
		return Task{}, err
	}
	key, err := SanitizeTaskID(taskID)
	if err != nil {
		return Task{}, err
	}

	var task Task
	err = s.withTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		loaded, err := s.loadTask(ctx, tx, key)
		if err != nil {
			return err
		}
		fn(&loaded)
		if err := s.saveTask(ctx, tx, loaded); err != nil {
			return err
		}
		task = loaded
		return nil
	})
	return task, err
}

// withTransaction commits when fn succeeds and rolls back otherwise.
func (s *sqlStore) withTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateTaskStatus implements Store.
func (s *sqlStore) UpdateTaskStatus(ctx context.Context, taskID, status string) (Task, error) {
	return s.update(ctx, taskID, func(t *Task) { t.Status = status })
}

// ArchiveTask implements Store.
func (s *sqlStore) ArchiveTask(ctx context.Context, taskID string) (Task, error) {
	return s.update(ctx, taskID, func(t *Task) {
		t.Status = StatusArchive
		t.Archived = true
	})
}

// AppendTaskMessage implements Store.
func (s *sqlStore) AppendTaskMessage(ctx context.Context, taskID, role, content string, maxMessages int) (Task, error) {
	return s.update(ctx, taskID, func(t *Task) { t.AppendMessage(role, content, maxMessages) })
}

func (s *sqlStore) insert(ctx context.Context, what, query string, args ...any) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", what, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s id: %w", what, err)
	}
	return id, nil
}

// LogDecision implements Store.
func (s *sqlStore) LogDecision(ctx context.Context, taskID, actionType, content, status string) (int64, error) {
	return s.insert(ctx, "decision",
		"INSERT INTO decisions (timestamp, task_id, action_type, content, status) VALUES (?, ?, ?, ?, ?)",
		formatTimestamp(s.now()), taskID, actionType, content, status)
}

// LogToolCall implements Store. The decision must exist.
func (s *sqlStore) LogToolCall(ctx context.Context, decisionID int64, toolName, params, result string) (int64, error) {
	return s.insert(ctx, "tool call",
		"INSERT INTO tool_calls (decision_id, tool_name, params, result, timestamp) VALUES (?, ?, ?, ?, ?)",
		decisionID, toolName, params, result, formatTimestamp(s.now()))
}

// LogValidation implements Store. The decision must exist.
func (s *sqlStore) LogValidation(ctx context.Context, decisionID int64, validatorType, result, notes string) (int64, error) {
	return s.insert(ctx, "validation",
		"INSERT INTO validations (decision_id, validator_type, result, notes) VALUES (?, ?, ?, ?)",
		decisionID, validatorType, result, notes)
}

// Decisions implements Store.
func (s *sqlStore) Decisions(ctx context.Context, q DecisionQuery) ([]Decision, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := "SELECT id, timestamp, task_id, action_type, content, status FROM decisions WHERE id > ?"
	args := []any{q.AfterID}
	if q.TaskID != "" {
		query += " AND task_id = ?"
		args = append(args, q.TaskID)
	}
	if q.ActionType != "" {
		query += " AND action_type = ?"
		args = append(args, q.ActionType)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	out := []Decision{}
	for rows.Next() {
		var d Decision
		var ts string
		if err := rows.Scan(&d.ID, &ts, &d.TaskID, &d.ActionType, &d.Content, &d.Status); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Timestamp = parseTimestamp(ts)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}
	return out, nil
}

// ToolCalls implements Store.
func (s *sqlStore) ToolCalls(ctx context.Context, decisionID int64) ([]ToolCallRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, decision_id, tool_name, params, result, timestamp FROM tool_calls WHERE decision_id = ? ORDER BY id ASC",
		decisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	defer rows.Close()

	out := []ToolCallRecord{}
	for rows.Next() {
		var tc ToolCallRecord
		var ts string
		if err := rows.Scan(&tc.ID, &tc.DecisionID, &tc.ToolName, &tc.Params, &tc.Result, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		tc.Timestamp = parseTimestamp(ts)
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tool calls: %w", err)
	}
	return out, nil
}

// MaxDecisionID implements Store.
func (s *sqlStore) MaxDecisionID(ctx context.Context) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM decisions").Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read max decision id: %w", err)
	}
	return id, nil
}

// Close closes the database. Calling Close twice is a no-op.
func (s *sqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *sqlStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

func execAll(ctx context.Context, db *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
