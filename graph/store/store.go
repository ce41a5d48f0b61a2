// Package store persists task working state and the episodic decision log.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode"
)

// ErrNotFound is returned when a requested task does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTaskID is returned when a task id sanitizes to nothing.
var ErrInvalidTaskID = errors.New("invalid task_id")

// Task status values written by the store itself. The controller writes the
// other lifecycle states.
const (
	StatusInit    = "INIT"
	StatusArchive = "ARCHIVE"
)

// Message is one turn in a task's conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Task is the working-state record of one task.
//
// WorkflowGraph holds the canonical JSON of the graph snapshot written after
// planning. It is opaque to the store.
type Task struct {
	TaskID         string          `json:"task_id"`
	Goal           string          `json:"goal"`
	Status         string          `json:"status"`
	CurrentStep    int             `json:"current_step"`
	TotalSteps     int             `json:"total_steps"`
	CompletedSteps []int           `json:"completed_steps"`
	NextSteps      []string        `json:"next_steps"`
	Messages       []Message       `json:"messages,omitempty"`
	WorkflowGraph  json.RawMessage `json:"workflow_graph,omitempty"`
	Archived       bool            `json:"archived"`
}

// NewTask returns a task in status INIT at step 1 of len(steps).
func NewTask(taskID, goal string, steps []string) (Task, error) {
	safe, err := SanitizeTaskID(taskID)
	if err != nil {
		return Task{}, err
	}
	return Task{
		TaskID:         safe,
		Goal:           goal,
		Status:         StatusInit,
		CurrentStep:    1,
		TotalSteps:     len(steps),
		CompletedSteps: []int{1},
		NextSteps:      append([]string{}, steps...),
	}, nil
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	out := t
	out.CompletedSteps = append([]int(nil), t.CompletedSteps...)
	out.NextSteps = append([]string(nil), t.NextSteps...)
	out.Messages = append([]Message(nil), t.Messages...)
	out.WorkflowGraph = append(json.RawMessage(nil), t.WorkflowGraph...)
	return out
}

// AppendMessage appends a turn and keeps only the most recent maxMessages.
// maxMessages <= 0 keeps everything.
func (t *Task) AppendMessage(role, content string, maxMessages int) {
	t.Messages = append(t.Messages, Message{Role: role, Content: content})
	if maxMessages > 0 && len(t.Messages) > maxMessages {
		t.Messages = append([]Message(nil), t.Messages[len(t.Messages)-maxMessages:]...)
	}
}

// SanitizeTaskID strips any path prefix from id and keeps only letters,
// digits, '-' and '_'. Task ids end up in file names and SQL keys, so
// nothing else is allowed through.
func SanitizeTaskID(id string) (string, error) {
	normalized := strings.ReplaceAll(id, `\`, "/")
	if i := strings.LastIndex(normalized, "/"); i >= 0 {
		normalized = normalized[i+1:]
	}
	safe := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return -1
	}, normalized)
	if safe == "" {
		return "", ErrInvalidTaskID
	}
	return safe, nil
}

// Decision is one row of the episodic log.
type Decision struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	TaskID     string    `json:"task_id"`
	ActionType string    `json:"action_type"`
	Content    string    `json:"content"`
	Status     string    `json:"status"`
}

// DecisionQuery selects decisions. Zero fields match everything. Results
// are always ordered by ascending id.
type DecisionQuery struct {
	TaskID     string
	ActionType string
	// AfterID selects rows with id > AfterID.
	AfterID int64
}

func (q DecisionQuery) matches(d Decision) bool {
	if q.TaskID != "" && d.TaskID != q.TaskID {
		return false
	}
	if q.ActionType != "" && d.ActionType != q.ActionType {
		return false
	}
	return d.ID > q.AfterID
}

// ToolCallRecord is a tool invocation attached to a decision.
type ToolCallRecord struct {
	ID         int64     `json:"id"`
	DecisionID int64     `json:"decision_id"`
	ToolName   string    `json:"tool_name"`
	Params     string    `json:"params"`
	Result     string    `json:"result"`
	Timestamp  time.Time `json:"timestamp"`
}

// ValidationRecord is a validator outcome attached to a decision.
type ValidationRecord struct {
	ID            int64  `json:"id"`
	DecisionID    int64  `json:"decision_id"`
	ValidatorType string `json:"validator_type"`
	Result        string `json:"result"`
	Notes         string `json:"notes"`
}

// Store is the memory collaborator: task working state plus the
// append-only episodic log.
//
// Task writes are read-modify-write inside one implementation call. Callers
// that need strict per-task serialization across calls must provide it
// themselves.
//
// Implementations:
//   - MemStore: in-process maps, for tests and single-shot CLI runs
//   - SQLiteStore: single-file database (modernc.org/sqlite)
//   - MySQLStore: shared database (go-sql-driver/mysql)
type Store interface {
	// CreateTask writes a fresh INIT task, replacing any task with the same
	// sanitized id.
	CreateTask(ctx context.Context, taskID, goal string, steps []string) (Task, error)

	// GetTask returns the task, archived or not. ErrNotFound if absent.
	GetTask(ctx context.Context, taskID string) (Task, error)

	// PutTask replaces the stored task.
	PutTask(ctx context.Context, task Task) error

	// UpdateTaskStatus sets the status field. ErrNotFound if absent.
	UpdateTaskStatus(ctx context.Context, taskID, status string) (Task, error)

	// ArchiveTask marks the task archived with status ARCHIVE.
	ArchiveTask(ctx context.Context, taskID string) (Task, error)

	// AppendTaskMessage appends one turn, retaining the most recent
	// maxMessages.
	AppendTaskMessage(ctx context.Context, taskID, role, content string, maxMessages int) (Task, error)

	// LogDecision appends a decision row and returns its id. Ids increase
	// strictly in insertion order.
	LogDecision(ctx context.Context, taskID, actionType, content, status string) (int64, error)

	// LogToolCall records a tool invocation against a decision.
	LogToolCall(ctx context.Context, decisionID int64, toolName, params, result string) (int64, error)

	// LogValidation records a validator outcome against a decision.
	LogValidation(ctx context.Context, decisionID int64, validatorType, result, notes string) (int64, error)

	// Decisions returns matching rows ordered by id.
	Decisions(ctx context.Context, q DecisionQuery) ([]Decision, error)

	// ToolCalls returns the tool calls recorded against a decision.
	ToolCalls(ctx context.Context, decisionID int64) ([]ToolCallRecord, error)

	// MaxDecisionID returns the highest decision id, or 0 when empty.
	MaxDecisionID(ctx context.Context) (int64, error)

	// Close releases resources. Further calls return errors.
	Close() error
}

func encodeTask(task Task) (string, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeTask(data string) (Task, error) {
	var task Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

const timestampLayout = time.RFC3339Nano

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
