package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store.
//
// Designed for:
//   - Testing and development
//   - Single-process runs where persistence isn't required
//
// MemStore is thread-safe. Tasks are deep-copied on the way in and out so
// callers never share slices with the store.
//
// Limitations:
//   - Data is lost when the process terminates
//   - The episodic log grows without bound
type MemStore struct {
	mu          sync.RWMutex
	closed      bool
	tasks       map[string]Task // sanitized taskID -> task
	decisions   []Decision
	toolCalls   []ToolCallRecord
	validations []ValidationRecord
	now         func() time.Time
}

// NewMemStore creates an empty in-memory store.
//
// Example:
//
//	st := store.NewMemStore()
//	ctrl := controller.New(st, selector)
func NewMemStore() *MemStore {
	return &MemStore{
		tasks: make(map[string]Task),
		now:   time.Now,
	}
}

func (m *MemStore) checkOpen() error {
	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// CreateTask implements Store.
func (m *MemStore) CreateTask(_ context.Context, taskID, goal string, steps []string) (Task, error) {
	task, err := NewTask(taskID, goal, steps)
	if err != nil {
		return Task{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return Task{}, err
	}
	m.tasks[task.TaskID] = task.Clone()
	return task, nil
}

// GetTask implements Store.
func (m *MemStore) GetTask(_ context.Context, taskID string) (Task, error) {
	key, err := SanitizeTaskID(taskID)
	if err != nil {
		return Task{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return Task{}, err
	}
	task, ok := m.tasks[key]
	if !ok {
		return Task{}, ErrNotFound
	}
	return task.Clone(), nil
}

// PutTask implements Store.
func (m *MemStore) PutTask(_ context.Context, task Task) error {
	key, err := SanitizeTaskID(task.TaskID)
	if err != nil {
		return err
	}
	task = task.Clone()
	task.TaskID = key

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.tasks[key] = task
	return nil
}

// update applies fn to the stored task under the write lock.
func (m *MemStore) update(taskID string, fn func(*Task)) (Task, error) {
	key, err := SanitizeTaskID(taskID)
	if err != nil {
		return Task{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return Task{}, err
	}
	task, ok := m.tasks[key]
	if !ok {
		return Task{}, ErrNotFound
	}
	fn(&task)
	m.tasks[key] = task
	return task.Clone(), nil
}

// UpdateTaskStatus implements Store.
func (m *MemStore) UpdateTaskStatus(_ context.Context, taskID, status string) (Task, error) {
	return m.update(taskID, func(t *Task) { t.Status = status })
}

// ArchiveTask implements Store.
func (m *MemStore) ArchiveTask(_ context.Context, taskID string) (Task, error) {
	return m.update(taskID, func(t *Task) {
		t.Status = StatusArchive
		t.Archived = true
	})
}

// AppendTaskMessage implements Store.
func (m *MemStore) AppendTaskMessage(_ context.Context, taskID, role, content string, maxMessages int) (Task, error) {
	return m.update(taskID, func(t *Task) { t.AppendMessage(role, content, maxMessages) })
}

// LogDecision implements Store.
func (m *MemStore) LogDecision(_ context.Context, taskID, actionType, content, status string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	id := int64(len(m.decisions) + 1)
	m.decisions = append(m.decisions, Decision{
		ID:         id,
		Timestamp:  m.now().UTC(),
		TaskID:     taskID,
		ActionType: actionType,
		Content:    content,
		Status:     status,
	})
	return id, nil
}

func (m *MemStore) hasDecision(id int64) bool {
	return id >= 1 && id <= int64(len(m.decisions))
}

// LogToolCall implements Store. The decision must exist.
func (m *MemStore) LogToolCall(_ context.Context, decisionID int64, toolName, params, result string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	if !m.hasDecision(decisionID) {
		return 0, fmt.Errorf("failed to log tool call: decision %d: %w", decisionID, ErrNotFound)
	}
	id := int64(len(m.toolCalls) + 1)
	m.toolCalls = append(m.toolCalls, ToolCallRecord{
		ID:         id,
		DecisionID: decisionID,
		ToolName:   toolName,
		Params:     params,
		Result:     result,
		Timestamp:  m.now().UTC(),
	})
	return id, nil
}

// LogValidation implements Store. The decision must exist.
func (m *MemStore) LogValidation(_ context.Context, decisionID int64, validatorType, result, notes string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	if !m.hasDecision(decisionID) {
		return 0, fmt.Errorf("failed to log validation: decision %d: %w", decisionID, ErrNotFound)
	}
	id := int64(len(m.validations) + 1)
	m.validations = append(m.validations, ValidationRecord{
		ID:            id,
		DecisionID:    decisionID,
		ValidatorType: validatorType,
		Result:        result,
		Notes:         notes,
	})
	return id, nil
}

// Decisions implements Store.
func (m *MemStore) Decisions(_ context.Context, q DecisionQuery) ([]Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	out := []Decision{}
	for _, d := range m.decisions {
		if q.matches(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// ToolCalls implements Store.
func (m *MemStore) ToolCalls(_ context.Context, decisionID int64) ([]ToolCallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	out := []ToolCallRecord{}
	for _, tc := range m.toolCalls {
		if tc.DecisionID == decisionID {
			out = append(out, tc)
		}
	}
	return out, nil
}

// MaxDecisionID implements Store.
func (m *MemStore) MaxDecisionID(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	return int64(len(m.decisions)), nil
}

// Close implements Store. Calling Close twice is a no-op.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// serializableMemStore is the JSON snapshot form of a MemStore.
type serializableMemStore struct {
	Tasks       []Task             `json:"tasks"`
	Decisions   []Decision         `json:"decisions"`
	ToolCalls   []ToolCallRecord   `json:"tool_calls"`
	Validations []ValidationRecord `json:"validations"`
}

// MarshalJSON snapshots the store. Tasks are sorted by id so the snapshot
// is stable.
func (m *MemStore) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := serializableMemStore{
		Tasks:       make([]Task, 0, len(m.tasks)),
		Decisions:   m.decisions,
		ToolCalls:   m.toolCalls,
		Validations: m.validations,
	}
	for _, t := range m.tasks {
		s.Tasks = append(s.Tasks, t)
	}
	sort.Slice(s.Tasks, func(i, j int) bool { return s.Tasks[i].TaskID < s.Tasks[j].TaskID })
	return json.Marshal(s)
}

// UnmarshalJSON replaces the store contents with a snapshot produced by
// MarshalJSON. Decision ids must be 1..n in order.
func (m *MemStore) UnmarshalJSON(data []byte) error {
	var s serializableMemStore
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, d := range s.Decisions {
		if d.ID != int64(i+1) {
			return fmt.Errorf("decision %d out of sequence at position %d", d.ID, i)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = make(map[string]Task, len(s.Tasks))
	for _, t := range s.Tasks {
		m.tasks[t.TaskID] = t
	}
	m.decisions = s.Decisions
	m.toolCalls = s.ToolCalls
	m.validations = s.Validations
	if m.now == nil {
		m.now = time.Now
	}
	return nil
}
