package emit

import "sync"

// BufferedEmitter stores events in memory, grouped by task id.
//
// Continuations append to the same task's history, so a two-turn task holds
// both runs' events in emission order. Query by TaskID and narrow with a
// HistoryFilter.
//
// Warning: nothing is evicted. Call Clear for long-lived processes.
//
// Example usage:
//
//	buf := emit.NewBufferedEmitter()
//	ctrl := controller.New(st, sel, controller.WithEmitter(buf))
//	res := ctrl.Run(ctx, controller.RunRequest{UserInput: "hello"})
//
//	all := buf.GetHistory(res.TaskID)
//	errs := buf.GetHistoryWithFilter(res.TaskID, emit.HistoryFilter{EventType: emit.EventNodeError})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // taskID -> events
}

// HistoryFilter selects events from a task's history. Empty fields match
// everything; set fields are combined with AND.
type HistoryFilter struct {
	RunID           string
	NodeID          string
	EventType       string
	ControllerState string
}

func (f HistoryFilter) empty() bool {
	return f == HistoryFilter{}
}

func (f HistoryFilter) matches(e Event) bool {
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if f.NodeID != "" && e.NodeID != f.NodeID {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.ControllerState != "" && e.ControllerState != f.ControllerState {
		return false
	}
	return true
}

// NewBufferedEmitter creates an empty BufferedEmitter. Safe for concurrent
// use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.TaskID] = append(b.events[event.TaskID], event)
}

// GetHistory returns a copy of all events for taskID in emission order. The
// result is never nil.
func (b *BufferedEmitter) GetHistory(taskID string) []Event {
	return b.GetHistoryWithFilter(taskID, HistoryFilter{})
}

// GetHistoryWithFilter returns a copy of the events for taskID that match
// filter, in emission order. The result is never nil.
func (b *BufferedEmitter) GetHistoryWithFilter(taskID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[taskID]
	if filter.empty() {
		result := make([]Event, len(events))
		copy(result, events)
		return result
	}

	result := []Event{}
	for _, event := range events {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

// Clear removes the events of taskID, or of every task when taskID is
// empty.
func (b *BufferedEmitter) Clear(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if taskID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, taskID)
}
