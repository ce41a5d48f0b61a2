package emit

import (
	"context"
	"fmt"
)

// ActionDAGNodeEvent is the decision action type under which trace events
// are persisted.
const ActionDAGNodeEvent = "dag_node_event"

// DecisionLogger is the episodic-log write the DecisionEmitter needs.
// store.Store satisfies it.
type DecisionLogger interface {
	LogDecision(ctx context.Context, taskID, actionType, content, status string) (int64, error)
}

// DecisionEmitter persists every event as a decision row:
// action_type "dag_node_event", status = event type, content = the event's
// canonical JSON. Replay comparison reads these rows back ordered by id.
//
// A failed write is passed to OnError and otherwise dropped.
type DecisionEmitter struct {
	logger  DecisionLogger
	onError func(error)
}

// NewDecisionEmitter creates a DecisionEmitter. onError may be nil.
func NewDecisionEmitter(logger DecisionLogger, onError func(error)) *DecisionEmitter {
	return &DecisionEmitter{logger: logger, onError: onError}
}

// Emit implements Emitter.
func (d *DecisionEmitter) Emit(event Event) {
	if err := d.write(event); err != nil && d.onError != nil {
		d.onError(err)
	}
}

func (d *DecisionEmitter) write(event Event) error {
	if d.logger == nil {
		return fmt.Errorf("trace event %s/%s: no decision logger", event.NodeID, event.EventType)
	}
	content, err := event.CanonicalJSON()
	if err != nil {
		return err
	}
	// Trace rows are written even after the caller's context is done.
	if _, err := d.logger.LogDecision(context.Background(), event.TaskID, ActionDAGNodeEvent, content, event.EventType); err != nil {
		return fmt.Errorf("failed to persist trace event %s/%s: %w", event.NodeID, event.EventType, err)
	}
	return nil
}
