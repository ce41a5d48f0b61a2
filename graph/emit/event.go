package emit

import (
	"encoding/json"
	"fmt"
)

// Node trace event types.
const (
	EventNodeStart = "node_start"
	EventNodeEnd   = "node_end"
	EventNodeError = "node_error"
)

// Event is one node-invocation boundary recorded during a pipeline run.
//
// Every node invocation produces a node_start followed by exactly one of
// node_end or node_error. Events are persisted as canonical JSON so two runs
// of the same input produce payloads of identical shape:
//
//	{"controller_state":"PLAN","event_type":"node_start","node_id":"router",
//	 "node_type":"router","run_id":"01J...","start_offset_ns":1200,"success":true}
//
// TaskID is not part of the payload; it is carried by the decision row the
// payload is written to.
type Event struct {
	// TaskID identifies the task the run belongs to.
	TaskID string

	// RunID identifies one Run invocation. Continuations of the same task
	// get a new RunID.
	RunID string

	// EventType is one of EventNodeStart, EventNodeEnd, EventNodeError.
	EventType string

	// NodeID is the graph node identifier.
	NodeID string

	// NodeType is the implementation kind that ran the node.
	NodeType string

	// ControllerState is the lifecycle phase the node ran in.
	ControllerState string

	// Success is false only for node_error events.
	Success bool

	// Error holds the node error detail on node_error events.
	Error string

	// ElapsedNS is the node duration, set on node_end and node_error.
	ElapsedNS *int64

	// StartOffsetNS is the offset of this event from the start of the run.
	StartOffsetNS *int64
}

// Int64 returns a pointer to v, for the optional Event timing fields.
func Int64(v int64) *int64 {
	return &v
}

// Payload returns the persisted fields of the event as a map. Optional
// fields are omitted when unset.
func (e Event) Payload() map[string]any {
	p := map[string]any{
		"event_type":       e.EventType,
		"node_id":          e.NodeID,
		"node_type":        e.NodeType,
		"controller_state": e.ControllerState,
		"success":          e.Success,
	}
	if e.RunID != "" {
		p["run_id"] = e.RunID
	}
	if e.Error != "" {
		p["error"] = e.Error
	}
	if e.ElapsedNS != nil {
		p["elapsed_ns"] = *e.ElapsedNS
	}
	if e.StartOffsetNS != nil {
		p["start_offset_ns"] = *e.StartOffsetNS
	}
	return p
}

// CanonicalJSON encodes the payload with sorted keys and no insignificant
// whitespace. encoding/json sorts map keys, which makes the output stable.
func (e Event) CanonicalJSON() (string, error) {
	data, err := json.Marshal(e.Payload())
	if err != nil {
		return "", fmt.Errorf("failed to marshal trace event: %w", err)
	}
	return string(data), nil
}

// ParseEvent decodes a payload written by CanonicalJSON. TaskID is left
// empty.
func ParseEvent(content string) (Event, error) {
	var raw struct {
		EventType       string `json:"event_type"`
		NodeID          string `json:"node_id"`
		NodeType        string `json:"node_type"`
		ControllerState string `json:"controller_state"`
		Success         bool   `json:"success"`
		RunID           string `json:"run_id"`
		Error           string `json:"error"`
		ElapsedNS       *int64 `json:"elapsed_ns"`
		StartOffsetNS   *int64 `json:"start_offset_ns"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Event{}, fmt.Errorf("failed to parse trace event: %w", err)
	}
	return Event{
		RunID:           raw.RunID,
		EventType:       raw.EventType,
		NodeID:          raw.NodeID,
		NodeType:        raw.NodeType,
		ControllerState: raw.ControllerState,
		Success:         raw.Success,
		Error:           raw.Error,
		ElapsedNS:       raw.ElapsedNS,
		StartOffsetNS:   raw.StartOffsetNS,
	}, nil
}
