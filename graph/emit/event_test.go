package emit

import (
	"testing"
)

func TestEvent_CanonicalJSON(t *testing.T) {
	t.Run("sorted keys and compact", func(t *testing.T) {
		event := Event{
			TaskID:          "task-abc",
			RunID:           "run-1",
			EventType:       EventNodeEnd,
			NodeID:          "router",
			NodeType:        "router",
			ControllerState: "PLAN",
			Success:         true,
			ElapsedNS:       Int64(42),
			StartOffsetNS:   Int64(7),
		}

		got, err := event.CanonicalJSON()
		if err != nil {
			t.Fatalf("CanonicalJSON() error = %v", err)
		}
		want := `{"controller_state":"PLAN","elapsed_ns":42,"event_type":"node_end","node_id":"router","node_type":"router","run_id":"run-1","start_offset_ns":7,"success":true}`
		if got != want {
			t.Errorf("CanonicalJSON() =\n%s\nwant\n%s", got, want)
		}
	})

	t.Run("optional fields omitted", func(t *testing.T) {
		event := Event{
			EventType:       EventNodeStart,
			NodeID:          "validator",
			NodeType:        "validator",
			ControllerState: "VALIDATE",
			Success:         true,
		}

		got, err := event.CanonicalJSON()
		if err != nil {
			t.Fatalf("CanonicalJSON() error = %v", err)
		}
		want := `{"controller_state":"VALIDATE","event_type":"node_start","node_id":"validator","node_type":"validator","success":true}`
		if got != want {
			t.Errorf("CanonicalJSON() = %s, want %s", got, want)
		}
	})

	t.Run("identical events encode identically", func(t *testing.T) {
		a := Event{EventType: EventNodeError, NodeID: "llm_worker", NodeType: "llm_worker", ControllerState: "EXECUTE", Error: "boom", ElapsedNS: Int64(0)}
		b := a
		b.ElapsedNS = Int64(0)

		ja, _ := a.CanonicalJSON()
		jb, _ := b.CanonicalJSON()
		if ja != jb {
			t.Errorf("encodings differ: %s vs %s", ja, jb)
		}
	})
}

func TestParseEvent(t *testing.T) {
	t.Run("round trips canonical payload", func(t *testing.T) {
		in := Event{
			RunID:           "run-9",
			EventType:       EventNodeError,
			NodeID:          "tool_call",
			NodeType:        "tool_call",
			ControllerState: "EXECUTE",
			Error:           "boom",
			ElapsedNS:       Int64(1500),
			StartOffsetNS:   Int64(3000),
		}
		content, err := in.CanonicalJSON()
		if err != nil {
			t.Fatalf("CanonicalJSON() error = %v", err)
		}

		out, err := ParseEvent(content)
		if err != nil {
			t.Fatalf("ParseEvent() error = %v", err)
		}
		if out.NodeID != "tool_call" || out.EventType != EventNodeError || out.Error != "boom" || out.Success {
			t.Errorf("ParseEvent() = %+v", out)
		}
		if out.ElapsedNS == nil || *out.ElapsedNS != 1500 {
			t.Errorf("ElapsedNS = %v, want 1500", out.ElapsedNS)
		}
		if out.StartOffsetNS == nil || *out.StartOffsetNS != 3000 {
			t.Errorf("StartOffsetNS = %v, want 3000", out.StartOffsetNS)
		}
	})

	t.Run("missing timing stays nil", func(t *testing.T) {
		out, err := ParseEvent(`{"event_type":"node_start","node_id":"router","success":true}`)
		if err != nil {
			t.Fatalf("ParseEvent() error = %v", err)
		}
		if out.ElapsedNS != nil || out.StartOffsetNS != nil {
			t.Errorf("expected nil timing fields, got %+v", out)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := ParseEvent("{not json"); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})
}
