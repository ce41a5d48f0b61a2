package emit

import (
	"testing"
)

// recordingEmitter captures events for assertions.
type recordingEmitter struct {
	events []Event
}

func (r *recordingEmitter) Emit(event Event) {
	r.events = append(r.events, event)
}

func TestEmitter_InterfaceContract(t *testing.T) {
	var _ Emitter = (*recordingEmitter)(nil)
	var _ Emitter = (*LogEmitter)(nil)
	var _ Emitter = (*NullEmitter)(nil)
	var _ Emitter = (*BufferedEmitter)(nil)
	var _ Emitter = (*OTelEmitter)(nil)
	var _ Emitter = (*DecisionEmitter)(nil)
	var _ Emitter = Multi(nil)
}

func TestMulti(t *testing.T) {
	t.Run("fans out in order", func(t *testing.T) {
		a, b := &recordingEmitter{}, &recordingEmitter{}
		m := Multi{a, nil, b}

		m.Emit(Event{NodeID: "router", EventType: EventNodeStart})
		m.Emit(Event{NodeID: "router", EventType: EventNodeEnd})

		for name, r := range map[string]*recordingEmitter{"a": a, "b": b} {
			if len(r.events) != 2 {
				t.Fatalf("%s: expected 2 events, got %d", name, len(r.events))
			}
			if r.events[1].EventType != EventNodeEnd {
				t.Errorf("%s: second event = %q, want node_end", name, r.events[1].EventType)
			}
		}
	})

	t.Run("empty multi is a no-op", func(t *testing.T) {
		var m Multi
		m.Emit(Event{NodeID: "router"})
	})
}

func TestNullEmitter(t *testing.T) {
	emitter := NewNullEmitter()
	for i := 0; i < 100; i++ {
		emitter.Emit(Event{NodeID: "router", EventType: EventNodeStart})
	}
}
