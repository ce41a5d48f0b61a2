// Package emit records node trace events produced while the controller
// runs a workflow graph.
package emit

// Emitter receives node trace events from the controller.
//
// Implementations:
//   - DecisionEmitter: persists canonical JSON through the episodic log
//   - LogEmitter: text or JSON lines to an io.Writer
//   - OTelEmitter: one OpenTelemetry span per event
//   - BufferedEmitter: in-memory history for tests and debugging
//   - NullEmitter: discards everything
//
// Emit must not panic and must not block the run for long. A backend that
// fails should drop the event and report the failure out of band; a trace
// write never aborts a run.
type Emitter interface {
	Emit(event Event)
}

// Multi fans each event out to every emitter in order. Nil entries are
// skipped.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
