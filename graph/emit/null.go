package emit

// NullEmitter discards all events.
//
// Used when trace output beyond the episodic log is not wanted:
//
//	ctrl := controller.New(st, sel, controller.WithEmitter(emit.NewNullEmitter()))
type NullEmitter struct{}

// NewNullEmitter creates a new NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(event Event) {}
