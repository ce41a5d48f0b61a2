package controller

import "errors"

// Phase prefixes attached to node failures.
const (
	PrefixRouter    = "router_node_error"
	PrefixExecute   = "execute_node_error"
	PrefixValidator = "validator_node_error"
)

var (
	// ErrTaskNotFound is returned for a continuation against an unknown
	// task id.
	ErrTaskNotFound = errors.New("task_not_found")

	// ErrValidationFailed is the outcome when the validator rejects the
	// run's output. It is a normal terminal result, not a node failure.
	ErrValidationFailed = errors.New("validation_failed")
)

// PhaseError labels a failure with the phase it happened in.
type PhaseError struct {
	Prefix string
	Cause  error
}

func (e *PhaseError) Error() string {
	if e.Cause == nil {
		return e.Prefix
	}
	return e.Prefix + ": " + e.Cause.Error()
}

func (e *PhaseError) Unwrap() error { return e.Cause }

// failureReason is the metric label for err.
func failureReason(err error) string {
	var pe *PhaseError
	switch {
	case errors.As(err, &pe):
		return pe.Prefix
	case errors.Is(err, ErrTaskNotFound):
		return ErrTaskNotFound.Error()
	case errors.Is(err, ErrValidationFailed):
		return ErrValidationFailed.Error()
	default:
		return "controller_error"
	}
}
