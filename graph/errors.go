package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Graph validation error kinds. Every validation failure is returned as a
// *GraphError whose Kind is one of these, so callers can use errors.Is.
// Validation always completes before any node executes.
var (
	ErrEmptyGraph                = errors.New("workflow graph must contain at least one node")
	ErrEntryNotFound             = errors.New("workflow entry node not found")
	ErrDuplicateNode             = errors.New("duplicate workflow node")
	ErrMissingNodeImplementation = errors.New("missing node implementations")
	ErrUnknownEdgeEndpoint       = errors.New("edge references unknown node")
	ErrCycleDetected             = errors.New("workflow graph contains a cycle")
)

// GraphError wraps a deterministic graph validation failure.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

// MissingNodeImplementationError lists every graph node that has no entry in
// the node registry. Missing is sorted.
type MissingNodeImplementationError struct {
	Missing []string
}

func (e *MissingNodeImplementationError) Error() string {
	return ErrMissingNodeImplementation.Error() + ": " + strings.Join(e.Missing, ", ")
}

func (e *MissingNodeImplementationError) Unwrap() error { return ErrMissingNodeImplementation }

func graphErrorf(kind error, format string, args ...any) error {
	return &GraphError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
