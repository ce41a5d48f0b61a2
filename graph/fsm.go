// Package graph provides the workflow core for AgentPipe: the task lifecycle
// state machine, the workflow graph model, its topological executor, and the
// plan compiler that derives graphs from intent.
package graph

import (
	"errors"
	"fmt"
)

// ControllerState is the lifecycle phase of a task.
//
// INIT is the only initial state. ARCHIVE and FAILED are terminal: no
// transition leaves them.
type ControllerState string

const (
	StateInit     ControllerState = "INIT"
	StatePlan     ControllerState = "PLAN"
	StateExecute  ControllerState = "EXECUTE"
	StateValidate ControllerState = "VALIDATE"
	StateCommit   ControllerState = "COMMIT"
	StateArchive  ControllerState = "ARCHIVE"
	StateFailed   ControllerState = "FAILED"
)

// States lists every controller state in lifecycle order.
var States = []ControllerState{
	StateInit, StatePlan, StateExecute, StateValidate, StateCommit, StateArchive, StateFailed,
}

// forward is the strictly forward transition table. FAILED is handled
// separately since it is reachable from every non-terminal state.
var forward = map[ControllerState]ControllerState{
	StateInit:     StatePlan,
	StatePlan:     StateExecute,
	StateExecute:  StateValidate,
	StateValidate: StateCommit,
	StateCommit:   StateArchive,
}

// IsTerminal reports whether no transition leaves s.
func (s ControllerState) IsTerminal() bool {
	return s == StateArchive || s == StateFailed
}

// Valid reports whether s is one of the known controller states.
func (s ControllerState) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is the kind of every error returned by FSM.Transition
// for an illegal pair. Use errors.As with *InvalidTransitionError to recover
// the states involved.
var ErrInvalidTransition = errors.New("invalid transition")

// InvalidTransitionError carries both ends of a rejected transition.
type InvalidTransitionError struct {
	From ControllerState
	To   ControllerState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// FSM enforces the legal lifecycle transitions for a single task invocation.
//
// The transition table is deterministic and total:
//
//	INIT -> PLAN -> EXECUTE -> VALIDATE -> COMMIT -> ARCHIVE
//
// with FAILED reachable from every state except ARCHIVE and FAILED.
// Failing an already failed or archived task is rejected rather than
// silently accepted.
//
// An FSM is not safe for concurrent use; the Controller creates one per Run.
type FSM struct {
	current ControllerState
}

// NewFSM returns a state machine positioned at INIT.
func NewFSM() *FSM {
	return &FSM{current: StateInit}
}

// Current returns the current state.
func (f *FSM) Current() ControllerState {
	return f.current
}

// CanTransition reports whether moving to target is legal from the current state.
func (f *FSM) CanTransition(target ControllerState) bool {
	if target == StateFailed {
		return !f.current.IsTerminal()
	}
	next, ok := forward[f.current]
	return ok && next == target
}

// Transition moves to target, or returns an *InvalidTransitionError and
// leaves the state unchanged.
func (f *FSM) Transition(target ControllerState) (ControllerState, error) {
	if !f.CanTransition(target) {
		return f.current, &InvalidTransitionError{From: f.current, To: target}
	}
	f.current = target
	return f.current, nil
}
