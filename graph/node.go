package graph

import (
	"context"
	"sort"
)

// NodeType enumerates the node kinds the pipeline knows how to run. Graph
// node identifiers are plain strings; a node id is implemented when the
// registry holds an entry for NodeType(id).
type NodeType string

const (
	NodeRouter         NodeType = "router"
	NodeContextBuilder NodeType = "context_builder"
	NodeToolCall       NodeType = "tool_call"
	NodeLLMWorker      NodeType = "llm_worker"
	NodeValidator      NodeType = "validator"
)

// NodeTypes lists the known node kinds.
var NodeTypes = []NodeType{NodeRouter, NodeContextBuilder, NodeToolCall, NodeLLMWorker, NodeValidator}

// Phase returns the controller state during which nodes of this type run.
// Unknown types report StateExecute.
func (t NodeType) Phase() ControllerState {
	switch t {
	case NodeRouter:
		return StatePlan
	case NodeValidator:
		return StateValidate
	default:
		return StateExecute
	}
}

// Node is a unit of work with a uniform contract: it receives the run
// context, may mutate it, and returns it. Any returned error is treated by
// the Controller as an opaque detail string.
//
// Returning a nil context means "unchanged".
type Node interface {
	Execute(ctx context.Context, rc *RunContext) (*RunContext, error)
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc func(ctx context.Context, rc *RunContext) (*RunContext, error)

// Execute implements Node.
func (f NodeFunc) Execute(ctx context.Context, rc *RunContext) (*RunContext, error) {
	return f(ctx, rc)
}

// Registry maps node kinds to implementations. The Controller builds a fresh
// Registry for every Run, so implementations may hold per-run state.
type Registry map[NodeType]Node

// Lookup returns the implementation for a graph node id.
func (r Registry) Lookup(id string) (Node, bool) {
	n, ok := r[NodeType(id)]
	return n, ok && n != nil
}

// IDs returns the registered node ids in lexicographic order.
func (r Registry) IDs() []string {
	ids := make([]string, 0, len(r))
	for t, n := range r {
		if n != nil {
			ids = append(ids, string(t))
		}
	}
	sort.Strings(ids)
	return ids
}
