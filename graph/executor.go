package graph

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
)

// DAGExecutor validates workflow graphs against a node registry and computes
// their execution order.
//
// Ordering is Kahn's algorithm with a ready queue that always yields the
// lexicographically smallest ready node id, and adjacency lists sorted the
// same way. For a fixed graph the order is therefore invariant across runs
// and independent of registry map iteration order.
//
// DAGExecutor is stateless and safe for concurrent use.
type DAGExecutor struct{}

// NewDAGExecutor returns a DAGExecutor.
func NewDAGExecutor() *DAGExecutor {
	return &DAGExecutor{}
}

// Validate checks g against the registry. Checks run in a fixed order so
// the reported error is deterministic:
//
//  1. at least one node (ErrEmptyGraph)
//  2. node ids unique (ErrDuplicateNode)
//  3. entry is a node (ErrEntryNotFound)
//  4. every node has an implementation (*MissingNodeImplementationError,
//     listing all missing ids sorted)
//  5. every edge endpoint is a node (ErrUnknownEdgeEndpoint)
func (x *DAGExecutor) Validate(g WorkflowGraph, registry Registry) error {
	if len(g.Nodes) == 0 {
		return &GraphError{Kind: ErrEmptyGraph}
	}

	nodeSet := make(map[string]struct{}, len(g.Nodes))
	for _, id := range g.Nodes {
		if _, dup := nodeSet[id]; dup {
			return graphErrorf(ErrDuplicateNode, "%q", id)
		}
		nodeSet[id] = struct{}{}
	}

	if _, ok := nodeSet[g.Entry]; !ok {
		return graphErrorf(ErrEntryNotFound, "%q", g.Entry)
	}

	var missing []string
	for _, id := range g.Nodes {
		if _, ok := registry.Lookup(id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingNodeImplementationError{Missing: missing}
	}

	for _, e := range g.Edges {
		if _, ok := nodeSet[e.From]; !ok {
			return graphErrorf(ErrUnknownEdgeEndpoint, "%q", e.From)
		}
		if _, ok := nodeSet[e.To]; !ok {
			return graphErrorf(ErrUnknownEdgeEndpoint, "%q", e.To)
		}
	}
	return nil
}

// TopologicalOrder returns the deterministic execution order of g. It does
// not consult any registry; edges must already reference known nodes.
// A cycle yields ErrCycleDetected and no partial order.
func (x *DAGExecutor) TopologicalOrder(g WorkflowGraph) ([]string, error) {
	indegree := make(map[string]int, len(g.Nodes))
	for _, id := range g.Nodes {
		indegree[id] = 0
	}

	adjacency := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		if _, ok := indegree[e.To]; !ok {
			return nil, graphErrorf(ErrUnknownEdgeEndpoint, "%q", e.To)
		}
		if _, ok := indegree[e.From]; !ok {
			return nil, graphErrorf(ErrUnknownEdgeEndpoint, "%q", e.From)
		}
		adjacency[e.From] = append(adjacency[e.From], e.To)
		indegree[e.To]++
	}
	for from := range adjacency {
		sort.Strings(adjacency[from])
	}

	ready := &readyQueue{}
	for id, deg := range indegree {
		if deg == 0 {
			*ready = append(*ready, id)
		}
	}
	heap.Init(ready)

	ordered := make([]string, 0, len(indegree))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		ordered = append(ordered, id)
		for _, downstream := range adjacency[id] {
			indegree[downstream]--
			if indegree[downstream] == 0 {
				heap.Push(ready, downstream)
			}
		}
	}

	if len(ordered) != len(indegree) {
		return nil, graphErrorf(ErrCycleDetected, "%d of %d nodes ordered", len(ordered), len(indegree))
	}
	return ordered, nil
}

// ResolveExecutionOrder validates g against the registry and returns its
// topological order. Errors are returned before anything executes.
func (x *DAGExecutor) ResolveExecutionOrder(g WorkflowGraph, registry Registry) ([]string, error) {
	if err := x.Validate(g, registry); err != nil {
		return nil, err
	}
	return x.TopologicalOrder(g)
}

// Execute resolves the order and threads rc through each node's Execute in
// that order, returning the final context. It performs no tracing; the
// Controller wraps nodes itself. The first node error stops execution and is
// returned wrapped with the node id.
func (x *DAGExecutor) Execute(ctx context.Context, g WorkflowGraph, registry Registry, rc *RunContext) (*RunContext, error) {
	order, err := x.ResolveExecutionOrder(g, registry)
	if err != nil {
		return rc, err
	}
	for _, id := range order {
		node, _ := registry.Lookup(id)
		next, err := node.Execute(ctx, rc)
		if err != nil {
			return rc, fmt.Errorf("node %s: %w", id, err)
		}
		if next != nil {
			rc = next
		}
	}
	return rc, nil
}

// readyQueue is a min-heap of node ids.
type readyQueue []string

func (q readyQueue) Len() int           { return len(q) }
func (q readyQueue) Less(i, j int) bool { return q[i] < q[j] }
func (q readyQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) { *q = append(*q, x.(string)) }

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
