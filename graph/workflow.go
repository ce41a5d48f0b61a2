package graph

import (
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/zeebo/blake3"
)

// WorkflowEdge is an ordered pair of node identifiers.
type WorkflowEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// WorkflowGraph describes one task's execution plan.
//
// A WorkflowGraph is treated as an immutable value: every method that
// changes shape (see WithToolCall) returns a new graph and never mutates the
// receiver's slices.
//
// Invariants (checked by DAGExecutor, not by construction):
//   - Entry is one of Nodes
//   - every edge endpoint is one of Nodes
//   - the edges induce no cycle
//
// Replay equality is defined on the canonical form (see Canonical), not on
// insertion order.
type WorkflowGraph struct {
	Nodes []string       `json:"nodes"`
	Edges []WorkflowEdge `json:"edges"`
	Entry string         `json:"entry"`
}

// NewWorkflowGraph builds a graph from copies of the given slices.
func NewWorkflowGraph(nodes []string, edges []WorkflowEdge, entry string) WorkflowGraph {
	return WorkflowGraph{
		Nodes: append([]string(nil), nodes...),
		Edges: append([]WorkflowEdge(nil), edges...),
		Entry: entry,
	}
}

// Clone returns a deep copy of g.
func (g WorkflowGraph) Clone() WorkflowGraph {
	return NewWorkflowGraph(g.Nodes, g.Edges, g.Entry)
}

// HasNode reports whether id is one of the graph's nodes.
func (g WorkflowGraph) HasNode(id string) bool {
	for _, n := range g.Nodes {
		if n == id {
			return true
		}
	}
	return false
}

// Canonical returns a copy with nodes sorted lexicographically and edges
// sorted by (from, to).
func (g WorkflowGraph) Canonical() WorkflowGraph {
	c := g.Clone()
	sort.Strings(c.Nodes)
	sort.Slice(c.Edges, func(i, j int) bool {
		a, b := c.Edges[i], c.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	return c
}

// Equal compares the canonical forms of g and other.
func (g WorkflowGraph) Equal(other WorkflowGraph) bool {
	a, b := g.Canonical(), other.Canonical()
	if a.Entry != b.Entry || len(a.Nodes) != len(b.Nodes) || len(a.Edges) != len(b.Edges) {
		return false
	}
	for i := range a.Nodes {
		if a.Nodes[i] != b.Nodes[i] {
			return false
		}
	}
	for i := range a.Edges {
		if a.Edges[i] != b.Edges[i] {
			return false
		}
	}
	return true
}

// CanonicalJSON renders the canonical form as compact JSON. Two graphs that
// are Equal always produce identical bytes.
func (g WorkflowGraph) CanonicalJSON() ([]byte, error) {
	c := g.Canonical()
	if c.Nodes == nil {
		c.Nodes = []string{}
	}
	if c.Edges == nil {
		c.Edges = []WorkflowEdge{}
	}
	return json.Marshal(c)
}

// Fingerprint returns the hex BLAKE3 digest of CanonicalJSON.
func (g WorkflowGraph) Fingerprint() string {
	b, err := g.CanonicalJSON()
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
