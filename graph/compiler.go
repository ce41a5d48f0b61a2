package graph

import "sync"

// Intent labels produced by the router.
const (
	IntentChat = "chat"
	IntentCode = "code"
)

// GraphBuilder returns a fresh workflow graph for one intent.
type GraphBuilder func() WorkflowGraph

// PlanCompiler maps intent labels to workflow graphs.
//
// It is table driven: new intents register a GraphBuilder and never touch
// the executor. Intents without an entry compile to the default chat
// pipeline.
type PlanCompiler struct {
	mu       sync.RWMutex
	builders map[string]GraphBuilder
	fallback GraphBuilder
}

// NewPlanCompiler returns a compiler with the chat and code intents bound to
// the default chat pipeline.
func NewPlanCompiler() *PlanCompiler {
	return &PlanCompiler{
		builders: map[string]GraphBuilder{
			IntentChat: ChatPipeline,
			IntentCode: ChatPipeline,
		},
		fallback: ChatPipeline,
	}
}

// Register binds an intent to a graph builder, replacing any previous one.
func (c *PlanCompiler) Register(intent string, build GraphBuilder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builders[intent] = build
}

// Compile returns the workflow graph for intent.
func (c *PlanCompiler) Compile(intent string) WorkflowGraph {
	c.mu.RLock()
	build, ok := c.builders[intent]
	c.mu.RUnlock()
	if !ok || build == nil {
		build = c.fallback
	}
	return build()
}

// ChatPipeline is the fixed four-node pipeline:
//
//	router -> context_builder -> llm_worker -> validator
func ChatPipeline() WorkflowGraph {
	return WorkflowGraph{
		Nodes: []string{
			string(NodeRouter),
			string(NodeContextBuilder),
			string(NodeLLMWorker),
			string(NodeValidator),
		},
		Edges: []WorkflowEdge{
			{From: string(NodeRouter), To: string(NodeContextBuilder)},
			{From: string(NodeContextBuilder), To: string(NodeLLMWorker)},
			{From: string(NodeLLMWorker), To: string(NodeValidator)},
		},
		Entry: string(NodeRouter),
	}
}

// WithToolCall splices a tool_call node between context_builder and
// llm_worker.
//
// If tool_call is already a node, g is returned unchanged, which makes the
// operation idempotent. Otherwise tool_call is appended to the nodes and the
// single edge context_builder -> llm_worker is replaced in place by
// context_builder -> tool_call and tool_call -> llm_worker. When that edge
// does not exist both new edges are appended instead. Every other edge keeps
// its relative order.
func WithToolCall(g WorkflowGraph) WorkflowGraph {
	tool := string(NodeToolCall)
	if g.HasNode(tool) {
		return g
	}

	out := WorkflowGraph{
		Nodes: append(append(make([]string, 0, len(g.Nodes)+1), g.Nodes...), tool),
		Edges: make([]WorkflowEdge, 0, len(g.Edges)+2),
		Entry: g.Entry,
	}

	spliced := false
	for _, e := range g.Edges {
		if !spliced && e.From == string(NodeContextBuilder) && e.To == string(NodeLLMWorker) {
			out.Edges = append(out.Edges,
				WorkflowEdge{From: string(NodeContextBuilder), To: tool},
				WorkflowEdge{From: tool, To: string(NodeLLMWorker)},
			)
			spliced = true
			continue
		}
		out.Edges = append(out.Edges, e)
	}
	if !spliced {
		out.Edges = append(out.Edges,
			WorkflowEdge{From: string(NodeContextBuilder), To: tool},
			WorkflowEdge{From: tool, To: string(NodeLLMWorker)},
		)
	}
	return out
}
