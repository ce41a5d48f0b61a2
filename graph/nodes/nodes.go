// Package nodes implements the pipeline node kinds: router, context
// builder, tool call, LLM worker and validator.
//
// Nodes record recoverable problems in the run context (llm_error,
// context_builder_error, tool_result) and return an error only when the
// run cannot continue. The controller turns a returned error into a
// phase-labeled failure.
package nodes

import (
	"github.com/dshills/agentpipe/graph"
	"github.com/dshills/agentpipe/graph/model/provider"
	"github.com/dshills/agentpipe/graph/store"
	"github.com/dshills/agentpipe/graph/tool"
)

// Deps are the collaborators the nodes need. Zero values are allowed: each
// node reports a missing collaborator through its own error field.
type Deps struct {
	// Store backs the context builder.
	Store store.Store

	// Models builds the chat model for the LLM worker.
	Models provider.Factory

	// ToolExecutor builds the executor for one sandbox. Defaults to
	// tool.NewFileExecutor.
	ToolExecutor func(sb *tool.Sandbox) (*tool.Executor, error)
}

// NewRegistry returns a fresh registry holding every node kind.
func NewRegistry(deps Deps) graph.Registry {
	return graph.Registry{
		graph.NodeRouter:         Router{},
		graph.NodeContextBuilder: &ContextBuilder{Store: deps.Store},
		graph.NodeToolCall:       &ToolCall{NewExecutor: deps.ToolExecutor},
		graph.NodeLLMWorker:      &LLMWorker{Models: deps.Models},
		graph.NodeValidator:      Validator{},
	}
}
