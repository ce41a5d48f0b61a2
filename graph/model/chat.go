// Package model holds the LLM abstraction used by the llm_worker node and
// the model-selection collaborator that picks which model to run.
//
// The package has three parts:
//   - ChatModel: a provider-neutral chat interface with adapters under
//     model/openai, model/anthropic and model/google
//   - Catalog: the YAML list of models available to this deployment
//   - Selector: hardware profiling plus catalog lookup, consulted by the
//     controller during planning
package model

import "context"

// ChatModel is a provider-neutral chat completion interface.
//
// Implementations must honor ctx cancellation and return an error rather
// than an empty ChatOut when the provider call fails. The llm_worker node
// records that error as llm_generation_error instead of failing the task.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is one turn of a conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser, RoleAssistant.
	Role string

	// Content is the text of the turn.
	Content string
}

// Standard message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes a tool the model may call. Schema is a JSON Schema
// object for the tool input.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ChatOut is a model response: text, tool calls, or both.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name  string
	Input map[string]any
}
