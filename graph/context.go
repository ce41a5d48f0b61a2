package graph

import (
	"strings"

	"github.com/dshills/agentpipe/graph/model"
	"github.com/dshills/agentpipe/graph/store"
)

// ToolCallRequest asks the pipeline to run one sandboxed tool before the LLM
// step. Payload is kept untyped so a malformed request can be reported as
// data by the tool node instead of failing request decoding.
type ToolCallRequest struct {
	ToolName       string   `json:"tool_name"`
	Payload        any      `json:"payload,omitempty"`
	AllowWriteSafe bool     `json:"allow_write_safe,omitempty"`
	SandboxRoots   []string `json:"sandbox_roots,omitempty"`
}

// RunContext is the mutable record threaded through every node of one run.
//
// Load-bearing fields are typed. Extra is an open map for extension data
// that no core component depends on.
type RunContext struct {
	UserInput string `json:"user_input"`
	TaskID    string `json:"task_id"`

	// Set by the router.
	Intent string `json:"intent,omitempty"`

	// Set during PLAN from the model-selection collaborator.
	SelectedModel *model.Spec `json:"selected_model,omitempty"`
	LLMModelPath  string      `json:"llm_model_path,omitempty"`
	SkipLLM       bool        `json:"skip_llm,omitempty"`

	// Set by the context builder.
	WorkingState        *store.Task `json:"working_state,omitempty"`
	ContextBuilderError string      `json:"context_builder_error,omitempty"`

	// Tool invocation request and its outcome.
	ToolCall       *ToolCallRequest `json:"tool_call,omitempty"`
	ToolOK         bool             `json:"tool_ok,omitempty"`
	ToolResult     map[string]any   `json:"tool_result,omitempty"`
	ToolName       string           `json:"tool_name,omitempty"`
	ToolCallStatus string           `json:"tool_call_status,omitempty"`

	// LLM step outcome.
	LLMOutput string `json:"llm_output"`
	LLMError  string `json:"llm_error,omitempty"`

	// Set by the validator.
	IsValid bool `json:"is_valid"`

	ControllerError string `json:"controller_error,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// NewRunContext returns a context seeded with the user input and task id.
func NewRunContext(userInput, taskID string) *RunContext {
	return &RunContext{UserInput: userInput, TaskID: taskID}
}

// HasOutput reports whether LLMOutput holds non-whitespace text.
func (rc *RunContext) HasOutput() bool {
	return strings.TrimSpace(rc.LLMOutput) != ""
}

// SetExtra stores an extension value, allocating the map on first use.
func (rc *RunContext) SetExtra(key string, value any) {
	if rc.Extra == nil {
		rc.Extra = make(map[string]any)
	}
	rc.Extra[key] = value
}
