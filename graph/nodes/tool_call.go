package nodes

import (
	"context"

	"github.com/dshills/agentpipe/graph"
	"github.com/dshills/agentpipe/graph/tool"
)

// Tool request error codes, reported in tool_result.
const (
	ErrCodeToolCallMissing     = "tool_call_missing"
	ErrCodeToolNameMissing     = "tool_name_missing"
	ErrCodeInvalidPayload      = "invalid_payload"
	ErrCodeSandboxRootsMissing = "sandbox_roots_missing"
	ErrCodeSandboxRootsInvalid = "sandbox_roots_invalid"
)

// Tool call statuses.
const (
	ToolCallExecuted = "executed"
	ToolCallFailed   = "failed"
)

// ToolCall runs the request's tool inside a sandbox built from its roots.
// Write-safe tools, and deletion, are enabled only when the request allows
// them. Every failure is reported as data; Execute never returns an error.
type ToolCall struct {
	// NewExecutor defaults to tool.NewFileExecutor.
	NewExecutor func(sb *tool.Sandbox) (*tool.Executor, error)
}

// Execute implements graph.Node.
func (n *ToolCall) Execute(ctx context.Context, rc *graph.RunContext) (*graph.RunContext, error) {
	req := rc.ToolCall
	if req == nil {
		return rejectTool(rc, "", ErrCodeToolCallMissing, "tool_call payload is missing"), nil
	}
	if req.ToolName == "" {
		return rejectTool(rc, "", ErrCodeToolNameMissing, "tool_name is required"), nil
	}

	var payload map[string]any
	switch p := req.Payload.(type) {
	case nil:
		payload = map[string]any{}
	case map[string]any:
		payload = p
	default:
		return rejectTool(rc, req.ToolName, ErrCodeInvalidPayload, "payload must be an object"), nil
	}

	if len(req.SandboxRoots) == 0 {
		return rejectTool(rc, req.ToolName, ErrCodeSandboxRootsMissing, "sandbox_roots must be a non-empty list"), nil
	}
	sb, err := tool.NewSandbox(tool.SandboxConfig{
		AllowedRoots: req.SandboxRoots,
		AllowWrite:   req.AllowWriteSafe,
		AllowDelete:  req.AllowWriteSafe,
	})
	if err != nil {
		return rejectTool(rc, req.ToolName, ErrCodeSandboxRootsInvalid, err.Error()), nil
	}

	newExecutor := n.NewExecutor
	if newExecutor == nil {
		newExecutor = tool.NewFileExecutor
	}
	exec, err := newExecutor(sb)
	if err != nil {
		return rejectTool(rc, req.ToolName, tool.CodeExecutionError, err.Error()), nil
	}

	ok, result := exec.Execute(ctx, tool.Request{
		ToolName:       req.ToolName,
		Payload:        payload,
		AllowWriteSafe: req.AllowWriteSafe,
	})
	rc.ToolOK = ok
	rc.ToolResult = result
	rc.ToolName = req.ToolName
	rc.ToolCallStatus = ToolCallFailed
	if ok {
		rc.ToolCallStatus = ToolCallExecuted
	}
	return rc, nil
}

func rejectTool(rc *graph.RunContext, name, code, message string) *graph.RunContext {
	rc.ToolOK = false
	rc.ToolResult = map[string]any{"code": code, "message": message}
	rc.ToolName = name
	rc.ToolCallStatus = ToolCallFailed
	return rc
}
