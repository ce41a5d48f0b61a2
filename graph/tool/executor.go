package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Request is one tool invocation.
type Request struct {
	ToolName       string
	Payload        map[string]any
	AllowWriteSafe bool
}

// Executor runs requests against a Registry and a set of implementations.
//
// Checks run in a fixed order, and the first failure is the result:
//
//  1. the tool is registered (tool_not_found)
//  2. the payload matches its schema (validation_error)
//  3. the tier permits it: write_safe needs AllowWriteSafe, system is
//     always refused (permission_denied)
//  4. an implementation exists (tool_not_implemented)
//  5. the implementation succeeds (execution_error, or the tool's own
//     *SandboxError payload)
type Executor struct {
	registry *Registry
	tools    map[string]Tool
}

// NewExecutor returns an Executor dispatching to tools by name.
func NewExecutor(registry *Registry, tools ...Tool) *Executor {
	m := make(map[string]Tool, len(tools))
	for _, t := range tools {
		if t != nil {
			m[t.Name()] = t
		}
	}
	return &Executor{registry: registry, tools: m}
}

// Execute runs req and reports whether it succeeded along with the result
// map. Failures always carry a "code" field.
func (e *Executor) Execute(ctx context.Context, req Request) (bool, map[string]any) {
	name := strings.TrimSpace(req.ToolName)
	def, ok := e.registry.Get(name)
	if !ok {
		return false, (&Error{Code: CodeToolNotFound, ToolName: name, Message: "Tool not found: " + name}).Payload()
	}

	input, err := e.registry.Validate(name, req.Payload)
	if err != nil {
		return false, failure(name, err)
	}

	switch def.Tier {
	case TierWriteSafe:
		if !req.AllowWriteSafe {
			return false, (&Error{
				Code:               CodePermissionDenied,
				ToolName:           name,
				Message:            "write_safe permission required",
				RequiredPermission: TierWriteSafe,
			}).Payload()
		}
	case TierSystem:
		return false, (&Error{
			Code:               CodePermissionDenied,
			ToolName:           name,
			Message:            "system permission is not enabled",
			RequiredPermission: TierSystem,
		}).Payload()
	}

	impl, ok := e.tools[name]
	if !ok {
		return false, (&Error{Code: CodeToolNotImplemented, ToolName: name, Message: "Tool handler not implemented: " + name}).Payload()
	}

	result, err := call(ctx, impl, input)
	if err != nil {
		return false, failure(name, err)
	}
	if result == nil {
		return false, (&Error{Code: CodeExecutionError, ToolName: name, Message: "Tool execution returned invalid result shape"}).Payload()
	}
	return true, result
}

// call runs the tool, converting a panic into an error.
func call(ctx context.Context, t Tool, input map[string]any) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Call(ctx, input)
}

func failure(name string, err error) map[string]any {
	var toolErr *Error
	if errors.As(err, &toolErr) {
		return toolErr.Payload()
	}
	var sbErr *SandboxError
	if errors.As(err, &sbErr) {
		return sbErr.Payload()
	}
	return (&Error{Code: CodeExecutionError, ToolName: name, Message: "Tool execution failed: " + err.Error()}).Payload()
}
