// Package tool is the sandboxed tool subsystem behind the tool_call node.
//
// A Registry holds tool Definitions: name, description, permission tier and
// a JSON Schema for the input. An Executor looks a request up in the
// registry, validates the payload, enforces the permission tier, and then
// dispatches to a Tool implementation. File tools operate through a Sandbox
// that confines every path to a set of allowed roots.
//
// Every failure is reported as data: Execute returns ok=false and a result
// map carrying a "code" field. Nothing is returned as a Go error.
package tool

import "context"

// Tool is an executable tool.
//
// Call receives the validated input decoded as generic JSON values (numbers
// are float64). A *SandboxError return is reported as the tool's own
// failure result; any other error becomes execution_error.
type Tool interface {
	Name() string
	Call(ctx context.Context, input map[string]any) (map[string]any, error)
}

// PermissionTier classifies what a tool is allowed to do.
type PermissionTier string

const (
	// TierReadOnly tools never modify anything.
	TierReadOnly PermissionTier = "read_only"

	// TierWriteSafe tools modify files inside the sandbox and run only when
	// the request sets AllowWriteSafe.
	TierWriteSafe PermissionTier = "write_safe"

	// TierSystem tools are always denied.
	TierSystem PermissionTier = "system"
)

// Definition describes a registered tool.
type Definition struct {
	Name        string
	Description string
	Tier        PermissionTier

	// InputSchema is a JSON Schema document for the tool's input.
	InputSchema string
}
