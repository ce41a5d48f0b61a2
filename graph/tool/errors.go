package tool

// Executor result codes.
const (
	CodeToolNotFound       = "tool_not_found"
	CodeValidationError    = "validation_error"
	CodePermissionDenied   = "permission_denied"
	CodeToolNotImplemented = "tool_not_implemented"
	CodeExecutionError     = "execution_error"
)

// Error is a structured executor failure.
type Error struct {
	Code     string
	ToolName string
	Message  string

	// Errors lists individual schema violations for validation_error.
	Errors []string

	// RequiredPermission is set for permission_denied.
	RequiredPermission PermissionTier
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Payload renders e as a tool result map.
func (e *Error) Payload() map[string]any {
	p := map[string]any{
		"code":      e.Code,
		"tool_name": e.ToolName,
		"message":   e.Message,
	}
	switch e.Code {
	case CodeToolNotFound, CodeValidationError:
		errs := e.Errors
		if errs == nil {
			errs = []string{}
		}
		p["errors"] = errs
	case CodePermissionDenied:
		p["required_permission"] = string(e.RequiredPermission)
	}
	return p
}

// Sandbox result codes.
const (
	CodeOK                     = "ok"
	CodeInvalidPath            = "invalid_path"
	CodePathOutsideAllowedRoot = "path_outside_allowed_root"
	CodeNotFound               = "not_found"
	CodeNotAFile               = "not_a_file"
	CodeNotADirectory          = "not_a_directory"
	CodeReadTooLarge           = "read_too_large"
	CodeWriteTooLarge          = "write_too_large"
	CodeWriteNotAllowed        = "write_not_allowed"
	CodeDeleteNotAllowed       = "delete_not_allowed"
	CodeListLimitExceeded      = "list_limit_exceeded"
	CodeSearchLimitExceeded    = "search_limit_exceeded"
	CodeInvalidPattern         = "invalid_pattern"
	CodeIOError                = "io_error"
)

// SandboxError is a refused or failed sandbox operation.
type SandboxError struct {
	Code    string
	Message string
	Extra   map[string]any
}

func (e *SandboxError) Error() string {
	return e.Code + ": " + e.Message
}

// Payload renders e as a tool result map.
func (e *SandboxError) Payload() map[string]any {
	p := make(map[string]any, len(e.Extra)+2)
	for k, v := range e.Extra {
		p[k] = v
	}
	p["code"] = e.Code
	p["message"] = e.Message
	return p
}

func sandboxErr(code, msg string, kv ...any) *SandboxError {
	e := &SandboxError{Code: code, Message: msg}
	if len(kv) > 0 {
		e.Extra = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			if k, ok := kv[i].(string); ok {
				e.Extra[k] = kv[i+1]
			}
		}
	}
	return e
}
