package tool

import (
	"context"
	"fmt"
)

// File tool names.
const (
	ReadFile      = "read_file"
	ListDirectory = "list_directory"
	FileInfo      = "file_info"
	GlobFiles     = "glob_files"
	WriteFile     = "write_file"
	DeleteFile    = "delete_file"
)

const defaultGlobResults = 100

var fileDefinitions = []Definition{
	{
		Name:        ReadFile,
		Description: "Read text file contents within sandbox roots",
		Tier:        TierReadOnly,
		InputSchema: `{
			"type": "object",
			"properties": {
				"path": {"type": "string", "minLength": 1},
				"encoding": {"type": "string", "enum": ["utf-8", "utf8"]}
			},
			"required": ["path"]
		}`,
	},
	{
		Name:        ListDirectory,
		Description: "List directory entries within sandbox roots",
		Tier:        TierReadOnly,
		InputSchema: `{
			"type": "object",
			"properties": {"path": {"type": "string", "minLength": 1}},
			"required": ["path"]
		}`,
	},
	{
		Name:        FileInfo,
		Description: "Return file metadata within sandbox roots",
		Tier:        TierReadOnly,
		InputSchema: `{
			"type": "object",
			"properties": {"path": {"type": "string", "minLength": 1}},
			"required": ["path"]
		}`,
	},
	{
		Name:        GlobFiles,
		Description: "Search file paths by glob pattern within sandbox roots",
		Tier:        TierReadOnly,
		InputSchema: `{
			"type": "object",
			"properties": {
				"root": {"type": "string", "minLength": 1},
				"pattern": {"type": "string", "minLength": 1},
				"max_results": {"type": "integer", "minimum": 1, "maximum": 1000}
			},
			"required": ["root", "pattern"]
		}`,
	},
	{
		Name:        WriteFile,
		Description: "Write text file contents within sandbox roots",
		Tier:        TierWriteSafe,
		InputSchema: `{
			"type": "object",
			"properties": {
				"path": {"type": "string", "minLength": 1},
				"content": {"type": "string"},
				"encoding": {"type": "string", "enum": ["utf-8", "utf8"]}
			},
			"required": ["path", "content"]
		}`,
	},
	{
		Name:        DeleteFile,
		Description: "Delete a file within sandbox roots",
		Tier:        TierWriteSafe,
		InputSchema: `{
			"type": "object",
			"properties": {"path": {"type": "string", "minLength": 1}},
			"required": ["path"]
		}`,
	},
}

// RegisterFileTools adds the file tool definitions to r.
func RegisterFileTools(r *Registry) error {
	for _, def := range fileDefinitions {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// FileTools returns the file tool implementations bound to sb.
func FileTools(sb *Sandbox) []Tool {
	return []Tool{
		&fileTool{name: ReadFile, run: func(in map[string]any) (map[string]any, error) {
			return sb.ReadText(stringArg(in, "path"))
		}},
		&fileTool{name: ListDirectory, run: func(in map[string]any) (map[string]any, error) {
			return sb.ListDir(stringArg(in, "path"))
		}},
		&fileTool{name: FileInfo, run: func(in map[string]any) (map[string]any, error) {
			return sb.FileInfo(stringArg(in, "path"))
		}},
		&fileTool{name: GlobFiles, run: func(in map[string]any) (map[string]any, error) {
			limit := defaultGlobResults
			if n, ok := in["max_results"].(float64); ok {
				limit = int(n)
			}
			return sb.Glob(stringArg(in, "root"), stringArg(in, "pattern"), limit)
		}},
		&fileTool{name: WriteFile, run: func(in map[string]any) (map[string]any, error) {
			return sb.WriteText(stringArg(in, "path"), stringArg(in, "content"))
		}},
		&fileTool{name: DeleteFile, run: func(in map[string]any) (map[string]any, error) {
			return sb.Delete(stringArg(in, "path"))
		}},
	}
}

type fileTool struct {
	name string
	run  func(input map[string]any) (map[string]any, error)
}

func (t *fileTool) Name() string { return t.name }

func (t *fileTool) Call(ctx context.Context, input map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.run(input)
}

func stringArg(in map[string]any, key string) string {
	switch v := in[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// NewFileExecutor returns an Executor with the file tools registered and
// bound to sb.
func NewFileExecutor(sb *Sandbox) (*Executor, error) {
	reg := NewRegistry()
	if err := RegisterFileTools(reg); err != nil {
		return nil, err
	}
	return NewExecutor(reg, FileTools(sb)...), nil
}
