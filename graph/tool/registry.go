package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const emptyObjectSchema = `{"type":"object","properties":{}}`

type registered struct {
	def    Definition
	schema *jsonschema.Schema
}

// Registry holds tool definitions and their compiled input schemas.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// Register adds def. Registering a name twice is an error, as is a schema
// that does not compile.
func (r *Registry) Register(def Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return errors.New("tool name is required")
	}
	switch def.Tier {
	case TierReadOnly, TierWriteSafe, TierSystem:
	default:
		return fmt.Errorf("tool %s: unknown permission tier %q", def.Name, def.Tier)
	}
	if strings.TrimSpace(def.InputSchema) == "" {
		def.InputSchema = emptyObjectSchema
	}
	schema, err := compileSchema(def.Name, def.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %s schema: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[def.Name]; dup {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	r.tools[def.Name] = registered{def: def, schema: schema}
	return nil
}

func compileSchema(name, doc string) (*jsonschema.Schema, error) {
	url := name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(doc)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t.def, ok
}

// List returns every definition sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks payload against the tool's input schema and returns it
// normalized to generic JSON values. A nil payload validates as {}.
// Failures are *Error with code tool_not_found or validation_error.
func (r *Registry) Validate(name string, payload map[string]any) (map[string]any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &Error{Code: CodeToolNotFound, ToolName: name, Message: "Tool not found: " + name}
	}

	normalized, err := normalize(payload)
	if err != nil {
		return nil, &Error{
			Code:     CodeValidationError,
			ToolName: name,
			Message:  "Input validation failed",
			Errors:   []string{err.Error()},
		}
	}
	if err := t.schema.Validate(normalized); err != nil {
		return nil, &Error{
			Code:     CodeValidationError,
			ToolName: name,
			Message:  "Input validation failed",
			Errors:   violations(err),
		}
	}
	return normalized, nil
}

// normalize round-trips payload through JSON so Go numeric and slice types
// become the generic forms the schema validator understands.
func normalize(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func violations(err error) []string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range verr.BasicOutput().Errors {
		if e.Error == "" || strings.HasPrefix(e.Error, "doesn't validate with") {
			continue
		}
		loc := e.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		out = append(out, loc+": "+e.Error)
	}
	if len(out) == 0 {
		out = []string{verr.Error()}
	}
	return out
}

// ExportSchema returns the public description of one tool.
func (r *Registry) ExportSchema(name string) (map[string]any, error) {
	def, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	var schema any
	if err := json.Unmarshal([]byte(def.InputSchema), &schema); err != nil {
		return nil, fmt.Errorf("tool %s schema: %w", name, err)
	}
	return map[string]any{
		"name":            def.Name,
		"description":     def.Description,
		"permission_tier": string(def.Tier),
		"input_schema":    schema,
	}, nil
}

// ExportAll returns ExportSchema for every tool, sorted by name.
func (r *Registry) ExportAll() ([]map[string]any, error) {
	defs := r.List()
	out := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		s, err := r.ExportSchema(d.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
