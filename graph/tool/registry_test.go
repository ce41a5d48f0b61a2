package tool

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	if err := RegisterFileTools(r); err != nil {
		t.Fatalf("RegisterFileTools: %v", err)
	}

	if err := r.Register(Definition{Name: ReadFile, Tier: TierReadOnly}); err == nil {
		t.Error("duplicate registration accepted")
	}
	if err := r.Register(Definition{Name: "", Tier: TierReadOnly}); err == nil {
		t.Error("empty name accepted")
	}
	if err := r.Register(Definition{Name: "odd", Tier: "root"}); err == nil {
		t.Error("unknown tier accepted")
	}
	if err := r.Register(Definition{Name: "broken", Tier: TierReadOnly, InputSchema: `{"type": 12}`}); err == nil {
		t.Error("invalid schema accepted")
	}
	if err := r.Register(Definition{Name: "noargs", Tier: TierReadOnly}); err != nil {
		t.Errorf("empty schema should default: %v", err)
	}

	var names []string
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	want := "delete_file,file_info,glob_files,list_directory,noargs,read_file,write_file"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("List = %s, want %s", got, want)
	}
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry()
	if err := RegisterFileTools(r); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		tool     string
		payload  map[string]any
		wantCode string
	}{
		{"valid", ReadFile, map[string]any{"path": "a.txt"}, ""},
		{"go int normalized", GlobFiles, map[string]any{"root": ".", "pattern": "*", "max_results": 5}, ""},
		{"unknown tool", "shell", nil, CodeToolNotFound},
		{"missing required", ReadFile, map[string]any{}, CodeValidationError},
		{"nil payload", ReadFile, nil, CodeValidationError},
		{"empty path", ReadFile, map[string]any{"path": ""}, CodeValidationError},
		{"wrong type", WriteFile, map[string]any{"path": "a", "content": 3}, CodeValidationError},
		{"out of range", GlobFiles, map[string]any{"root": ".", "pattern": "*", "max_results": 5000}, CodeValidationError},
		{"bad encoding", ReadFile, map[string]any{"path": "a", "encoding": "latin-1"}, CodeValidationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Validate(tt.tool, tt.payload)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				if out == nil {
					t.Fatal("nil normalized payload")
				}
				return
			}
			var te *Error
			if !errors.As(err, &te) || te.Code != tt.wantCode {
				t.Fatalf("err = %v, want code %s", err, tt.wantCode)
			}
			if tt.wantCode == CodeValidationError && len(te.Errors) == 0 {
				t.Error("validation error lists no violations")
			}
		})
	}
}

func TestRegistryExport(t *testing.T) {
	r := NewRegistry()
	if err := RegisterFileTools(r); err != nil {
		t.Fatal(err)
	}
	s, err := r.ExportSchema(WriteFile)
	if err != nil {
		t.Fatalf("ExportSchema: %v", err)
	}
	if s["permission_tier"] != "write_safe" {
		t.Errorf("tier = %v", s["permission_tier"])
	}
	schema, ok := s["input_schema"].(map[string]any)
	if !ok || schema["type"] != "object" {
		t.Errorf("input_schema = %v", s["input_schema"])
	}

	if _, err := r.ExportSchema("nope"); err == nil {
		t.Error("expected error for unknown tool")
	}

	all, err := r.ExportAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(fileDefinitions) || all[0]["name"] != DeleteFile {
		t.Errorf("ExportAll = %d entries, first %v", len(all), all[0]["name"])
	}
}

func TestErrorPayload(t *testing.T) {
	p := (&Error{Code: CodePermissionDenied, ToolName: "x", Message: "m", RequiredPermission: TierSystem}).Payload()
	if p["required_permission"] != "system" || p["code"] != CodePermissionDenied {
		t.Errorf("payload = %v", p)
	}
	if _, ok := p["errors"]; ok {
		t.Error("permission_denied should not carry errors")
	}

	p = (&Error{Code: CodeToolNotFound, ToolName: "x", Message: "m"}).Payload()
	if errs, ok := p["errors"].([]string); !ok || len(errs) != 0 {
		t.Errorf("errors = %#v, want empty list", p["errors"])
	}
}
