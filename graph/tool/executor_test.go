package tool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestExecutor(t *testing.T, extra ...Tool) (*Executor, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	sb, err := NewSandbox(SandboxConfig{AllowedRoots: []string{root}, AllowWrite: true, AllowDelete: true})
	if err != nil {
		t.Fatal(err)
	}
	reg := NewRegistry()
	if err := RegisterFileTools(reg); err != nil {
		t.Fatal(err)
	}
	for _, def := range []Definition{
		{Name: "reboot", Tier: TierSystem},
		{Name: "unwired", Tier: TierReadOnly},
		{Name: "flaky", Tier: TierReadOnly},
		{Name: "panicky", Tier: TierReadOnly},
		{Name: "shapeless", Tier: TierReadOnly},
	} {
		if err := reg.Register(def); err != nil {
			t.Fatal(err)
		}
	}
	tools := append(FileTools(sb), extra...)
	return NewExecutor(reg, tools...), root
}

type panicTool struct{}

func (panicTool) Name() string { return "panicky" }
func (panicTool) Call(context.Context, map[string]any) (map[string]any, error) {
	panic("kaboom")
}

type nilTool struct{}

func (nilTool) Name() string { return "shapeless" }
func (nilTool) Call(context.Context, map[string]any) (map[string]any, error) {
	return nil, nil
}

func TestExecutorExecute(t *testing.T) {
	flaky := &MockTool{ToolName: "flaky", Err: errors.New("disk on fire")}
	exec, root := newTestExecutor(t, flaky, panicTool{}, nilTool{})

	tests := []struct {
		name     string
		req      Request
		wantOK   bool
		wantCode string
	}{
		{"read", Request{ToolName: ReadFile, Payload: map[string]any{"path": "notes.txt"}}, true, CodeOK},
		{"unknown", Request{ToolName: "shell"}, false, CodeToolNotFound},
		{"invalid payload", Request{ToolName: ReadFile, Payload: map[string]any{"path": 1}}, false, CodeValidationError},
		{"write without permission", Request{ToolName: WriteFile, Payload: map[string]any{"path": "x.txt", "content": "x"}}, false, CodePermissionDenied},
		{"write with permission", Request{ToolName: WriteFile, Payload: map[string]any{"path": "x.txt", "content": "x"}, AllowWriteSafe: true}, true, CodeOK},
		{"system always denied", Request{ToolName: "reboot", AllowWriteSafe: true}, false, CodePermissionDenied},
		{"no implementation", Request{ToolName: "unwired"}, false, CodeToolNotImplemented},
		{"tool error", Request{ToolName: "flaky"}, false, CodeExecutionError},
		{"tool panic", Request{ToolName: "panicky"}, false, CodeExecutionError},
		{"nil result", Request{ToolName: "shapeless"}, false, CodeExecutionError},
		{"sandbox refusal is data", Request{ToolName: ReadFile, Payload: map[string]any{"path": "../outside.txt"}}, false, CodePathOutsideAllowedRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, result := exec.Execute(context.Background(), tt.req)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v (result %v)", ok, tt.wantOK, result)
			}
			if result["code"] != tt.wantCode {
				t.Fatalf("code = %v, want %s (result %v)", result["code"], tt.wantCode, result)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(root, "x.txt")); err != nil {
		t.Errorf("write_file did not create file: %v", err)
	}
	if flaky.CallCount() != 1 {
		t.Errorf("flaky calls = %d, want 1", flaky.CallCount())
	}
}

func TestExecutorPermissionPayload(t *testing.T) {
	exec, _ := newTestExecutor(t)
	_, result := exec.Execute(context.Background(), Request{ToolName: DeleteFile, Payload: map[string]any{"path": "notes.txt"}})
	if result["required_permission"] != string(TierWriteSafe) {
		t.Errorf("required_permission = %v", result["required_permission"])
	}
	if result["message"] != "write_safe permission required" {
		t.Errorf("message = %v", result["message"])
	}
}

func TestNewFileExecutor(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	sb, err := NewSandbox(SandboxConfig{AllowedRoots: []string{root}})
	if err != nil {
		t.Fatal(err)
	}
	exec, err := NewFileExecutor(sb)
	if err != nil {
		t.Fatal(err)
	}
	ok, result := exec.Execute(context.Background(), Request{ToolName: ListDirectory, Payload: map[string]any{"path": "."}})
	if !ok {
		t.Fatalf("list_directory failed: %v", result)
	}
	entries, _ := result["entries"].([]string)
	if len(entries) != 1 || entries[0] != "sub" {
		t.Errorf("entries = %v", result["entries"])
	}
}

func TestMockTool(t *testing.T) {
	m := &MockTool{ToolName: "m", Responses: []map[string]any{{"n": 1}, {"n": 2}}}
	ctx := context.Background()
	for _, want := range []int{1, 2, 2} {
		out, err := m.Call(ctx, map[string]any{"q": "x"})
		if err != nil || out["n"] != want {
			t.Fatalf("Call = %v, %v; want n=%d", out, err, want)
		}
	}
	if m.CallCount() != 3 || m.Calls[0].Input["q"] != "x" {
		t.Errorf("calls = %+v", m.Calls)
	}
	m.Reset()
	if m.CallCount() != 0 {
		t.Error("Reset did not clear calls")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := m.Call(cancelled, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	empty := &MockTool{ToolName: "e"}
	if out, err := empty.Call(ctx, nil); err != nil || out == nil {
		t.Errorf("empty mock = %v, %v", out, err)
	}
}
