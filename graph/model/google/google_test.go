package google

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/agentpipe/graph/model"
	"github.com/google/generative-ai-go/genai"
)

type fakeClient struct {
	resp    *genai.GenerateContentResponse
	err     error
	calls   int
	lastReq generateRequest
}

func (f *fakeClient) generateContent(_ context.Context, _ string, req generateRequest) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.lastReq = req
	return f.resp, f.err
}

func textResponse(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func TestBuildRequest(t *testing.T) {
	req := buildRequest([]model.Message{
		{Role: model.RoleSystem, Content: "rules"},
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleAssistant, Content: "reply"},
		{Role: model.RoleSystem, Content: "tool output"},
		{Role: model.RoleUser, Content: "second"},
	}, nil)

	if req.system != "rules\n\ntool output" {
		t.Errorf("system = %q", req.system)
	}
	if len(req.history) != 2 {
		t.Fatalf("history = %d, want 2", len(req.history))
	}
	if req.history[0].Role != "user" || req.history[1].Role != "model" {
		t.Errorf("history roles = %s, %s", req.history[0].Role, req.history[1].Role)
	}
	if len(req.parts) != 1 || req.parts[0] != genai.Text("second") {
		t.Errorf("parts = %v", req.parts)
	}
	if req.tools != nil {
		t.Errorf("tools = %v, want nil", req.tools)
	}
}

func TestConvertSchema(t *testing.T) {
	s := convertSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":  map[string]any{"type": "string", "description": "file"},
			"globs": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"path"},
	})
	if s.Type != genai.TypeObject {
		t.Errorf("type = %v", s.Type)
	}
	if s.Properties["path"].Type != genai.TypeString || s.Properties["path"].Description != "file" {
		t.Errorf("path = %+v", s.Properties["path"])
	}
	if s.Properties["globs"].Items == nil || s.Properties["globs"].Items.Type != genai.TypeString {
		t.Errorf("globs items = %+v", s.Properties["globs"].Items)
	}
	if len(s.Required) != 1 || s.Required[0] != "path" {
		t.Errorf("required = %v", s.Required)
	}
	if convertSchema(nil) != nil {
		t.Error("nil schema should convert to nil")
	}
}

func TestChat(t *testing.T) {
	t.Run("text and function calls", func(t *testing.T) {
		fc := &fakeClient{resp: textResponse(
			genai.Text("line one"),
			genai.Text("line two"),
			genai.FunctionCall{Name: "glob_files", Args: map[string]any{"pattern": "**/*.go"}},
		)}
		m := &ChatModel{modelName: "gemini-test", client: fc}

		out, err := m.Chat(context.Background(),
			[]model.Message{{Role: model.RoleUser, Content: "find go files"}},
			[]model.ToolSpec{{Name: "glob_files", Schema: map[string]any{"type": "object"}}},
		)
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if out.Text != "line one\nline two" {
			t.Errorf("text = %q", out.Text)
		}
		if len(out.ToolCalls) != 1 || out.ToolCalls[0].Input["pattern"] != "**/*.go" {
			t.Errorf("tool calls = %+v", out.ToolCalls)
		}
		if len(fc.lastReq.tools) != 1 {
			t.Errorf("tools not forwarded")
		}
	})

	t.Run("prompt blocked", func(t *testing.T) {
		fc := &fakeClient{resp: &genai.GenerateContentResponse{
			PromptFeedback: &genai.PromptFeedback{
				BlockReason: genai.BlockReasonSafety,
				SafetyRatings: []*genai.SafetyRating{
					{Category: genai.HarmCategoryHarassment, Blocked: true},
				},
			},
		}}
		m := &ChatModel{modelName: "gemini-test", client: fc}

		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil)
		var safety *SafetyFilterError
		if !errors.As(err, &safety) {
			t.Fatalf("err = %v, want SafetyFilterError", err)
		}
		if safety.Category() != genai.HarmCategoryHarassment.String() {
			t.Errorf("category = %q", safety.Category())
		}
	})

	t.Run("response stopped for safety", func(t *testing.T) {
		fc := &fakeClient{resp: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
		}}
		m := &ChatModel{modelName: "gemini-test", client: fc}
		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil)
		var safety *SafetyFilterError
		if !errors.As(err, &safety) || safety.Category() != "unknown" {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("no user content", func(t *testing.T) {
		fc := &fakeClient{}
		m := &ChatModel{modelName: "gemini-test", client: fc}
		if _, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleSystem, Content: "only rules"}}, nil); err == nil {
			t.Fatal("expected error")
		}
		if fc.calls != 0 {
			t.Error("client should not be called")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		m := &ChatModel{modelName: "gemini-test", client: &fakeClient{}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := m.Chat(ctx, nil, nil); !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("missing api key", func(t *testing.T) {
		m := NewChatModel("", "")
		if m.ModelName() != DefaultModel {
			t.Errorf("model = %q", m.ModelName())
		}
		if _, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil); err == nil {
			t.Fatal("expected error")
		}
	})
}
