package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/agentpipe/graph/model"
	"github.com/dshills/agentpipe/graph/model/anthropic"
	"github.com/dshills/agentpipe/graph/model/google"
	"github.com/dshills/agentpipe/graph/model/openai"
)

func envOf(vars map[string]string) Env {
	return Env{Getenv: func(k string) string { return vars[k] }}
}

func TestEnvFactory(t *testing.T) {
	keys := envOf(map[string]string{
		"OPENAI_API_KEY":    "sk-test",
		"ANTHROPIC_API_KEY": "ak-test",
		"GEMINI_API_KEY":    "g-test",
	})

	tests := []struct {
		name     string
		spec     model.Spec
		env      Env
		check    func(model.ChatModel) bool
		wantErr  error
		errMatch string
	}{
		{
			name:  "openai",
			spec:  model.Spec{Name: "gpt-4o", Provider: "OpenAI"},
			env:   keys,
			check: func(m model.ChatModel) bool { o, ok := m.(*openai.ChatModel); return ok && o.ModelName() == "gpt-4o" },
		},
		{
			name:  "anthropic",
			spec:  model.Spec{Name: "claude-x", Provider: Anthropic},
			env:   keys,
			check: func(m model.ChatModel) bool { _, ok := m.(*anthropic.ChatModel); return ok },
		},
		{
			name:  "google falls back to GEMINI_API_KEY",
			spec:  model.Spec{Provider: Google},
			env:   keys,
			check: func(m model.ChatModel) bool { _, ok := m.(*google.ChatModel); return ok },
		},
		{
			name:  "echo",
			spec:  model.Spec{Provider: Echo},
			env:   envOf(nil),
			check: func(m model.ChatModel) bool { _, ok := m.(EchoModel); return ok },
		},
		{
			name:    "local",
			spec:    model.Spec{Filename: "tiny.gguf", Path: "models/tiny.gguf"},
			env:     keys,
			wantErr: ErrLocalRuntime,
		},
		{
			name:    "unknown",
			spec:    model.Spec{Provider: "carrier-pigeon"},
			env:     keys,
			wantErr: ErrUnknownProvider,
		},
		{
			name:     "missing key",
			spec:     model.Spec{Provider: OpenAI},
			env:      envOf(nil),
			errMatch: "OPENAI_API_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.env.New(tt.spec)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			case tt.errMatch != "":
				if err == nil || !strings.Contains(err.Error(), tt.errMatch) {
					t.Fatalf("err = %v, want mention of %s", err, tt.errMatch)
				}
			default:
				if err != nil {
					t.Fatalf("New: %v", err)
				}
				if !tt.check(m) {
					t.Fatalf("unexpected model %T", m)
				}
			}
		})
	}
}

func TestStatic(t *testing.T) {
	mock := &model.MockChatModel{}
	m, err := Static(mock).New(model.Spec{Provider: "anything"})
	if err != nil || m != mock {
		t.Fatalf("Static = %v, %v", m, err)
	}
}

func TestEchoModel(t *testing.T) {
	out, err := EchoModel{}.Chat(context.Background(), []model.Message{
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleUser, Content: "second"},
		{Role: model.RoleSystem, Content: "tool"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Text != "echo: second" {
		t.Errorf("text = %q", out.Text)
	}
}
