package nodes

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dshills/agentpipe/graph"
	"github.com/dshills/agentpipe/graph/model"
	"github.com/dshills/agentpipe/graph/model/provider"
)

// LLM worker error codes. Runtime and generation failures carry a
// ": <detail>" suffix.
const (
	ErrCodeModelPathMissing   = "llm_model_path_missing"
	ErrCodeRuntimeUnavailable = "llm_runtime_unavailable"
	ErrCodeGenerationError    = "llm_generation_error"
)

// LLMWorker asks the selected model for a reply.
//
// The prompt is the task's message history when the context builder loaded
// one, otherwise the bare user input. A tool result, when present, follows
// as a system message. Failures leave llm_output empty and set llm_error.
type LLMWorker struct {
	Models provider.Factory
}

// Execute implements graph.Node.
func (w *LLMWorker) Execute(ctx context.Context, rc *graph.RunContext) (*graph.RunContext, error) {
	spec, ok := resolveModel(rc)
	if !ok {
		rc.LLMOutput = ""
		rc.LLMError = ErrCodeModelPathMissing
		return rc, nil
	}

	factory := w.Models
	if factory == nil {
		factory = provider.Env{}
	}
	chat, err := factory.New(spec)
	if err != nil {
		rc.LLMOutput = ""
		rc.LLMError = ErrCodeRuntimeUnavailable + ": " + err.Error()
		return rc, nil
	}

	out, err := chat.Chat(ctx, promptMessages(rc), nil)
	if err != nil {
		rc.LLMOutput = ""
		rc.LLMError = ErrCodeGenerationError + ": " + err.Error()
		return rc, nil
	}
	rc.LLMOutput = out.Text
	return rc, nil
}

// resolveModel returns the spec to run. An explicit LLMModelPath overrides
// the catalog path. Local entries need a path; remote ones do not.
func resolveModel(rc *graph.RunContext) (model.Spec, bool) {
	var spec model.Spec
	if rc.SelectedModel != nil {
		spec = *rc.SelectedModel
	}
	if rc.LLMModelPath != "" {
		spec.Path = rc.LLMModelPath
	}
	if spec.IsLocal() && spec.Path == "" {
		return spec, false
	}
	return spec, true
}

func promptMessages(rc *graph.RunContext) []model.Message {
	var msgs []model.Message
	if rc.WorkingState != nil {
		for _, m := range rc.WorkingState.Messages {
			msgs = append(msgs, model.Message{Role: m.Role, Content: m.Content})
		}
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != model.RoleUser || msgs[len(msgs)-1].Content != rc.UserInput {
		msgs = append(msgs, model.Message{Role: model.RoleUser, Content: rc.UserInput})
	}
	if rc.ToolResult != nil {
		msgs = append(msgs, model.Message{Role: model.RoleSystem, Content: toolResultPrompt(rc)})
	}
	return msgs
}

func toolResultPrompt(rc *graph.RunContext) string {
	var b strings.Builder
	b.WriteString("Tool result")
	if rc.ToolName != "" {
		b.WriteString(" (" + rc.ToolName + ")")
	}
	b.WriteString(": ")
	data, err := json.Marshal(rc.ToolResult)
	if err != nil {
		b.WriteString(err.Error())
	} else {
		b.Write(data)
	}
	return b.String()
}
