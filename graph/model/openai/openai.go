// Package openai adapts the OpenAI chat completions API to model.ChatModel.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dshills/agentpipe/graph/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is used when a catalog entry names no model.
const DefaultModel = "gpt-4o-mini"

// ChatModel implements model.ChatModel for OpenAI.
//
// There is no retry: the llm_worker records the first failure as
// llm_generation_error and the run moves on.
//
//	m := openai.NewChatModel(os.Getenv("OPENAI_API_KEY"), "gpt-4o-mini")
//	out, err := m.Chat(ctx, []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil)
type ChatModel struct {
	modelName string
	client    openaiClient
}

// openaiClient is the slice of the SDK the adapter uses. Tests replace it.
type openaiClient interface {
	createChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// NewChatModel returns a ChatModel for modelName. An empty apiKey is
// reported on the first Chat call, not here.
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{
		modelName: modelName,
		client:    newDefaultClient(apiKey, opts...),
	}
}

// ModelName returns the model this adapter calls.
func (m *ChatModel) ModelName() string { return m.modelName }

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}
	completion, err := m.client.createChatCompletion(ctx, buildParams(m.modelName, messages, tools))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("openai: %w", err)
	}
	return convertCompletion(completion)
}

func buildParams(modelName string, messages []model.Message, tools []model.ToolSpec) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelName),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Schema),
			},
		})
	}
	return params
}

func convertCompletion(completion *openai.ChatCompletion) (model.ChatOut, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return model.ChatOut{}, errors.New("openai: response has no choices")
	}
	msg := completion.Choices[0].Message
	out := model.ChatOut{Text: msg.Content}
	for _, call := range msg.ToolCalls {
		var input map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
				return model.ChatOut{}, fmt.Errorf("openai: tool %s arguments: %w", call.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: call.Function.Name, Input: input})
	}
	return out, nil
}

type defaultClient struct {
	apiKey string
	client openai.Client
}

func newDefaultClient(apiKey string, opts ...option.RequestOption) *defaultClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &defaultClient{apiKey: apiKey, client: openai.NewClient(opts...)}
}

func (c *defaultClient) createChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if c.apiKey == "" {
		return nil, errors.New("API key is required")
	}
	return c.client.Chat.Completions.New(ctx, params)
}
