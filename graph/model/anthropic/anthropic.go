// Package anthropic adapts the Anthropic Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dshills/agentpipe/graph/model"
)

// DefaultModel is used when a catalog entry names no model.
const DefaultModel = "claude-3-5-haiku-latest"

// DefaultMaxTokens bounds every response.
const DefaultMaxTokens = 1024

// ChatModel implements model.ChatModel for Anthropic.
//
// System messages are lifted out of the conversation into the request's
// system field, concatenated in order.
type ChatModel struct {
	modelName string
	maxTokens int64
	client    anthropicClient
}

type anthropicClient interface {
	createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// NewChatModel returns a ChatModel for modelName.
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{
		modelName: modelName,
		maxTokens: DefaultMaxTokens,
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
	msg, err := m.client.createMessage(ctx, m.buildParams(messages, tools))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic: %w", err)
	}
	return convertMessage(msg)
}

// extractSystemPrompt splits system messages from the conversation.
func extractSystemPrompt(messages []model.Message) (string, []model.Message) {
	var system string
	var rest []model.Message
	for _, msg := range messages {
		if msg.Role != model.RoleSystem {
			rest = append(rest, msg)
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += msg.Content
	}
	return system, rest
}

func (m *ChatModel) buildParams(messages []model.Message, tools []model.ToolSpec) anthropic.MessageNewParams {
	system, conversation := extractSystemPrompt(messages)

	maxTokens := m.maxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: maxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(conversation)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, msg := range conversation {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}
	for _, t := range tools {
		tool := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: t.Schema["properties"]},
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return params
}

func convertMessage(msg *anthropic.Message) (model.ChatOut, error) {
	if msg == nil {
		return model.ChatOut{}, errors.New("anthropic: empty response")
	}
	var out model.ChatOut
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			var input map[string]any
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &input); err != nil {
					return model.ChatOut{}, fmt.Errorf("anthropic: tool %s input: %w", block.Name, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: block.Name, Input: input})
		}
	}
	return out, nil
}

type defaultClient struct {
	apiKey string
	client anthropic.Client
}

func newDefaultClient(apiKey string, opts ...option.RequestOption) *defaultClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &defaultClient{apiKey: apiKey, client: anthropic.NewClient(opts...)}
}

func (c *defaultClient) createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	if c.apiKey == "" {
		return nil, errors.New("API key is required")
	}
	return c.client.Messages.New(ctx, params)
}
