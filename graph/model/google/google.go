// Package google adapts the Gemini API to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/agentpipe/graph/model"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel is used when a catalog entry names no model.
const DefaultModel = "gemini-2.5-flash"

// ChatModel implements model.ChatModel for Gemini.
//
// System messages become the model's system instruction. All other messages
// except the last form the chat history; the last one is sent. A response
// blocked by Gemini's safety filters is returned as *SafetyFilterError.
type ChatModel struct {
	modelName string
	client    googleClient
}

// generateRequest is a Gemini chat turn ready to send.
type generateRequest struct {
	system  string
	history []*genai.Content
	parts   []genai.Part
	tools   []*genai.Tool
}

type googleClient interface {
	generateContent(ctx context.Context, modelName string, req generateRequest) (*genai.GenerateContentResponse, error)
}

// NewChatModel returns a ChatModel for modelName.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{
		modelName: modelName,
		client:    &defaultClient{apiKey: apiKey},
	}
}

// ModelName returns the model this adapter calls.
func (m *ChatModel) ModelName() string { return m.modelName }

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}
	req := buildRequest(messages, tools)
	if len(req.parts) == 0 {
		return model.ChatOut{}, errors.New("google: no user content to send")
	}
	resp, err := m.client.generateContent(ctx, m.modelName, req)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google: %w", err)
	}
	return convertResponse(resp)
}

func buildRequest(messages []model.Message, tools []model.ToolSpec) generateRequest {
	var req generateRequest
	var system []string
	var turns []*genai.Content
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, msg.Content)
		case model.RoleAssistant:
			turns = append(turns, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			turns = append(turns, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	req.system = strings.Join(system, "\n\n")
	if n := len(turns); n > 0 {
		req.history = turns[:n-1]
		req.parts = turns[n-1].Parts
	}
	if len(tools) > 0 {
		req.tools = convertTools(tools)
	}
	return req
}

func convertTools(tools []model.ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertSchema maps a JSON Schema object onto genai.Schema, recursing into
// properties and array items.
func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{Type: genai.TypeObject}
	if typ, ok := schema["type"].(string); ok {
		out.Type = convertType(typ)
	}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if prop, ok := raw.(map[string]any); ok {
				out.Properties[name] = convertSchema(prop)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = convertSchema(items)
	}
	switch req := schema["required"].(type) {
	case []string:
		out.Required = append([]string(nil), req...)
	case []any:
		for _, v := range req {
			if s, ok := v.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	return out
}

func convertType(s string) genai.Type {
	switch s {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func convertResponse(resp *genai.GenerateContentResponse) (model.ChatOut, error) {
	if resp == nil {
		return model.ChatOut{}, errors.New("google: empty response")
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return model.ChatOut{}, &SafetyFilterError{reason: fb.BlockReason.String(), category: blockedCategory(fb.SafetyRatings)}
	}
	if len(resp.Candidates) == 0 {
		return model.ChatOut{}, nil
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return model.ChatOut{}, &SafetyFilterError{reason: cand.FinishReason.String(), category: blockedCategory(cand.SafetyRatings)}
	}
	var out model.ChatOut
	if cand.Content == nil {
		return out, nil
	}
	for _, part := range cand.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: p.Name, Input: p.Args})
		}
	}
	return out, nil
}

func blockedCategory(ratings []*genai.SafetyRating) string {
	for _, r := range ratings {
		if r != nil && r.Blocked {
			return r.Category.String()
		}
	}
	return "unknown"
}

type defaultClient struct {
	apiKey string
}

func (c *defaultClient) generateContent(ctx context.Context, modelName string, req generateRequest) (*genai.GenerateContentResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	defer func() { _ = client.Close() }()

	gm := client.GenerativeModel(modelName)
	if req.system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.system)}}
	}
	gm.Tools = req.tools

	session := gm.StartChat()
	session.History = req.history
	return session.SendMessage(ctx, req.parts...)
}

// SafetyFilterError reports a prompt or response blocked by Gemini's
// safety filters.
type SafetyFilterError struct {
	reason   string
	category string
}

func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.category
}

// Category returns the harm category that triggered the block.
func (e *SafetyFilterError) Category() string { return e.category }

// Reason returns the block or finish reason reported by the API.
func (e *SafetyFilterError) Reason() string { return e.reason }
