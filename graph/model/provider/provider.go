// Package provider turns a selected catalog entry into a model.ChatModel.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dshills/agentpipe/graph/model"
	"github.com/dshills/agentpipe/graph/model/anthropic"
	"github.com/dshills/agentpipe/graph/model/google"
	"github.com/dshills/agentpipe/graph/model/openai"
)

// Provider names accepted in the catalog.
const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Google    = "google"
	Echo      = "echo"
)

// ErrLocalRuntime is returned for catalog entries that name a model file.
// The process has no in-process inference runtime.
var ErrLocalRuntime = errors.New("no local inference runtime available")

// ErrUnknownProvider is returned for provider names not listed above.
var ErrUnknownProvider = errors.New("unknown model provider")

// Factory builds a ChatModel for a selected model.
type Factory interface {
	New(spec model.Spec) (model.ChatModel, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(spec model.Spec) (model.ChatModel, error)

// New implements Factory.
func (f FactoryFunc) New(spec model.Spec) (model.ChatModel, error) { return f(spec) }

// Static returns a Factory that always yields m.
func Static(m model.ChatModel) Factory {
	return FactoryFunc(func(model.Spec) (model.ChatModel, error) { return m, nil })
}

// Env builds vendor adapters with API keys read from the environment:
// OPENAI_API_KEY, ANTHROPIC_API_KEY, and GOOGLE_API_KEY (or GEMINI_API_KEY).
type Env struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// New implements Factory.
func (e Env) New(spec model.Spec) (model.ChatModel, error) {
	getenv := e.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	name := strings.ToLower(strings.TrimSpace(spec.Provider))
	switch name {
	case "", model.ProviderLocal:
		return nil, fmt.Errorf("%w for %s", ErrLocalRuntime, spec.Path)
	case Echo:
		return EchoModel{}, nil
	case OpenAI:
		key, err := requireKey(getenv, "OPENAI_API_KEY")
		if err != nil {
			return nil, err
		}
		return openai.NewChatModel(key, spec.Name), nil
	case Anthropic:
		key, err := requireKey(getenv, "ANTHROPIC_API_KEY")
		if err != nil {
			return nil, err
		}
		return anthropic.NewChatModel(key, spec.Name), nil
	case Google:
		key, err := requireKey(getenv, "GOOGLE_API_KEY", "GEMINI_API_KEY")
		if err != nil {
			return nil, err
		}
		return google.NewChatModel(key, spec.Name), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, spec.Provider)
	}
}

func requireKey(getenv func(string) string, names ...string) (string, error) {
	for _, n := range names {
		if v := strings.TrimSpace(getenv(n)); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s is not set", strings.Join(names, " or "))
}

// EchoModel answers with the last user message. It makes runs deterministic
// without network access.
type EchoModel struct{}

// Chat implements model.ChatModel.
func (EchoModel) Chat(ctx context.Context, messages []model.Message, _ []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return model.ChatOut{Text: "echo: " + messages[i].Content}, nil
		}
	}
	return model.ChatOut{Text: "echo:"}, nil
}
