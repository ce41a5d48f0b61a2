package nodes

import (
	"context"
	"strings"

	"github.com/dshills/agentpipe/graph"
)

// Router classifies the request. Any input mentioning "code" is a code
// request; everything else is chat.
type Router struct{}

// Execute implements graph.Node.
func (Router) Execute(_ context.Context, rc *graph.RunContext) (*graph.RunContext, error) {
	rc.Intent = graph.IntentChat
	if strings.Contains(strings.ToLower(rc.UserInput), "code") {
		rc.Intent = graph.IntentCode
	}
	return rc, nil
}
