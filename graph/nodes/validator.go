package nodes

import (
	"context"

	"github.com/dshills/agentpipe/graph"
)

// Validator accepts any run that produced non-blank output.
type Validator struct{}

// Execute implements graph.Node.
func (Validator) Execute(_ context.Context, rc *graph.RunContext) (*graph.RunContext, error) {
	rc.IsValid = rc.HasOutput()
	return rc, nil
}
