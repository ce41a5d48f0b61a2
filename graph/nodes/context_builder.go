package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/agentpipe/graph"
	"github.com/dshills/agentpipe/graph/store"
)

// Context builder error codes.
const (
	ErrCodeMemoryManagerMissing = "memory_manager_missing"
	ErrCodeTaskIDMissing        = "task_id_missing"
)

// ContextBuilder loads the task record into the run context as working
// state.
type ContextBuilder struct {
	Store store.Store
}

// Execute implements graph.Node. An unknown task leaves WorkingState nil;
// any other store failure is returned.
func (b *ContextBuilder) Execute(ctx context.Context, rc *graph.RunContext) (*graph.RunContext, error) {
	if b.Store == nil {
		rc.WorkingState = nil
		rc.ContextBuilderError = ErrCodeMemoryManagerMissing
		return rc, nil
	}
	if rc.TaskID == "" {
		rc.WorkingState = nil
		rc.ContextBuilderError = ErrCodeTaskIDMissing
		return rc, nil
	}

	task, err := b.Store.GetTask(ctx, rc.TaskID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rc.WorkingState = nil
	case err != nil:
		return rc, fmt.Errorf("load working state for %s: %w", rc.TaskID, err)
	default:
		rc.WorkingState = &task
	}
	return rc, nil
}
