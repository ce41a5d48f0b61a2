package controller

import (
	"context"
	"fmt"

	"github.com/dshills/agentpipe/graph"
	"github.com/dshills/agentpipe/graph/emit"
)

// traceNode runs one node between a node_start and a node_end or
// node_error event. A panic in the node is recovered and becomes its
// error.
func (r *run) traceNode(ctx context.Context, id string) error {
	node, ok := r.registry.Lookup(id)
	if !ok {
		return &graph.MissingNodeImplementationError{Missing: []string{id}}
	}

	base := emit.Event{
		TaskID:          r.taskID,
		RunID:           r.runID,
		NodeID:          id,
		NodeType:        string(graph.NodeType(id)),
		ControllerState: string(r.fsm.Current()),
	}

	began := r.c.cfg.now()
	offset := emit.Int64(began.Sub(r.start).Nanoseconds())

	start := base
	start.EventType = emit.EventNodeStart
	start.Success = true
	start.StartOffsetNS = offset
	r.emitter.Emit(start)

	err := r.invoke(ctx, node)
	elapsed := r.c.cfg.now().Sub(began)

	end := base
	end.StartOffsetNS = offset
	end.ElapsedNS = emit.Int64(elapsed.Nanoseconds())
	if err != nil {
		end.EventType = emit.EventNodeError
		end.Error = err.Error()
		r.emitter.Emit(end)
		r.c.cfg.metrics.RecordNodeLatency(id, elapsed, "error")
		return err
	}
	end.EventType = emit.EventNodeEnd
	end.Success = true
	r.emitter.Emit(end)
	r.c.cfg.metrics.RecordNodeLatency(id, elapsed, "success")
	return nil
}

func (r *run) invoke(ctx context.Context, node graph.Node) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	next, err := node.Execute(ctx, r.rc)
	if err != nil {
		return err
	}
	if next != nil {
		r.rc = next
	}
	return nil
}
