package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/dshills/agentpipe/graph"
	"github.com/dshills/agentpipe/graph/emit"
	"github.com/dshills/agentpipe/graph/store"
)

// ReplayInput is the request used by the replay baseline check.
const ReplayInput = "Replay baseline deterministic check"

// ReplayEvent is a trace event reduced to its deterministic fields. Fields
// are declared in key order so its JSON matches a sorted-key encoding.
type ReplayEvent struct {
	ControllerState string `json:"controller_state"`
	EventType       string `json:"event_type"`
	NodeID          string `json:"node_id"`
	NodeType        string `json:"node_type"`
	Success         bool   `json:"success"`
}

// ReplayRun is what one of the two baseline runs left in the store.
type ReplayRun struct {
	TaskID         string
	Graph          graph.WorkflowGraph
	Events         []ReplayEvent
	TotalElapsedNS int64
}

// ReplayReport is the outcome of ReplayBaseline.
type ReplayReport struct {
	Passed bool
	Reason string
	Runs   []ReplayRun

	// Latency comparison, populated when a tolerance ratio was given.
	LatencyDeltaNS   int64
	LatencyAllowedNS int64
}

// String renders the report in the line format consumed by CI.
func (r ReplayReport) String() string {
	lines := []string{"REPLAY BASELINE", strings.Repeat("=", 60)}
	if r.Passed {
		lines = append(lines, "REPLAY_BASELINE=PASS")
		for i, run := range r.Runs {
			lines = append(lines, fmt.Sprintf("run_%d_task_id=%s", i+1, run.TaskID))
		}
		if len(r.Runs) > 0 {
			lines = append(lines, "workflow_graph_fingerprint="+r.Runs[0].Graph.Fingerprint())
		}
		return strings.Join(lines, "\n") + "\n"
	}

	reason := r.Reason
	if reason == "" {
		reason = "normalized mismatch"
	}
	lines = append(lines, "REPLAY_BASELINE=FAIL", "reason="+reason)
	if len(r.Runs) == 2 {
		for i, run := range r.Runs {
			lines = append(lines, fmt.Sprintf("run_%d_events=%s", i+1, mustJSON(run.Events)))
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

// ReplayBaseline runs input twice through ctrl and checks that both runs
// planned the same canonical workflow graph and left the same normalized
// sequence of trace events in st. st must be the store ctrl writes to.
//
// When toleranceRatio is positive, the summed node latency of the two runs
// must also differ by no more than toleranceRatio times the larger sum.
// Latency is environment dependent, so zero disables that check.
//
// Mismatches are reported in the returned report. The error is reserved for
// store failures.
func ReplayBaseline(ctx context.Context, ctrl *Controller, st store.Store, input string, toleranceRatio float64) (ReplayReport, error) {
	var report ReplayReport
	for i := 0; i < 2; i++ {
		run, reason, err := replayOnce(ctx, ctrl, st, input)
		if err != nil {
			return report, err
		}
		if reason != "" {
			report.Reason = reason
			return report, nil
		}
		report.Runs = append(report.Runs, run)
	}

	a, b := report.Runs[0], report.Runs[1]
	switch {
	case !a.Graph.Equal(b.Graph):
		report.Reason = "workflow graph mismatch"
		return report, nil
	case !slices.Equal(a.Events, b.Events):
		return report, nil
	}

	if toleranceRatio > 0 {
		report.LatencyDeltaNS = a.TotalElapsedNS - b.TotalElapsedNS
		if report.LatencyDeltaNS < 0 {
			report.LatencyDeltaNS = -report.LatencyDeltaNS
		}
		report.LatencyAllowedNS = int64(toleranceRatio * float64(max(a.TotalElapsedNS, b.TotalElapsedNS)))
		if report.LatencyDeltaNS > report.LatencyAllowedNS {
			report.Reason = fmt.Sprintf("latency delta %dns exceeds allowed %dns", report.LatencyDeltaNS, report.LatencyAllowedNS)
			return report, nil
		}
	}
	report.Passed = true
	return report, nil
}

func replayOnce(ctx context.Context, ctrl *Controller, st store.Store, input string) (ReplayRun, string, error) {
	highWater, err := st.MaxDecisionID(ctx)
	if err != nil {
		return ReplayRun{}, "", fmt.Errorf("read decision high-water mark: %w", err)
	}

	res := ctrl.Run(ctx, RunRequest{UserInput: input})
	if res.TaskID == "" {
		return ReplayRun{}, "missing task_id from run result", nil
	}
	run := ReplayRun{TaskID: res.TaskID}

	task, err := st.GetTask(ctx, res.TaskID)
	if err != nil {
		return ReplayRun{}, "", fmt.Errorf("load task %s: %w", res.TaskID, err)
	}
	if len(task.WorkflowGraph) == 0 {
		return ReplayRun{}, "missing archived workflow_graph for " + res.TaskID, nil
	}
	if err := json.Unmarshal(task.WorkflowGraph, &run.Graph); err != nil {
		return ReplayRun{}, fmt.Sprintf("unreadable workflow_graph for %s: %v", res.TaskID, err), nil
	}

	rows, err := st.Decisions(ctx, store.DecisionQuery{
		TaskID:     res.TaskID,
		ActionType: emit.ActionDAGNodeEvent,
		AfterID:    highWater,
	})
	if err != nil {
		return ReplayRun{}, "", fmt.Errorf("read trace events for %s: %w", res.TaskID, err)
	}
	if len(rows) == 0 {
		return ReplayRun{}, "missing dag_node_event rows for " + res.TaskID, nil
	}
	if reason := run.addEvents(rows); reason != "" {
		return ReplayRun{}, reason, nil
	}
	return run, "", nil
}

// addEvents normalizes trace rows onto run. Only node_end durations count
// toward TotalElapsedNS. A non-empty return is the failure reason.
func (run *ReplayRun) addEvents(rows []store.Decision) string {
	for _, row := range rows {
		ev, err := emit.ParseEvent(row.Content)
		if err != nil {
			return fmt.Sprintf("decision %d: %v", row.ID, err)
		}
		run.Events = append(run.Events, ReplayEvent{
			ControllerState: ev.ControllerState,
			EventType:       ev.EventType,
			NodeID:          ev.NodeID,
			NodeType:        ev.NodeType,
			Success:         ev.Success,
		})
		if ev.EventType == emit.EventNodeEnd && ev.ElapsedNS != nil {
			run.TotalElapsedNS += *ev.ElapsedNS
		}
	}
	return ""
}
