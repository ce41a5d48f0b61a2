package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/agentpipe/graph"
	"github.com/dshills/agentpipe/graph/emit"
	"github.com/dshills/agentpipe/graph/nodes"
	"github.com/dshills/agentpipe/graph/store"
)

func TestReplayBaseline_Pass(t *testing.T) {
	st := store.NewMemStore()
	ctrl := newController(t, st, stubSelector{spec: echoSpec})

	report, err := ReplayBaseline(context.Background(), ctrl, st, ReplayInput, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Passed {
		t.Fatalf("report failed: %s", report)
	}
	if len(report.Runs) != 2 || report.Runs[0].TaskID == report.Runs[1].TaskID {
		t.Fatalf("runs = %+v", report.Runs)
	}
	if len(report.Runs[0].Events) != 8 {
		t.Errorf("events = %+v", report.Runs[0].Events)
	}

	out := report.String()
	for _, want := range []string{
		"REPLAY BASELINE\n" + strings.Repeat("=", 60) + "\n",
		"REPLAY_BASELINE=PASS\n",
		"run_1_task_id=" + report.Runs[0].TaskID + "\n",
		"run_2_task_id=" + report.Runs[1].TaskID + "\n",
		"workflow_graph_fingerprint=" + graph.ChatPipeline().Fingerprint(),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestReplayBaseline_GraphMismatch(t *testing.T) {
	st := store.NewMemStore()
	compiler := graph.NewPlanCompiler()
	calls := 0
	compiler.Register(graph.IntentChat, func() graph.WorkflowGraph {
		calls++
		if calls == 2 {
			return graph.WithToolCall(graph.ChatPipeline())
		}
		return graph.ChatPipeline()
	})
	ctrl := newController(t, st, stubSelector{spec: echoSpec}, WithCompiler(compiler))

	report, err := ReplayBaseline(context.Background(), ctrl, st, ReplayInput, 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Passed || report.Reason != "workflow graph mismatch" {
		t.Errorf("report = %+v", report)
	}
	if !strings.Contains(report.String(), "reason=workflow graph mismatch") {
		t.Errorf("report text:\n%s", report)
	}
}

func TestReplayBaseline_EventMismatch(t *testing.T) {
	st := store.NewMemStore()
	var mu sync.Mutex
	runs := 0
	ctrl := newController(t, st, stubSelector{spec: echoSpec}, WithNodeRegistry(func(d nodes.Deps) graph.Registry {
		mu.Lock()
		runs++
		second := runs == 2
		mu.Unlock()
		reg := nodes.NewRegistry(d)
		if second {
			reg[graph.NodeValidator] = failingNode(errors.New("flaky"))
		}
		return reg
	}))

	report, err := ReplayBaseline(context.Background(), ctrl, st, ReplayInput, 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Passed {
		t.Fatal("expected mismatch")
	}
	out := report.String()
	for _, want := range []string{"REPLAY_BASELINE=FAIL", "reason=normalized mismatch", "run_1_events=[", "run_2_events=[", `"event_type":"node_error"`} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, `{"controller_state":"PLAN","event_type":"node_start","node_id":"router","node_type":"router","success":true}`) {
		t.Errorf("events not rendered with sorted keys:\n%s", out)
	}
}

func TestReplayBaseline_LatencyTolerance(t *testing.T) {
	// Each reading advances further than the last, so the second run's
	// nodes take longer than the first's.
	var mu sync.Mutex
	now := time.Unix(0, 0)
	step := time.Duration(0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		step += time.Millisecond
		now = now.Add(step)
		return now
	}

	st := store.NewMemStore()
	ctrl := newController(t, st, stubSelector{spec: echoSpec}, WithClock(clock))

	report, err := ReplayBaseline(context.Background(), ctrl, st, ReplayInput, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	if report.Passed || !strings.HasPrefix(report.Reason, "latency delta") {
		t.Fatalf("report = %+v", report)
	}
	if report.LatencyDeltaNS <= report.LatencyAllowedNS {
		t.Errorf("delta %d allowed %d", report.LatencyDeltaNS, report.LatencyAllowedNS)
	}

	st = store.NewMemStore()
	ctrl = newController(t, st, stubSelector{spec: echoSpec}, WithClock(clock))
	report, err = ReplayBaseline(context.Background(), ctrl, st, ReplayInput, 0)
	if err != nil || !report.Passed {
		t.Errorf("zero tolerance must ignore latency: %+v, %v", report, err)
	}
}

func TestReplayBaseline_StoreError(t *testing.T) {
	st := store.NewMemStore()
	ctrl := newController(t, st, stubSelector{spec: echoSpec})
	_ = st.Close()
	if _, err := ReplayBaseline(context.Background(), ctrl, st, ReplayInput, 0); err == nil {
		t.Error("expected error from closed store")
	}
}

func TestReplayRunCountsNodeEndLatencyOnly(t *testing.T) {
	events := []emit.Event{
		{EventType: emit.EventNodeStart, NodeID: "router", NodeType: "router", ControllerState: "PLAN", Success: true, StartOffsetNS: emit.Int64(0)},
		{EventType: emit.EventNodeEnd, NodeID: "router", NodeType: "router", ControllerState: "PLAN", Success: true, StartOffsetNS: emit.Int64(0), ElapsedNS: emit.Int64(100)},
		{EventType: emit.EventNodeStart, NodeID: "llm_worker", NodeType: "llm_worker", ControllerState: "EXECUTE", Success: true, StartOffsetNS: emit.Int64(200)},
		{EventType: emit.EventNodeError, NodeID: "llm_worker", NodeType: "llm_worker", ControllerState: "EXECUTE", Error: "boom", StartOffsetNS: emit.Int64(200), ElapsedNS: emit.Int64(5000)},
	}
	rows := make([]store.Decision, 0, len(events))
	for i, ev := range events {
		content, err := ev.CanonicalJSON()
		if err != nil {
			t.Fatal(err)
		}
		rows = append(rows, store.Decision{ID: int64(i + 1), ActionType: emit.ActionDAGNodeEvent, Content: content, Status: ev.EventType})
	}

	var run ReplayRun
	if reason := run.addEvents(rows); reason != "" {
		t.Fatalf("addEvents: %s", reason)
	}
	if len(run.Events) != 4 {
		t.Fatalf("events = %+v", run.Events)
	}
	if run.TotalElapsedNS != 100 {
		t.Errorf("TotalElapsedNS = %d, want 100", run.TotalElapsedNS)
	}
}

func TestReplayRunRejectsUnreadableRow(t *testing.T) {
	var run ReplayRun
	reason := run.addEvents([]store.Decision{{ID: 7, Content: "not json"}})
	if !strings.HasPrefix(reason, "decision 7:") {
		t.Errorf("reason = %q", reason)
	}
}
