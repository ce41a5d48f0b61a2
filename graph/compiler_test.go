package graph

import (
	"reflect"
	"testing"
)

func TestPlanCompilerDefaults(t *testing.T) {
	c := NewPlanCompiler()
	for _, intent := range []string{IntentChat, IntentCode, "unknown", ""} {
		t.Run(intent, func(t *testing.T) {
			if g := c.Compile(intent); !g.Equal(ChatPipeline()) {
				t.Errorf("Compile(%q) = %+v", intent, g)
			}
		})
	}
}

func TestPlanCompilerRegister(t *testing.T) {
	c := NewPlanCompiler()
	short := func() WorkflowGraph {
		return NewWorkflowGraph([]string{"router", "validator"}, []WorkflowEdge{{From: "router", To: "validator"}}, "router")
	}
	c.Register("short", short)

	if g := c.Compile("short"); !g.Equal(short()) {
		t.Errorf("registered intent compiled to %+v", g)
	}
	if g := c.Compile(IntentChat); !g.Equal(ChatPipeline()) {
		t.Error("registering an intent changed the chat graph")
	}
}

func TestCompileReturnsFreshGraph(t *testing.T) {
	c := NewPlanCompiler()
	g := c.Compile(IntentChat)
	g.Nodes[0] = "mutated"
	if c.Compile(IntentChat).Nodes[0] != string(NodeRouter) {
		t.Error("compiled graphs share backing arrays")
	}
}

func TestWithToolCall(t *testing.T) {
	base := ChatPipeline()
	got := WithToolCall(base)

	wantNodes := []string{"router", "context_builder", "llm_worker", "validator", "tool_call"}
	if !reflect.DeepEqual(got.Nodes, wantNodes) {
		t.Errorf("nodes = %v, want %v", got.Nodes, wantNodes)
	}
	wantEdges := []WorkflowEdge{
		{From: "router", To: "context_builder"},
		{From: "context_builder", To: "tool_call"},
		{From: "tool_call", To: "llm_worker"},
		{From: "llm_worker", To: "validator"},
	}
	if !reflect.DeepEqual(got.Edges, wantEdges) {
		t.Errorf("edges = %v, want %v", got.Edges, wantEdges)
	}
	if got.Entry != base.Entry {
		t.Errorf("entry = %q", got.Entry)
	}

	if !reflect.DeepEqual(base, ChatPipeline()) {
		t.Error("WithToolCall mutated its input")
	}
	if again := WithToolCall(got); !reflect.DeepEqual(again, got) {
		t.Error("WithToolCall is not idempotent")
	}
}

func TestWithToolCallWithoutSpliceEdge(t *testing.T) {
	g := NewWorkflowGraph([]string{"router", "validator"}, []WorkflowEdge{{From: "router", To: "validator"}}, "router")
	got := WithToolCall(g)

	wantEdges := []WorkflowEdge{
		{From: "router", To: "validator"},
		{From: "context_builder", To: "tool_call"},
		{From: "tool_call", To: "llm_worker"},
	}
	if !reflect.DeepEqual(got.Edges, wantEdges) {
		t.Errorf("edges = %v, want %v", got.Edges, wantEdges)
	}
}
