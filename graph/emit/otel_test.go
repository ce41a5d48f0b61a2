package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*OTelEmitter, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOTelEmitter(tp.Tracer("test")), exporter
}

func TestOTelEmitter_Emit(t *testing.T) {
	emitter, exporter := newTestTracer(t)

	emitter.Emit(Event{
		TaskID:          "task-001",
		RunID:           "run-001",
		EventType:       EventNodeStart,
		NodeID:          "router",
		NodeType:        "router",
		ControllerState: "PLAN",
		Success:         true,
		StartOffsetNS:   Int64(10),
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != EventNodeStart {
		t.Errorf("span name = %q, want %q", span.Name, EventNodeStart)
	}

	attrs := attributeMap(span.Attributes)
	checks := map[string]any{
		"agentpipe.task_id":          "task-001",
		"agentpipe.run_id":           "run-001",
		"agentpipe.node_id":          "router",
		"agentpipe.node_type":        "router",
		"agentpipe.controller_state": "PLAN",
		"agentpipe.success":          true,
		"agentpipe.start_offset_ns":  int64(10),
	}
	for k, want := range checks {
		if got := attrs[k]; got != want {
			t.Errorf("%s = %v, want %v", k, got, want)
		}
	}
	if _, ok := attrs["agentpipe.elapsed_ns"]; ok {
		t.Error("elapsed_ns attribute should be absent on node_start")
	}
}

func TestOTelEmitter_ErrorStatus(t *testing.T) {
	emitter, exporter := newTestTracer(t)

	emitter.Emit(Event{EventType: EventNodeError, NodeID: "llm_worker", Error: "model exploded", ElapsedNS: Int64(5)})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "model exploded" {
		t.Errorf("status description = %q", spans[0].Status.Description)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected recorded error event on span")
	}
}

func TestOTelEmitter_Duration(t *testing.T) {
	emitter, exporter := newTestTracer(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	emitter.now = func() time.Time { return fixed }

	emitter.Emit(Event{EventType: EventNodeEnd, NodeID: "router", Success: true, ElapsedNS: Int64(int64(250 * time.Millisecond))})

	span := exporter.GetSpans()[0]
	if !span.EndTime.Equal(fixed) {
		t.Errorf("EndTime = %v, want %v", span.EndTime, fixed)
	}
	if got := span.EndTime.Sub(span.StartTime); got != 250*time.Millisecond {
		t.Errorf("span duration = %v, want 250ms", got)
	}
}

func TestOTelEmitter_EmitBatch(t *testing.T) {
	t.Run("emits all", func(t *testing.T) {
		emitter, exporter := newTestTracer(t)
		events := []Event{
			{EventType: EventNodeStart, NodeID: "a"},
			{EventType: EventNodeEnd, NodeID: "a"},
			{EventType: EventNodeStart, NodeID: "b"},
		}
		if err := emitter.EmitBatch(context.Background(), events); err != nil {
			t.Fatalf("EmitBatch() error = %v", err)
		}
		if got := len(exporter.GetSpans()); got != 3 {
			t.Errorf("expected 3 spans, got %d", got)
		}
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		emitter, exporter := newTestTracer(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := emitter.EmitBatch(ctx, []Event{{EventType: EventNodeStart}}); err == nil {
			t.Error("expected context error")
		}
		if got := len(exporter.GetSpans()); got != 0 {
			t.Errorf("expected 0 spans, got %d", got)
		}
	})
}

func attributeMap(attrs []attribute.KeyValue) map[string]any {
	m := make(map[string]any)
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}
