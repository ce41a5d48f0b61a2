package emit

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each trace event into an OpenTelemetry span.
//
// Each span has:
//   - Name: the event type (node_start, node_end, node_error)
//   - Attributes: agentpipe.task_id, agentpipe.run_id, agentpipe.node_id,
//     agentpipe.node_type, agentpipe.controller_state, agentpipe.success,
//     and the timing fields when present
//   - Status: codes.Error with the node error on node_error events
//
// node_end and node_error events carrying ElapsedNS get a start timestamp
// back-dated by the node duration so the span covers the node execution.
//
// Usage:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	emitter := emit.NewOTelEmitter(otel.Tracer("agentpipe"))
type OTelEmitter struct {
	tracer trace.Tracer
	now    func() time.Time
}

// NewOTelEmitter creates an OTelEmitter from a tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{
		tracer: tracer,
		now:    time.Now,
	}
}

// Emit creates and immediately ends one span for the event.
func (o *OTelEmitter) Emit(event Event) {
	o.emit(context.Background(), event)
}

// EmitBatch creates one span per event under ctx.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.emit(ctx, event)
	}
	return nil
}

func (o *OTelEmitter) emit(ctx context.Context, event Event) {
	end := o.now()
	opts := []trace.SpanStartOption{trace.WithAttributes(attributes(event)...)}
	if event.ElapsedNS != nil && event.EventType != EventNodeStart {
		opts = append(opts, trace.WithTimestamp(end.Add(-time.Duration(*event.ElapsedNS))))
	}

	_, span := o.tracer.Start(ctx, event.EventType, opts...)
	if event.EventType == EventNodeError {
		msg := event.Error
		if msg == "" {
			msg = "node failed"
		}
		span.SetStatus(codes.Error, msg)
		span.RecordError(errors.New(msg))
	}
	span.End(trace.WithTimestamp(end))
}

// Flush forces export of pending spans when the global tracer provider
// supports it.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func attributes(event Event) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("agentpipe.task_id", event.TaskID),
		attribute.String("agentpipe.run_id", event.RunID),
		attribute.String("agentpipe.node_id", event.NodeID),
		attribute.String("agentpipe.node_type", event.NodeType),
		attribute.String("agentpipe.controller_state", event.ControllerState),
		attribute.Bool("agentpipe.success", event.Success),
	}
	if event.ElapsedNS != nil {
		attrs = append(attrs, attribute.Int64("agentpipe.elapsed_ns", *event.ElapsedNS))
	}
	if event.StartOffsetNS != nil {
		attrs = append(attrs, attribute.Int64("agentpipe.start_offset_ns", *event.StartOffsetNS))
	}
	return attrs
}
