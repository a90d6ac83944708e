package emit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating OpenTelemetry spans.
//
// A run_started event opens a "codecrew.run" span that stays open until the
// matching run_terminated event; every other event of that run becomes a
// child span of it. Events of a run with no open span are root spans.
//
// Each event span carries:
//   - Span name: event.Msg (e.g., "turn_completed")
//   - Attributes: codecrew.run_id, codecrew.seq, codecrew.role and every Meta field
//   - Status: Error if event.Meta["error"] is a string
//
// Usage:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	emitter := emit.NewOTelEmitter(otel.Tracer("codecrew"))
type OTelEmitter struct {
	tracer trace.Tracer

	mu   sync.Mutex
	runs map[string]openRun
}

type openRun struct {
	ctx  context.Context
	span trace.Span
}

// NewOTelEmitter creates a new OTelEmitter.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer, runs: make(map[string]openRun)}
}

// Emit records the event as a span.
func (o *OTelEmitter) Emit(event Event) {
	o.emit(context.Background(), event)
}

// EmitBatch records events in order, opening run spans under ctx.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.emit(ctx, event)
	}
	return nil
}

// OpenRuns returns the number of runs whose span has not ended.
func (o *OTelEmitter) OpenRuns() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runs)
}

func (o *OTelEmitter) emit(ctx context.Context, event Event) {
	switch event.Msg {
	case MsgRunStarted:
		o.startRun(ctx, event)
		return
	case MsgRunTerminated:
		o.endRun(event)
		return
	}

	o.mu.Lock()
	if run, ok := o.runs[event.RunID]; ok {
		ctx = run.ctx
	}
	o.mu.Unlock()

	_, span := o.tracer.Start(ctx, event.Msg)
	defer span.End()
	annotate(span, event)
}

func (o *OTelEmitter) startRun(ctx context.Context, event Event) {
	runCtx, span := o.tracer.Start(ctx, "codecrew.run")
	annotate(span, event)

	o.mu.Lock()
	defer o.mu.Unlock()
	if prev, ok := o.runs[event.RunID]; ok {
		prev.span.End()
	}
	o.runs[event.RunID] = openRun{ctx: runCtx, span: span}
}

// endRun closes the run span, or records a standalone span when the run
// was never opened here.
func (o *OTelEmitter) endRun(event Event) {
	o.mu.Lock()
	run, ok := o.runs[event.RunID]
	delete(o.runs, event.RunID)
	o.mu.Unlock()

	if !ok {
		_, span := o.tracer.Start(context.Background(), event.Msg)
		defer span.End()
		annotate(span, event)
		return
	}
	span := run.span
	defer span.End()
	span.AddEvent(event.Msg)
	annotate(span, event)
}

func annotate(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("codecrew.run_id", event.RunID),
		attribute.Int("codecrew.seq", event.Seq),
	)
	if event.Role != "" {
		span.SetAttributes(attribute.String("codecrew.role", event.Role))
	}
	addMetadataAttributes(span, event.Meta)

	if err, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, err)
		span.RecordError(fmt.Errorf("%s", err))
	}
}

// Flush forces export of pending spans when the global tracer provider
// supports it. Call it before process exit.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}

	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// addMetadataAttributes converts event metadata to span attributes. Token
// and model keys are namespaced under codecrew.llm.
func addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	for key, value := range meta {
		attrKey := key
		switch key {
		case "input_tokens":
			attrKey = "codecrew.llm.input_tokens"
		case "output_tokens":
			attrKey = "codecrew.llm.output_tokens"
		case "cost_usd":
			attrKey = "codecrew.llm.cost_usd"
		case "model":
			attrKey = "codecrew.llm.model"
		case "attempt":
			attrKey = "codecrew.attempt"
		case "phase":
			attrKey = "codecrew.phase"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
