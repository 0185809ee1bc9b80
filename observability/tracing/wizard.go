package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names emitted by WizardTracer.
const (
	SpanRun      = "wizard.run"
	SpanParse    = "wizard.parse"
	SpanBatch    = "wizard.batch"
	SpanAssemble = "wizard.assemble"
)

// WizardTracer creates spans around one wizard run and its steps.
type WizardTracer struct {
	tracer trace.Tracer
}

// NewWizardTracer creates a WizardTracer. If tracer is nil, the global
// tracer provider is used.
func NewWizardTracer(tracer trace.Tracer) *WizardTracer {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer("workflow-wizard")
	}
	return &WizardTracer{tracer: tracer}
}

// StartRun begins the root span of a wizard run.
func (w *WizardTracer) StartRun(ctx context.Context, runID, query string) (context.Context, trace.Span) {
	return w.tracer.Start(ctx, SpanRun,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("wizard.run_id", runID),
			attribute.Int("wizard.query_length", len(query)),
		),
	)
}

// StartParse begins the span around the intent service call.
func (w *WizardTracer) StartParse(ctx context.Context) (context.Context, trace.Span) {
	return w.tracer.Start(ctx, SpanParse, trace.WithSpanKind(trace.SpanKindClient))
}

// StartBatch begins the span around one batch generation request.
func (w *WizardTracer) StartBatch(ctx context.Context, batch, size, total int) (context.Context, trace.Span) {
	return w.tracer.Start(ctx, SpanBatch,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("wizard.batch.number", batch),
			attribute.Int("wizard.batch.size", size),
			attribute.Int("wizard.total_count", total),
		),
	)
}

// StartAssemble begins the span around graph assembly.
func (w *WizardTracer) StartAssemble(ctx context.Context, actors int) (context.Context, trace.Span) {
	return w.tracer.Start(ctx, SpanAssemble,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("wizard.actor_count", actors)),
	)
}

// RecordError records an error on the given span and sets the span status.
func (w *WizardTracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks a span as successful.
func (w *WizardTracer) SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
