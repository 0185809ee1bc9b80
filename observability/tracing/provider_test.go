package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Enabled {
		t.Error("tracing should be disabled by default")
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected default endpoint localhost:4318, got %s", cfg.Endpoint)
	}
	if cfg.ServiceName != "workflow-wizard" {
		t.Errorf("expected default service name workflow-wizard, got %s", cfg.ServiceName)
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Enabled() {
		t.Error("disabled provider reports Enabled")
	}
	_, span := p.Tracer().Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("expected a no-op span")
	}
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown of disabled provider should not error: %v", err)
	}
}

func TestNewProviderWithExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	exporter := tracetest.NewInMemoryExporter()
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.ServiceVersion = "test"

	p, err := newProviderWithExporter(context.Background(), cfg, exporter)
	if err != nil {
		t.Fatalf("newProviderWithExporter: %v", err)
	}
	if !p.Enabled() {
		t.Error("expected enabled provider")
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Error("expected the SDK provider to be installed globally")
	}

	_, span := NewWizardTracer(p.Tracer()).StartRun(context.Background(), "run-1", "q")
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := len(exporter.GetSpans()); got != 1 {
		t.Errorf("expected 1 exported span after shutdown flush, got %d", got)
	}
}

func TestSampler(t *testing.T) {
	if got := sampler(0).Description(); got != sdktrace.AlwaysSample().Description() {
		t.Errorf("sampler(0) = %s", got)
	}
	if got := sampler(0.5).Description(); got == sdktrace.AlwaysSample().Description() {
		t.Errorf("sampler(0.5) should be ratio based, got %s", got)
	}
}
