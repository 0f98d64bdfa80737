// Package tracing builds the process-wide OTel tracer provider, exporting
// via OTLP/HTTP when an endpoint is configured and exporting nothing
// otherwise, so the bot never depends on a collector being present. It
// offers StartSpan for callers; the gateway and evaluator do not start
// spans.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider bundles the SDK tracer provider; Shutdown should be called
// once at process exit to flush any pending spans.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider builds a tracer provider. When endpoint is empty, traces are
// still recorded in-process (useful for tests asserting span names) but
// never exported; a non-empty endpoint wires an OTLP/HTTP exporter.
func NewProvider(ctx context.Context, endpoint string) (*Provider, error) {
	opts := []sdktrace.TracerProviderOption{}

	if endpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp, tracer: tp.Tracer("pagelist-bot")}, nil
}

// Shutdown flushes and stops the underlying tracer provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// StartSpan starts a span named name as a child of ctx's current span.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name)
}
