// Package tracing creates the spans that follow a journal record from the
// watcher through the engine to the extensions.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "edjournal"

// Config holds tracing configuration
type Config struct {
	Enabled bool
	// Endpoint is an OTLP/gRPC collector. Without one spans are sampled but
	// not exported.
	Endpoint   string
	Insecure   bool
	SampleRate float64
	Version    string
}

// Provider wraps the OpenTelemetry tracer provider
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider creates a tracer provider. A disabled provider hands out no-op
// spans.
func NewProvider(ctx context.Context, cfg Config, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(serviceName)}, nil
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
		sdktrace.WithResource(res),
	}

	if cfg.Endpoint != "" {
		clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(clientOpts...))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(append(tpOpts, opts...)...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tp:     tp,
		tracer: tp.Tracer(serviceName),
	}, nil
}

// sampler keeps every trace unless a rate in (0, 1) is configured. Child
// spans follow their parent's decision.
func sampler(rate float64) sdktrace.Sampler {
	if rate > 0 && rate < 1 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

// Tracer returns the tracer
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp != nil {
		return p.tp.Shutdown(ctx)
	}
	return nil
}

// RecordError marks the span in ctx as failed.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceRead creates a span for reading appended journal bytes
func TraceRead(ctx context.Context, tracer trace.Tracer, role string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "watcher.read",
		trace.WithAttributes(
			attribute.String("journal.role", role),
		),
	)
}

// TraceApply creates a span for one state transition
func TraceApply(ctx context.Context, tracer trace.Tracer, kind string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "engine.apply",
		trace.WithAttributes(
			attribute.String("journal.event", kind),
		),
	)
}

// TraceNotify creates a span for delivering one event to an extension
func TraceNotify(ctx context.Context, tracer trace.Tracer, extension, kind string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "extension.notify",
		trace.WithAttributes(
			attribute.String("extension.name", extension),
			attribute.String("journal.event", kind),
		),
	)
}

// TraceExport creates a span for a ship loadout export
func TraceExport(ctx context.Context, tracer trace.Tracer, ship string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "loadout.export",
		trace.WithAttributes(
			attribute.String("ship", ship),
		),
	)
}
