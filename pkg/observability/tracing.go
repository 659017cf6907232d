// Package observability wires OpenTelemetry tracing and Prometheus metrics
// for the dispatcher and its HTTP surface.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const logPrefix = "observability:tracing"

// TracingConfig holds tracer configuration.
type TracingConfig struct {
	Enabled     bool
	Exporter    string // otlp-http, none
	Endpoint    string // localhost:4318
	ServiceName string
	SampleRate  float64 // 0.0 to 1.0
}

type provider struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

var global = &provider{tracer: noop.NewTracerProvider().Tracer("")}

// Init configures the global tracer provider. A disabled config installs a
// no-op tracer.
func Init(ctx context.Context, cfg TracingConfig) error {
	if !cfg.Enabled {
		global = &provider{tracer: noop.NewTracerProvider().Tracer("")}
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return fmt.Errorf("%s - create resource: %w", logPrefix, err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp-http", "otlp", "":
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("%s - create OTLP exporter: %w", logPrefix, err)
		}
		exporter = exp
	case "none":
		exporter = discardExporter{}
	default:
		return fmt.Errorf("%s - unknown exporter: %s", logPrefix, cfg.Exporter)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 && cfg.SampleRate >= 0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	global = &provider{tp: tp, tracer: tp.Tracer(cfg.ServiceName), enabled: true}
	return nil
}

// UseTracerProvider installs tp as the tracer source. Used by tests with an
// in-memory exporter.
func UseTracerProvider(tp *sdktrace.TracerProvider, name string) {
	global = &provider{tp: tp, tracer: tp.Tracer(name), enabled: true}
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	if global.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return global.tp.Shutdown(ctx)
}

// Tracer returns the global tracer.
func Tracer() trace.Tracer {
	return global.tracer
}

// Enabled reports whether tracing is enabled.
func Enabled() bool {
	return global.enabled
}

// StartSpan starts an internal span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError marks the span as errored.
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful.
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Span attribute keys.
var (
	AttrFunctionName = attribute.Key("webhook.function.name")
	AttrAppID        = attribute.Key("webhook.app_id")
	AttrRequestID    = attribute.Key("webhook.request_id")
	AttrProvider     = attribute.Key("webhook.provider")
	AttrErrorCode    = attribute.Key("webhook.error_code")
)

type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }

func (discardExporter) Shutdown(context.Context) error { return nil }
