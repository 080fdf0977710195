package observability

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zhouzirui/memchat/backend/internal/config"
)

// TracerName is the instrumentation scope for spans emitted by memchat.
const TracerName = "github.com/zhouzirui/memchat/backend"

const exportTimeout = 10 * time.Second

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

var newOTLPExporter = func(ctx context.Context, cfg config.ObservabilityConfig) (sdktrace.SpanExporter, error) {
	endpoint := normalizeEndpoint(cfg.TracingEndpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("tracing endpoint cannot be empty")
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithTimeout(exportTimeout),
		otlptracegrpc.WithInsecure(),
	}
	if len(cfg.TracingHeaders) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.TracingHeaders))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// quietExporter keeps export failures out of the request path.
type quietExporter struct {
	exporter sdktrace.SpanExporter
	endpoint string
}

func (e *quietExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if err := e.exporter.ExportSpans(ctx, spans); err != nil {
		log.Printf("[tracing] export to %s failed spans=%d: %v", e.endpoint, len(spans), err)
	}
	return nil
}

func (e *quietExporter) Shutdown(ctx context.Context) error {
	return e.exporter.Shutdown(ctx)
}

// InitTracing installs the process-wide tracer provider. With tracing
// disabled a noop provider is installed.
func InitTracing(ctx context.Context, cfg config.ObservabilityConfig, version string) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.TracingEnabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newOTLPExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create tracing exporter: %w", err)
	}
	exp = &quietExporter{exporter: exp, endpoint: normalizeEndpoint(cfg.TracingEndpoint)}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "memchat"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("create tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)

	return func(shutdownCtx context.Context) error {
		if err := tp.ForceFlush(shutdownCtx); err != nil {
			_ = tp.Shutdown(shutdownCtx)
			return fmt.Errorf("force flush tracing provider: %w", err)
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown tracing provider: %w", err)
		}
		return nil
	}, nil
}

// Tracer returns the memchat tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

func normalizeEndpoint(endpoint string) string {
	raw := strings.TrimSpace(endpoint)
	if raw == "" || !strings.Contains(raw, "://") {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	return parsed.Host
}
