package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Tracer wraps the OpenTelemetry tracer with AgentGate-specific span
// helpers, grounded on the teacher's v2/observability.Tracer.
type Tracer struct {
	provider       *sdktrace.TracerProvider
	tracer         trace.Tracer
	debugExporter  *DebugExporter
	capturePayload bool
	serviceName    string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithDebugExporter attaches an in-memory span exporter.
func WithDebugExporter(exporter *DebugExporter) TracerOption {
	return func(t *Tracer) { t.debugExporter = exporter }
}

// WithCapturePayloads enables capturing feedback/diagnostic payloads on spans.
func WithCapturePayloads(capture bool) TracerOption {
	return func(t *Tracer) { t.capturePayload = capture }
}

// NewTracer builds a Tracer from TracingConfig. Returns (nil, nil) when
// tracing is disabled, matching the nil-receiver-safe methods below.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cfg.SetDefaults()

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Tracer{
		provider:    provider,
		tracer:      provider.Tracer(cfg.ServiceName),
		serviceName: cfg.ServiceName,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.debugExporter != nil {
		provider.RegisterSpanProcessor(sdktrace.NewSimpleSpanProcessor(t.debugExporter))
	}

	return t, nil
}

func createExporter(ctx context.Context, cfg *TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp":
		return createOTLPExporter(ctx, cfg)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

func createOTLPExporter(ctx context.Context, cfg *TracingConfig) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(cfg.Timeout),
	}

	if cfg.IsInsecure() {
		opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	return otlptracegrpc.New(ctx, opts...)
}

// Start begins a span with the given name. Nil-receiver-safe.
func (t *Tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, spanName, opts...)
}

// StartRun begins the top-level span for a Run.
func (t *Tracer) StartRun(ctx context.Context, runID, workOrderID, agentKind, gatePlan, convergenceKind string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanRun,
		trace.WithAttributes(
			attribute.String(AttrRunID, runID),
			attribute.String(AttrWorkOrderID, workOrderID),
			attribute.String(AttrAgentKind, agentKind),
			attribute.String(AttrGatePlan, gatePlan),
			attribute.String(AttrConvergenceKind, convergenceKind),
		),
	)
}

// StartIteration begins a span for one orchestrator pass.
func (t *Tracer) StartIteration(ctx context.Context, runID string, iteration int) (context.Context, trace.Span) {
	return t.Start(ctx, SpanIteration,
		trace.WithAttributes(
			attribute.String(AttrRunID, runID),
			attribute.Int(AttrIteration, iteration),
		),
	)
}

// StartPhase begins a span for one of the four orchestrator phases.
func (t *Tracer) StartPhase(ctx context.Context, phaseSpanName, phaseKind string) (context.Context, trace.Span) {
	return t.Start(ctx, phaseSpanName, trace.WithAttributes(attribute.String(AttrPhaseKind, phaseKind)))
}

// AddSnapshot records the snapshot captured for an iteration.
func (t *Tracer) AddSnapshot(span trace.Span, snapshotID string) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String(AttrSnapshotID, snapshotID))
}

// AddVerification records a verification outcome.
func (t *Tracer) AddVerification(span trace.Span, passed bool) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Bool(AttrVerificationPassed, passed))
}

// AddResult records the terminal Run result.
func (t *Tracer) AddResult(span trace.Span, result string) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String(AttrResultKind, result))
}

// AddFeedback attaches feedback text to a span, if payload capture is on.
func (t *Tracer) AddFeedback(span trace.Span, feedback string) {
	if span == nil || !t.capturePayload || feedback == "" {
		return
	}
	span.SetAttributes(attribute.String("agentgate.feedback", feedback))
}

// RecordError records an error and its classification on a span.
func (t *Tracer) RecordError(span trace.Span, err error, errorKind, errorSubkind string) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	attrs := []attribute.KeyValue{
		attribute.String(AttrErrorType, fmt.Sprintf("%T", err)),
		attribute.String(AttrErrorMessage, err.Error()),
	}
	if errorKind != "" {
		attrs = append(attrs, attribute.String(AttrErrorKind, errorKind))
	}
	if errorSubkind != "" {
		attrs = append(attrs, attribute.String(AttrErrorSubkind, errorSubkind))
	}
	span.SetAttributes(attrs...)
}

// DebugExporter returns the configured debug exporter, or nil.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// noopSpan returns a span that satisfies trace.Span but records nothing.
func noopSpan() trace.Span {
	_, span := trace.NewNoopTracerProvider().Tracer("noop").Start(context.Background(), "noop")
	return span
}
