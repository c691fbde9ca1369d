package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func attrString(key, value string) attribute.KeyValue { return attribute.String(key, value) }
func attrBool(key string, value bool) attribute.KeyValue { return attribute.Bool(key, value) }

// Metrics records AgentGate's run/iteration/phase/queue/retry/pressure
// metrics through the OpenTelemetry metrics API, exported to Prometheus via
// the otel/exporters/prometheus bridge (SPEC_FULL.md §2's Observability
// layer). Grounded on the teacher's pkg/observability.Metrics for the
// per-concern Record* shape and nil-receiver safety, and on
// pkg/observability.recorder.go (PrometheusMetrics) for using OTel metric
// instruments rather than raw client_golang vectors directly.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	runDuration metric.Float64Histogram
	runsTotal   metric.Int64Counter
	runErrors   metric.Int64Counter

	iterationsTotal metric.Int64Counter
	phaseDuration   metric.Float64Histogram

	queueDepth      metric.Int64Gauge
	retryPending    metric.Int64Gauge
	memoryPressure  metric.Float64Gauge
	slotsInUse      metric.Int64Gauge
	slotsTotal      metric.Int64Gauge
}

// NewMetrics builds a Metrics instance from MetricsConfig. The returned
// Metrics owns a private prometheus.Registry; Handler serves it.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprometheus.New(
		otelprometheus.WithNamespace(cfg.Namespace),
		otelprometheus.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(cfg.Namespace)

	m := &Metrics{registry: registry, provider: provider}

	if m.runDuration, err = meter.Float64Histogram("run_duration_seconds",
		metric.WithDescription("Wall-clock duration of a completed Run, in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.runsTotal, err = meter.Int64Counter("runs_total",
		metric.WithDescription("Count of Runs reaching a terminal result, by result kind"),
	); err != nil {
		return nil, err
	}
	if m.runErrors, err = meter.Int64Counter("run_errors_total",
		metric.WithDescription("Count of Runs that ended in a FAILED-family result, by error kind/subkind"),
	); err != nil {
		return nil, err
	}
	if m.iterationsTotal, err = meter.Int64Counter("iterations_total",
		metric.WithDescription("Count of orchestrator iterations run, by success"),
	); err != nil {
		return nil, err
	}
	if m.phaseDuration, err = meter.Float64Histogram("phase_duration_seconds",
		metric.WithDescription("Wall-clock duration of one orchestrator phase, by phase kind"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.queueDepth, err = meter.Int64Gauge("scheduler_queue_depth",
		metric.WithDescription("Current number of work orders waiting in the scheduler queue"),
	); err != nil {
		return nil, err
	}
	if m.retryPending, err = meter.Int64Gauge("retry_pending_count",
		metric.WithDescription("Current number of work orders with a scheduled retry timer"),
	); err != nil {
		return nil, err
	}
	if m.memoryPressure, err = meter.Float64Gauge("memory_pressure_ratio",
		metric.WithDescription("Fraction of memory budget currently in use"),
	); err != nil {
		return nil, err
	}
	if m.slotsInUse, err = meter.Int64Gauge("concurrency_slots_in_use",
		metric.WithDescription("Number of concurrency slots currently held"),
	); err != nil {
		return nil, err
	}
	if m.slotsTotal, err = meter.Int64Gauge("concurrency_slots_total",
		metric.WithDescription("Total configured concurrency slots"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRunCompletion records a terminal Run's duration and result.
func (m *Metrics) RecordRunCompletion(ctx context.Context, result string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attrString("result", result))
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
	m.runsTotal.Add(ctx, 1, attrs)
}

// RecordRunError records a FAILED-family Run's error classification.
func (m *Metrics) RecordRunError(ctx context.Context, errorKind, errorSubkind string) {
	if m == nil {
		return
	}
	m.runErrors.Add(ctx, 1, metric.WithAttributes(
		attrString("error_kind", errorKind),
		attrString("error_subkind", errorSubkind),
	))
}

// RecordIteration records one orchestrator iteration's outcome.
func (m *Metrics) RecordIteration(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.iterationsTotal.Add(ctx, 1, metric.WithAttributes(attrBool("success", success)))
}

// RecordPhaseDuration records one phase's wall-clock duration.
func (m *Metrics) RecordPhaseDuration(ctx context.Context, phaseKind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrString("phase", phaseKind)))
}

// SetQueueDepth records the scheduler's current queue depth.
func (m *Metrics) SetQueueDepth(ctx context.Context, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Record(ctx, int64(depth))
}

// SetRetryPending records the retry manager's pending-timer count.
func (m *Metrics) SetRetryPending(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.retryPending.Record(ctx, int64(count))
}

// SetMemoryPressure records the resource monitor's current pressure ratio.
func (m *Metrics) SetMemoryPressure(ctx context.Context, ratio float64) {
	if m == nil {
		return
	}
	m.memoryPressure.Record(ctx, ratio)
}

// SetSlots records concurrency slot occupancy.
func (m *Metrics) SetSlots(ctx context.Context, inUse, total int) {
	if m == nil {
		return
	}
	m.slotsInUse.Record(ctx, int64(inUse))
	m.slotsTotal.Record(ctx, int64(total))
}

// Handler returns the HTTP handler serving this Metrics' Prometheus
// registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return metricsHandlerUnavailable()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown stops the underlying meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
