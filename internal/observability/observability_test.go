package observability

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerWithNilConfigIsInert(t *testing.T) {
	m, err := NewManager(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, m.TracingEnabled())
	assert.False(t, m.MetricsEnabled())
	assert.Nil(t, m.Tracer())
	assert.Nil(t, m.Metrics())
}

func TestNewManagerEnablesMetrics(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	m, err := NewManager(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, m.MetricsEnabled())
	assert.False(t, m.TracingEnabled())

	m.Metrics().SetQueueDepth(context.Background(), 3)
	m.Metrics().RecordRunCompletion(context.Background(), "passed", 0)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "agentgate_scheduler_queue_depth")
}

func TestNewManagerRejectsInvalidTracingConfig(t *testing.T) {
	cfg := &Config{Tracing: TracingConfig{Enabled: true, Exporter: "not-a-real-exporter"}}
	_, err := NewManager(context.Background(), cfg)
	assert.Error(t, err)
}

func TestTracerNilReceiverMethodsAreSafe(t *testing.T) {
	var tr *Tracer
	ctx, span := tr.Start(context.Background(), SpanRun)
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
	assert.Nil(t, tr.DebugExporter())
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestDebugExporterCapturesOnlyKnownSpans(t *testing.T) {
	de := NewDebugExporter()
	assert.Equal(t, 0, de.Count())
	assert.True(t, de.shouldCapture(SpanRun))
	assert.False(t, de.shouldCapture("some.other.span"))
}

func TestNoopManagerIsFullyInert(t *testing.T) {
	m := NoopManager()
	assert.False(t, m.TracingEnabled())
	assert.False(t, m.MetricsEnabled())
	assert.NoError(t, m.Shutdown(context.Background()))
}
