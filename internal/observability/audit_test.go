package observability

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fl-sean03/agentgate/internal/events"
)

func TestAuditTapLogsRunLifecycleEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	bus := events.NewBus()
	tap := NewAuditTap(bus, logger)
	defer tap.Close()

	bus.Publish(events.TopicRunStarted, events.RunStarted{RunID: "run-1", WorkOrderID: "wo-1", Timestamp: time.Now()})
	bus.Publish(events.TopicRunCompleted, events.RunCompleted{RunID: "run-1", Result: "passed", Timestamp: time.Now()})

	out := buf.String()
	assert.Contains(t, out, "run started")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "run completed")
}

func TestAuditTapCloseStopsLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	bus := events.NewBus()
	tap := NewAuditTap(bus, logger)
	tap.Close()

	bus.Publish(events.TopicRunStarted, events.RunStarted{RunID: "run-1", WorkOrderID: "wo-1", Timestamp: time.Now()})
	assert.Empty(t, buf.String())
}
