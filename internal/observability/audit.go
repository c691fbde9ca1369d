package observability

import (
	"log/slog"

	"github.com/fl-sean03/agentgate/internal/events"
)

// AuditTap subscribes to the event bus and writes a structured audit log
// line per lifecycle event. It never feeds back into control flow — like
// the Health Checker, it only observes.
//
// Grounded on the teacher's pkg/observability.Manager, which logs
// structured fields via log/slog at startup (manager.go); here the same
// idiom runs per event instead of just at startup, and on the scheduler's
// own bus.Subscribe(topic, func(any) {...}) call site for the subscribe
// shape itself.
type AuditTap struct {
	logger *slog.Logger
	unsubs []func()
}

// NewAuditTap subscribes logger (slog.Default() if nil) to every lifecycle
// topic on bus. Call Close to unsubscribe.
func NewAuditTap(bus *events.Bus, logger *slog.Logger) *AuditTap {
	if logger == nil {
		logger = slog.Default()
	}
	t := &AuditTap{logger: logger}

	t.unsubs = append(t.unsubs,
		bus.Subscribe(events.TopicStateChanged, func(e any) {
			ev := e.(events.StateChanged)
			t.logger.Info("state changed", "work_order_id", ev.WorkOrderID, "from", ev.From, "to", ev.To, "event", ev.Event)
		}),
		bus.Subscribe(events.TopicTerminalReached, func(e any) {
			ev := e.(events.TerminalReached)
			t.logger.Info("terminal state reached", "work_order_id", ev.WorkOrderID, "state", ev.State)
		}),
		bus.Subscribe(events.TopicWorkClaimed, func(e any) {
			ev := e.(events.WorkClaimed)
			t.logger.Info("work claimed", "work_order_id", ev.WorkOrderID, "slot_id", ev.SlotID)
		}),
		bus.Subscribe(events.TopicQueueEmpty, func(e any) {
			t.logger.Debug("queue empty")
		}),
		bus.Subscribe(events.TopicBackpressure, func(e any) {
			ev := e.(events.Backpressure)
			t.logger.Warn("scheduler backpressure", "depth", ev.Depth)
		}),
		bus.Subscribe(events.TopicStaggerWait, func(e any) {
			ev := e.(events.StaggerWait)
			t.logger.Debug("stagger wait", "work_order_id", ev.WorkOrderID, "remaining_ms", ev.RemainingMs)
		}),
		bus.Subscribe(events.TopicSlotAvailable, func(e any) {
			ev := e.(events.SlotAvailable)
			t.logger.Debug("slot available", "slot_id", ev.SlotID)
		}),
		bus.Subscribe(events.TopicMemoryPressure, func(e any) {
			ev := e.(events.MemoryPressure)
			t.logger.Warn("memory pressure changed", "level", ev.Level)
		}),
		bus.Subscribe(events.TopicRunStarted, func(e any) {
			ev := e.(events.RunStarted)
			t.logger.Info("run started", "run_id", ev.RunID, "work_order_id", ev.WorkOrderID)
		}),
		bus.Subscribe(events.TopicIterationStarted, func(e any) {
			ev := e.(events.IterationStarted)
			t.logger.Debug("iteration started", "run_id", ev.RunID, "iteration", ev.Iteration)
		}),
		bus.Subscribe(events.TopicIterationComplete, func(e any) {
			ev := e.(events.IterationCompleted)
			t.logger.Debug("iteration completed", "run_id", ev.RunID, "iteration", ev.Iteration, "success", ev.Success)
		}),
		bus.Subscribe(events.TopicRunCompleted, func(e any) {
			ev := e.(events.RunCompleted)
			t.logger.Info("run completed", "run_id", ev.RunID, "result", ev.Result)
		}),
		bus.Subscribe(events.TopicRunFailed, func(e any) {
			ev := e.(events.RunFailed)
			t.logger.Error("run failed", "run_id", ev.RunID, "result", ev.Result, "error_kind", ev.ErrorKind)
		}),
		bus.Subscribe(events.TopicRunCanceled, func(e any) {
			ev := e.(events.RunCanceled)
			t.logger.Info("run canceled", "run_id", ev.RunID, "reason", ev.Reason)
		}),
	)

	return t
}

// Close unsubscribes the tap from every topic it registered on.
func (t *AuditTap) Close() {
	for _, unsub := range t.unsubs {
		unsub()
	}
	t.unsubs = nil
}
