package events

import "time"

// StateChanged is published whenever a work order's state machine applies
// a valid transition.
type StateChanged struct {
	WorkOrderID string
	From        string
	To          string
	Event       string
	Metadata    map[string]any
	Timestamp   time.Time
}

// TerminalReached is published once, when a work order's state machine
// enters a terminal state (COMPLETED, FAILED, CANCELLED).
type TerminalReached struct {
	WorkOrderID string
	State       string
	Timestamp   time.Time
}

// WorkClaimed is published by the scheduler when it hands a work order to
// the execution handler.
type WorkClaimed struct {
	WorkOrderID string
	SlotID      string
	Timestamp   time.Time
}

// QueueEmpty is published when the scheduler finds nothing to claim.
type QueueEmpty struct {
	Timestamp time.Time
}

// Backpressure is published when an enqueue is rejected for being over
// maxQueueDepth.
type Backpressure struct {
	Depth     int
	Timestamp time.Time
}

// StaggerWait is published when a claim attempt is deferred because the
// stagger delay since the last claim has not yet elapsed.
type StaggerWait struct {
	WorkOrderID string
	RemainingMs int64
	Timestamp   time.Time
}

// SlotAvailable is published exactly once per first release of a slot.
type SlotAvailable struct {
	SlotID    string
	Timestamp time.Time
}

// MemoryPressure is published on pressure-level transitions only.
type MemoryPressure struct {
	Level     string
	Timestamp time.Time
}

// RunStarted is published when the execution engine begins a Run.
type RunStarted struct {
	RunID       string
	WorkOrderID string
	Timestamp   time.Time
}

// IterationStarted is published at the start of each orchestrator pass.
type IterationStarted struct {
	RunID     string
	Iteration int
	Timestamp time.Time
}

// IterationCompleted is published once an iteration's phases have run.
type IterationCompleted struct {
	RunID     string
	Iteration int
	Success   bool
	Timestamp time.Time
}

// RunCompleted is published when a Run reaches the PASSED result.
type RunCompleted struct {
	RunID     string
	Result    string
	Timestamp time.Time
}

// RunFailed mirrors RunCompleted for FAILED-family results.
type RunFailed struct {
	RunID     string
	Result    string
	ErrorKind string
	Timestamp time.Time
}

// RunCanceled is published when a Run's result is CANCELLED.
type RunCanceled struct {
	RunID     string
	Reason    string
	Timestamp time.Time
}
