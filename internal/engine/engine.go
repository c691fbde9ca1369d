// Package engine implements the Execution Engine (spec.md §4.7): owns a
// Run from slot-claim to terminal state, driving the Phase Orchestrator
// under the Convergence Controller, enforcing wall-clock and concurrency
// limits, and routing failures to the Retry Manager.
//
// Grounded on the teacher's pkg/runner.Runner (pkg/runner/runner.go): a
// top-level owner that resolves one execution unit (there, a session
// turn; here, a Run) through a bounded loop, emitting events and handing
// off to injected collaborators rather than doing the work itself.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fl-sean03/agentgate/internal/capability"
	"github.com/fl-sean03/agentgate/internal/convergence"
	"github.com/fl-sean03/agentgate/internal/events"
	"github.com/fl-sean03/agentgate/internal/orchestrator"
	"github.com/fl-sean03/agentgate/internal/resources"
	"github.com/fl-sean03/agentgate/internal/retry"
	"github.com/fl-sean03/agentgate/internal/stateflow"
	"github.com/fl-sean03/agentgate/internal/workorder"
)

// Result is a Run's final outcome (spec.md §3's Run.final result enum).
type Result string

const (
	ResultPassed            Result = "PASSED"
	ResultFailedVerification Result = "FAILED_VERIFICATION"
	ResultFailedBuild        Result = "FAILED_BUILD"
	ResultFailedTimeout      Result = "FAILED_TIMEOUT"
	ResultFailedError        Result = "FAILED_ERROR"
	ResultCancelled          Result = "CANCELLED"
)

// IterationRecord is one append-only entry in a Run's history (spec.md §3).
type IterationRecord struct {
	Number           int
	StartedAt        time.Time
	EndedAt          time.Time
	Durations        []orchestrator.PhaseDuration
	SnapshotID       string
	VerificationPassed bool
	FeedbackGenerated bool
	ErrorKind        capability.ErrorKind
	ErrorMessage     string
}

// Run is one execution of a work order (spec.md §3).
type Run struct {
	ID          string
	WorkOrderID string
	Slot        *resources.Slot
	Iteration   int
	SessionID   string
	Feedback    string
	BeforeState capability.BeforeState
	Iterations  []IterationRecord
	Result      Result
	StartedAt   time.Time
	EndedAt     time.Time

	// state is the work order's FSM, driven to its terminal state by the
	// Engine's finish path (spec.md §4.1, §4.7 step 5).
	state *stateflow.StateRecord

	cancel context.CancelCauseFunc

	mu    sync.Mutex
	phase string
}

// Cancel requests cooperative cancellation, recording reason as the
// context's cancellation cause (spec.md §6's cancel(runId, reason)). The
// cause is not surfaced by Status or by the run-canceled event, whose
// Reason is always "cancelled". Execute checks for cancellation at the
// start of each iteration; the orchestrator does not check it between
// phases.
func (r *Run) Cancel(reason string) {
	if r.cancel != nil {
		r.cancel(errors.New(reason))
	}
}

func (r *Run) setIteration(n int) {
	r.mu.Lock()
	r.Iteration = n
	r.mu.Unlock()
}

func (r *Run) setPhase(phase string) {
	r.mu.Lock()
	r.phase = phase
	r.mu.Unlock()
}

// status snapshots the run for Engine.Status (spec.md §6's getStatus),
// safe to call from a goroutine other than the one driving Execute.
func (r *Run) status() RunStatus {
	r.mu.Lock()
	iteration := r.Iteration
	phase := r.phase
	r.mu.Unlock()

	var state stateflow.State
	if r.state != nil {
		state = r.state.State()
	}
	return RunStatus{
		State:     state,
		Iteration: iteration,
		ElapsedMs: time.Since(r.StartedAt).Milliseconds(),
		Phase:     phase,
	}
}

// Config bounds an Engine instance (spec.md §4.7 step 2, and workorder.Limits
// for the per-run wall-clock/iteration caps).
type Config struct {
	MaxConcurrentRuns int
	MaxRetries        int
}

// Engine owns zero or more concurrent Runs.
type Engine struct {
	cfg          Config
	orchestrator *orchestrator.Orchestrator
	convergenceFactory func(identifier string, params map[string]any) (convergence.Strategy, error)
	monitor      *resources.Monitor
	retryMgr     *retry.Manager
	bus          *events.Bus

	mu          sync.Mutex
	activeRuns  map[string]*Run
}

// New creates an Engine. retryMgr may be nil; when set, it receives a
// Schedule call for each retryable build or snapshot failure. Re-enqueueing
// the work order when that retry fires is up to the callback the caller
// passed to retry.New when building retryMgr.
func New(cfg Config, orch *orchestrator.Orchestrator, monitor *resources.Monitor, bus *events.Bus, retryMgr *retry.Manager) *Engine {
	return &Engine{
		cfg:          cfg,
		orchestrator: orch,
		convergenceFactory: convergence.New,
		monitor:      monitor,
		retryMgr:     retryMgr,
		bus:          bus,
		activeRuns:   make(map[string]*Run),
	}
}

// RunStatus is the snapshot spec.md §6's getStatus(runId) returns.
type RunStatus struct {
	State     stateflow.State
	Iteration int
	ElapsedMs int64
	Phase     string // best-effort, last completed orchestrator phase
}

// Cancel requests cooperative cancellation of the named run (spec.md §6's
// cancel(runId, reason)). Returns an error if runId is not currently active.
func (e *Engine) Cancel(runID, reason string) error {
	e.mu.Lock()
	run, ok := e.activeRuns[runID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("engine: no active run %q", runID)
	}
	run.Cancel(reason)
	return nil
}

// Status reports a run's current state, iteration, and elapsed wall-clock
// time (spec.md §6's getStatus). The second return is false if runId is
// not currently active.
func (e *Engine) Status(runID string) (RunStatus, bool) {
	e.mu.Lock()
	run, ok := e.activeRuns[runID]
	e.mu.Unlock()
	if !ok {
		return RunStatus{}, false
	}
	return run.status(), true
}

// ActiveCount reports the number of runs currently executing (spec.md §6's
// getActiveCount).
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.activeRuns)
}

// Snapshotter is the subset of capability.Snapshotter the Engine itself
// calls directly (CaptureBefore, at Run initialization).
type Snapshotter interface {
	CaptureBefore(ctx context.Context, workspacePath string) (capability.BeforeState, error)
}

// StartParams bundles what Execute needs beyond the bound collaborators.
type StartParams struct {
	RunID              string
	WorkOrder          *workorder.WorkOrder
	State              *stateflow.StateRecord
	Slot               *resources.Slot
	GatePlan           any
	ConvergenceKind    string
	ConvergenceParams  map[string]any
	Snapshotter        Snapshotter

	// Persister writes each iteration's agent result and (when reached)
	// verification report through capability.ResultPersister (spec.md §6:
	// "the core writes nothing directly"). May be nil, in which case no
	// iteration artifact is persisted.
	Persister capability.ResultPersister
}

// persistIteration saves what the orchestrator produced this iteration
// through params.Persister, if one is bound. A save error is logged to the
// event bus as best-effort and never fails the run: persistence is a
// side channel, not part of the convergence decision (spec.md §6).
func (e *Engine) persistIteration(ctx context.Context, params StartParams, iteration int, result orchestrator.IterationResult) {
	if params.Persister == nil {
		return
	}
	if err := params.Persister.SaveAgentResult(ctx, params.RunID, iteration, result.AgentResult); err != nil && e.bus != nil {
		e.bus.Publish(events.TopicRunFailed, events.RunFailed{RunID: params.RunID, ErrorKind: string(capability.ErrInternal), Timestamp: time.Now()})
	}
	switch result.Outcome {
	case orchestrator.OutcomeVerifyPassed, orchestrator.OutcomeVerifyFailedRetryable:
		if err := params.Persister.SaveVerification(ctx, params.RunID, iteration, result.Report); err != nil && e.bus != nil {
			e.bus.Publish(events.TopicRunFailed, events.RunFailed{RunID: params.RunID, ErrorKind: string(capability.ErrInternal), Timestamp: time.Now()})
		}
	}
}

// Execute runs params.WorkOrder to a terminal result, synchronously. The
// caller invokes this on its own goroutine (the scheduler already does so
// per spec.md §4.4 step 8: "invoke the execution handler asynchronously").
func (e *Engine) Execute(ctx context.Context, params StartParams) *Run {
	if err := e.validate(params); err != nil {
		if params.State != nil {
			params.State.TransitionFail(false, map[string]any{"error": err.Error()})
		}
		woID := ""
		if params.WorkOrder != nil {
			woID = params.WorkOrder.ID()
		}
		return &Run{ID: params.RunID, WorkOrderID: woID, Result: ResultFailedError, StartedAt: time.Now(), EndedAt: time.Now()}
	}

	e.mu.Lock()
	if e.cfg.MaxConcurrentRuns > 0 && len(e.activeRuns) >= e.cfg.MaxConcurrentRuns {
		e.mu.Unlock()
		if e.monitor != nil {
			e.monitor.ReleaseSlot(params.Slot)
		}
		params.State.TransitionFail(false, map[string]any{"error": "max concurrent runs exceeded"})
		return &Run{ID: params.RunID, WorkOrderID: params.WorkOrder.ID(), Result: ResultFailedError, StartedAt: time.Now(), EndedAt: time.Now()}
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	run := &Run{
		ID:          params.RunID,
		WorkOrderID: params.WorkOrder.ID(),
		Slot:        params.Slot,
		Iteration:   0,
		StartedAt:   time.Now(),
		cancel:      cancel,
		state:       params.State,
	}
	e.activeRuns[run.ID] = run
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.activeRuns, run.ID)
		e.mu.Unlock()
	}()

	before, err := params.Snapshotter.CaptureBefore(runCtx, runWorkspacePath(params.WorkOrder))
	if err != nil {
		return e.finish(run, ResultFailedError, capability.ErrInternal, err.Error())
	}
	run.BeforeState = before

	if _, err := params.State.Transition(stateflow.EventReady, map[string]any{"runId": run.ID}); err != nil {
		return e.finish(run, ResultFailedError, capability.ErrInternal, err.Error())
	}

	strategy, err := e.convergenceFactory(params.ConvergenceKind, params.ConvergenceParams)
	if err != nil {
		return e.finish(run, ResultFailedError, capability.ErrInternal, err.Error())
	}

	if e.bus != nil {
		e.bus.Publish(events.TopicRunStarted, events.RunStarted{RunID: run.ID, WorkOrderID: run.WorkOrderID, Timestamp: run.StartedAt})
	}

	limits := params.WorkOrder.Limits()
	for iteration := 1; ; iteration++ {
		if time.Since(run.StartedAt) >= limits.MaxWallClock {
			return e.finish(run, ResultFailedTimeout, capability.ErrTimeout, "wall-clock budget exceeded")
		}
		select {
		case <-runCtx.Done():
			return e.finish(run, ResultCancelled, capability.ErrCancelled, "run cancelled")
		default:
		}
		if limits.MaxIterations > 0 && iteration > limits.MaxIterations {
			return e.finish(run, ResultFailedVerification, capability.ErrVerificationTerminal, "max iterations reached")
		}

		run.setIteration(iteration)
		iterStart := time.Now()
		if e.bus != nil {
			e.bus.Publish(events.TopicIterationStarted, events.IterationStarted{RunID: run.ID, Iteration: iteration, Timestamp: iterStart})
		}

		result := e.orchestrator.RunIteration(runCtx, orchestrator.Input{
			RunID:         run.ID,
			Iteration:     iteration,
			WorkspacePath: runWorkspacePath(params.WorkOrder),
			TaskPrompt:    params.WorkOrder.TaskPrompt(),
			Feedback:      run.Feedback,
			SessionID:     run.SessionID,
			GatePlan:      params.GatePlan,
			TimeoutMs:     limits.MaxWallClock.Milliseconds(),
			BeforeState:   run.BeforeState,
		})
		run.SessionID = result.SessionID
		run.setPhase(lastPhaseName(result.Durations))
		e.persistIteration(runCtx, params, iteration, result)

		record := IterationRecord{
			Number:    iteration,
			StartedAt: iterStart,
			EndedAt:   time.Now(),
			Durations: result.Durations,
		}
		if result.Err != nil {
			record.ErrorMessage = result.Err.Error()
		}

		if e.bus != nil {
			e.bus.Publish(events.TopicIterationComplete, events.IterationCompleted{RunID: run.ID, Iteration: iteration, Success: result.Success, Timestamp: record.EndedAt})
		}

		switch result.Outcome {
		case orchestrator.OutcomeBuildFailed, orchestrator.OutcomeSnapshotFailed:
			kind, subkind := classifyPhaseFailure(result)
			record.ErrorKind = kind
			run.Iterations = append(run.Iterations, record)

			phaseErr := capability.NewPhaseError(kind, subkind, result.Err)
			st, terr := params.State.TransitionFail(phaseErr.Retryable, map[string]any{"errorKind": string(kind)})
			if terr == nil && st == stateflow.WaitingRetry {
				if e.retryMgr != nil {
					attempt := params.State.RetryCount() + 1
					e.retryMgr.Schedule(run.WorkOrderID, attempt, result.Err)
				}
				failResult := ResultFailedBuild
				if kind == capability.ErrSnapshotFailure {
					failResult = ResultFailedError
				}
				return e.finishWithoutTransition(run, failResult)
			}
			return e.finishAlreadyTransitioned(run, ResultFailedBuild, kind)

		case orchestrator.OutcomeVerifyPassed:
			record.VerificationPassed = true
			record.SnapshotID = result.Snapshot.ID
			run.Iterations = append(run.Iterations, record)
			return e.finish(run, ResultPassed, "", "")

		case orchestrator.OutcomeVerifyFailedRetryable:
			record.SnapshotID = result.Snapshot.ID
			record.FeedbackGenerated = result.Feedback != ""
			run.Iterations = append(run.Iterations, record)

			gates := gateOutcomesFromReport(result.Report)
			decision := strategy.ShouldContinue(convergence.State{
				Iteration:           iteration,
				GatesPassed:         result.Report.Passed,
				Gates:               gates,
				SnapshotFingerprint: result.Snapshot.Fingerprint,
				AgentOutputText:     result.AgentResult.Stdout,
			})
			if decision.Action == convergence.ActionStop {
				return e.finish(run, ResultFailedVerification, capability.ErrVerificationTerminal, decision.Reason)
			}
			run.Feedback = result.Feedback
			// loop continues to the next iteration
		}
	}
}

func runWorkspacePath(wo *workorder.WorkOrder) string {
	ws := wo.Workspace()
	if ws.LocalPath != "" {
		return ws.LocalPath
	}
	return ""
}

func classifyPhaseFailure(result orchestrator.IterationResult) (capability.ErrorKind, capability.ErrorKind) {
	if result.Outcome == orchestrator.OutcomeSnapshotFailed {
		return capability.ErrSnapshotFailure, ""
	}
	return capability.ErrBuildFailure, result.BuildSubkind
}

// lastPhaseName reports the most recently completed orchestrator phase for
// a run's best-effort Status().Phase; empty before any phase has completed.
func lastPhaseName(durations []orchestrator.PhaseDuration) string {
	if len(durations) == 0 {
		return ""
	}
	return durations[len(durations)-1].Phase
}

func gateOutcomesFromReport(report capability.VerificationReport) []convergence.GateOutcome {
	out := make([]convergence.GateOutcome, 0, len(report.Levels))
	for _, level := range report.Levels {
		passed := 0
		for _, c := range level.Checks {
			if c.Passed {
				passed++
			}
		}
		out = append(out, convergence.GateOutcome{Name: level.Level, Passed: level.Passed, LevelsTotal: len(level.Checks), LevelsPassed: passed})
	}
	return out
}

// finish releases the slot, drives the work order's StateRecord to its
// matching terminal event, records the terminal result, and emits the
// matching terminal event on the bus (spec.md §4.7 step 5). The slot is
// released before the state transition fires so that any terminal-reached
// observer sees it already free (spec.md §8: "Slot is released before
// terminal-reached fires").
func (e *Engine) finish(run *Run, result Result, kind capability.ErrorKind, message string) *Run {
	run.Result = result
	run.EndedAt = time.Now()
	if e.monitor != nil {
		e.monitor.ReleaseSlot(run.Slot)
	}
	e.transitionTerminal(run, result, message)
	e.publishTerminal(run, kind)
	return run
}

// transitionTerminal drives run.state to the FSM event matching result:
// COMPLETE on success, CANCEL on cancellation, and a non-retryable FAIL
// (always terminal, never WAITING_RETRY) for every other outcome. The
// retryable FAIL/WAITING_RETRY branch is decided earlier, inline, by the
// build/snapshot-failure case in Execute — see finishWithoutTransition and
// finishAlreadyTransitioned.
func (e *Engine) transitionTerminal(run *Run, result Result, message string) {
	if run.state == nil {
		return
	}
	metadata := map[string]any{"runId": run.ID}
	if message != "" {
		metadata["message"] = message
	}
	var err error
	switch result {
	case ResultPassed:
		_, err = run.state.Transition(stateflow.EventComplete, metadata)
	case ResultCancelled:
		_, err = run.state.Transition(stateflow.EventCancel, metadata)
	default:
		_, err = run.state.TransitionFail(false, metadata)
	}
	if err != nil {
		slog.Error("engine: terminal state transition rejected", "run_id", run.ID, "result", string(result), "error", err)
	}
}

// finishWithoutTransition is used for the WAITING_RETRY branch: the state
// machine already transitioned to WAITING_RETRY via TransitionFail, so the
// Run itself simply stops here without forcing a terminal state-machine
// event (spec.md §4.7 step 4d: "Engine returns the Run in WAITING_RETRY").
func (e *Engine) finishWithoutTransition(run *Run, result Result) *Run {
	run.Result = result
	run.EndedAt = time.Now()
	if e.monitor != nil {
		e.monitor.ReleaseSlot(run.Slot)
	}
	return run
}

// finishAlreadyTransitioned is used when the caller already drove run.state
// to its terminal FAILED event inline (the build/snapshot-failure
// non-retryable branch) — finish would otherwise fire a second, now-invalid
// FAIL against an already-terminal state.
func (e *Engine) finishAlreadyTransitioned(run *Run, result Result, kind capability.ErrorKind) *Run {
	run.Result = result
	run.EndedAt = time.Now()
	if e.monitor != nil {
		e.monitor.ReleaseSlot(run.Slot)
	}
	e.publishTerminal(run, kind)
	return run
}

func (e *Engine) publishTerminal(run *Run, kind capability.ErrorKind) {
	if e.bus == nil {
		return
	}
	switch run.Result {
	case ResultPassed:
		e.bus.Publish(events.TopicRunCompleted, events.RunCompleted{RunID: run.ID, Result: string(run.Result), Timestamp: run.EndedAt})
	case ResultCancelled:
		e.bus.Publish(events.TopicRunCanceled, events.RunCanceled{RunID: run.ID, Reason: "cancelled", Timestamp: run.EndedAt})
	default:
		e.bus.Publish(events.TopicRunFailed, events.RunFailed{RunID: run.ID, Result: string(run.Result), ErrorKind: string(kind), Timestamp: run.EndedAt})
	}
}

func (e *Engine) validate(params StartParams) error {
	if params.WorkOrder == nil {
		return fmt.Errorf("work order is required")
	}
	if params.State == nil {
		return fmt.Errorf("state record is required")
	}
	if params.GatePlan == nil {
		return fmt.Errorf("gate plan is required")
	}
	if params.Snapshotter == nil {
		return fmt.Errorf("snapshotter is required")
	}
	return nil
}
