package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fl-sean03/agentgate/internal/capability"
	"github.com/fl-sean03/agentgate/internal/events"
	"github.com/fl-sean03/agentgate/internal/orchestrator"
	"github.com/fl-sean03/agentgate/internal/resources"
	"github.com/fl-sean03/agentgate/internal/retry"
	"github.com/fl-sean03/agentgate/internal/stateflow"
	"github.com/fl-sean03/agentgate/internal/workorder"
)

type scriptedDriver struct {
	results []capability.AgentResult
	errs    []error
	calls   int
}

func (d *scriptedDriver) Execute(ctx context.Context, req capability.AgentRequest) (capability.AgentResult, error) {
	i := d.calls
	if i >= len(d.results) {
		i = len(d.results) - 1
	}
	d.calls++
	var err error
	if i < len(d.errs) {
		err = d.errs[i]
	}
	return d.results[i], err
}

type scriptedSnapshotter struct {
	snap capability.Snapshot
	err  error
}

func (s scriptedSnapshotter) CaptureBefore(ctx context.Context, path string) (capability.BeforeState, error) {
	return capability.BeforeState{WorkspacePath: path}, nil
}
func (s scriptedSnapshotter) Capture(ctx context.Context, path string, before capability.BeforeState, runID string, iteration int, prompt string) (capability.Snapshot, error) {
	return s.snap, s.err
}

type scriptedVerifier struct {
	reports []capability.VerificationReport
	calls   int
}

func (v *scriptedVerifier) Verify(ctx context.Context, req capability.VerifyRequest) (capability.VerificationReport, error) {
	i := v.calls
	if i >= len(v.reports) {
		i = len(v.reports) - 1
	}
	v.calls++
	return v.reports[i], nil
}

func newWorkOrder(t *testing.T, maxIterations int, maxWallClock time.Duration) *workorder.WorkOrder {
	t.Helper()
	wo, err := workorder.New(workorder.Params{
		TaskPrompt: "fix it",
		Workspace:  workorder.WorkspaceSource{Kind: workorder.WorkspaceLocalPath, LocalPath: "/tmp/ws"},
		AgentKind:  "coding-agent",
		Limits:     workorder.Limits{MaxIterations: maxIterations, MaxWallClock: maxWallClock},
	})
	require.NoError(t, err)
	return wo
}

func preparedState(t *testing.T, woID string) *stateflow.StateRecord {
	t.Helper()
	st := stateflow.New(woID, 3)
	_, err := st.Transition(stateflow.EventClaim, nil)
	require.NoError(t, err)
	return st
}

func TestExecuteCompletesOnFirstPassVerification(t *testing.T) {
	bus := events.NewBus()
	mon := resources.New(2, bus)
	slot, _ := mon.AcquireSlot("wo-1")

	orch := orchestrator.New(
		&scriptedDriver{results: []capability.AgentResult{{Success: true}}},
		scriptedSnapshotter{snap: capability.Snapshot{ID: "snap-1"}},
		&scriptedVerifier{reports: []capability.VerificationReport{{Passed: true}}},
		nil,
	)
	eng := New(Config{MaxConcurrentRuns: 2}, orch, mon, bus, nil)

	wo := newWorkOrder(t, 5, time.Minute)
	st := preparedState(t, wo.ID())

	run := eng.Execute(context.Background(), StartParams{
		RunID: "run-1", WorkOrder: wo, State: st, Slot: slot, GatePlan: "default",
		ConvergenceKind: "fixed", ConvergenceParams: map[string]any{"n": 3},
		Snapshotter: scriptedSnapshotter{},
	})

	assert.Equal(t, ResultPassed, run.Result)
	assert.Equal(t, 1, run.Iteration)
	slotsHealth, _ := mon.Health()
	assert.Equal(t, 0, slotsHealth.InUse, "slot released on terminal result")
}

func TestExecuteRoutesRetryableBuildFailureToWaitingRetry(t *testing.T) {
	bus := events.NewBus()
	mon := resources.New(2, bus)
	slot, _ := mon.AcquireSlot("wo-1")

	orch := orchestrator.New(
		&scriptedDriver{results: []capability.AgentResult{{Success: false, ErrorSubkind: capability.SubkindAgentTimeout}}},
		scriptedSnapshotter{},
		&scriptedVerifier{},
		nil,
	)
	retryMgr := retry.New(retry.DefaultConfig(), func(woID string, attempt int) {})
	eng := New(Config{MaxConcurrentRuns: 2}, orch, mon, bus, retryMgr)

	wo := newWorkOrder(t, 5, time.Minute)
	st := preparedState(t, wo.ID())

	run := eng.Execute(context.Background(), StartParams{
		RunID: "run-1", WorkOrder: wo, State: st, Slot: slot, GatePlan: "default",
		ConvergenceKind: "fixed", ConvergenceParams: nil,
		Snapshotter: scriptedSnapshotter{},
	})

	assert.Equal(t, stateflow.WaitingRetry, st.State())
	assert.Equal(t, ResultFailedBuild, run.Result)
	stats := retryMgr.GetStats()
	assert.Equal(t, 1, stats.PendingCount)
	assert.Equal(t, 1, stats.Attempts[wo.ID()])
	slotsHealth, _ := mon.Health()
	assert.Equal(t, 0, slotsHealth.InUse)
}

func TestExecuteAgentCrashIsNotRetryable(t *testing.T) {
	bus := events.NewBus()
	mon := resources.New(2, bus)
	slot, _ := mon.AcquireSlot("wo-1")

	orch := orchestrator.New(
		&scriptedDriver{results: []capability.AgentResult{{Success: false, ErrorSubkind: capability.SubkindAgentCrash}}},
		scriptedSnapshotter{},
		&scriptedVerifier{},
		nil,
	)
	eng := New(Config{MaxConcurrentRuns: 2}, orch, mon, bus, nil)

	wo := newWorkOrder(t, 5, time.Minute)
	st := preparedState(t, wo.ID())

	run := eng.Execute(context.Background(), StartParams{
		RunID: "run-1", WorkOrder: wo, State: st, Slot: slot, GatePlan: "default",
		ConvergenceKind: "fixed", ConvergenceParams: nil,
		Snapshotter: scriptedSnapshotter{},
	})

	assert.Equal(t, stateflow.Failed, st.State(), "agent_crash is not retryable")
	assert.Equal(t, ResultFailedBuild, run.Result)
}

func TestExecuteContinuesThenPassesViaConvergence(t *testing.T) {
	bus := events.NewBus()
	mon := resources.New(2, bus)
	slot, _ := mon.AcquireSlot("wo-1")

	orch := orchestrator.New(
		&scriptedDriver{results: []capability.AgentResult{{Success: true}, {Success: true}}},
		scriptedSnapshotter{snap: capability.Snapshot{ID: "snap-1"}},
		&scriptedVerifier{reports: []capability.VerificationReport{{Passed: false}, {Passed: true}}},
		nil,
	)
	eng := New(Config{MaxConcurrentRuns: 2}, orch, mon, bus, nil)

	wo := newWorkOrder(t, 5, time.Minute)
	st := preparedState(t, wo.ID())

	run := eng.Execute(context.Background(), StartParams{
		RunID: "run-1", WorkOrder: wo, State: st, Slot: slot, GatePlan: "default",
		ConvergenceKind: "fixed", ConvergenceParams: map[string]any{"n": 5},
		Snapshotter: scriptedSnapshotter{},
	})

	assert.Equal(t, ResultPassed, run.Result)
	assert.Equal(t, 2, run.Iteration)
}

func TestExecuteStopsOnWallClockTimeout(t *testing.T) {
	bus := events.NewBus()
	mon := resources.New(2, bus)
	slot, _ := mon.AcquireSlot("wo-1")

	orch := orchestrator.New(
		&scriptedDriver{results: []capability.AgentResult{{Success: true}}},
		scriptedSnapshotter{snap: capability.Snapshot{ID: "snap-1"}},
		&scriptedVerifier{reports: []capability.VerificationReport{{Passed: false}}},
		nil,
	)
	eng := New(Config{MaxConcurrentRuns: 2}, orch, mon, bus, nil)

	wo := newWorkOrder(t, 1000, time.Nanosecond) // budget expires instantly
	st := preparedState(t, wo.ID())
	time.Sleep(time.Millisecond)

	run := eng.Execute(context.Background(), StartParams{
		RunID: "run-1", WorkOrder: wo, State: st, Slot: slot, GatePlan: "default",
		ConvergenceKind: "manual", ConvergenceParams: nil,
		Snapshotter: scriptedSnapshotter{},
	})

	assert.Equal(t, ResultFailedTimeout, run.Result)
}

func TestExecuteCancellationStopsTheRun(t *testing.T) {
	bus := events.NewBus()
	mon := resources.New(2, bus)
	slot, _ := mon.AcquireSlot("wo-1")

	orch := orchestrator.New(
		&scriptedDriver{results: []capability.AgentResult{{Success: true}}},
		scriptedSnapshotter{snap: capability.Snapshot{ID: "snap-1"}},
		&scriptedVerifier{reports: []capability.VerificationReport{{Passed: false}}},
		nil,
	)
	eng := New(Config{MaxConcurrentRuns: 2}, orch, mon, bus, nil)

	wo := newWorkOrder(t, 1000, time.Hour)
	st := preparedState(t, wo.ID())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled before Execute's first boundary check

	run := eng.Execute(ctx, StartParams{
		RunID: "run-1", WorkOrder: wo, State: st, Slot: slot, GatePlan: "default",
		ConvergenceKind: "manual", ConvergenceParams: nil,
		Snapshotter: scriptedSnapshotter{},
	})

	assert.Equal(t, ResultCancelled, run.Result)
}

func TestExecuteRejectsWhenAtConcurrencyLimit(t *testing.T) {
	bus := events.NewBus()
	mon := resources.New(2, bus)
	slot, _ := mon.AcquireSlot("wo-1")

	orch := orchestrator.New(
		&scriptedDriver{results: []capability.AgentResult{{Success: true}}},
		scriptedSnapshotter{},
		&scriptedVerifier{},
		nil,
	)
	eng := New(Config{MaxConcurrentRuns: 1}, orch, mon, bus, nil)
	eng.activeRuns["already-running"] = &Run{}

	wo := newWorkOrder(t, 5, time.Minute)
	st := preparedState(t, wo.ID())

	run := eng.Execute(context.Background(), StartParams{
		RunID: "run-2", WorkOrder: wo, State: st, Slot: slot, GatePlan: "default",
		Snapshotter: scriptedSnapshotter{},
	})
	assert.Equal(t, ResultFailedError, run.Result)
}

func TestExecuteValidationFailureMarksFailedWithoutRunning(t *testing.T) {
	bus := events.NewBus()
	mon := resources.New(2, bus)

	orch := orchestrator.New(&scriptedDriver{}, scriptedSnapshotter{}, &scriptedVerifier{}, nil)
	eng := New(Config{}, orch, mon, bus, nil)

	wo := newWorkOrder(t, 5, time.Minute)
	st := preparedState(t, wo.ID())

	run := eng.Execute(context.Background(), StartParams{
		RunID: "run-1", WorkOrder: wo, State: st, // no GatePlan, no Snapshotter
	})

	assert.Equal(t, ResultFailedError, run.Result)
	assert.Equal(t, stateflow.Failed, st.State())
}

type recordedArtifact struct {
	iteration  int
	result     capability.AgentResult
	report     capability.VerificationReport
	hasReport  bool
}

type fakePersister struct {
	saved []recordedArtifact
}

func (p *fakePersister) SaveAgentResult(ctx context.Context, runID string, iteration int, result capability.AgentResult) error {
	p.saved = append(p.saved, recordedArtifact{iteration: iteration, result: result})
	return nil
}

func (p *fakePersister) SaveVerification(ctx context.Context, runID string, iteration int, report capability.VerificationReport) error {
	for i := range p.saved {
		if p.saved[i].iteration == iteration {
			p.saved[i].report = report
			p.saved[i].hasReport = true
			return nil
		}
	}
	p.saved = append(p.saved, recordedArtifact{iteration: iteration, report: report, hasReport: true})
	return nil
}

func TestExecutePersistsEachIterationWhenPersisterBound(t *testing.T) {
	bus := events.NewBus()
	mon := resources.New(2, bus)
	slot, _ := mon.AcquireSlot("wo-1")

	orch := orchestrator.New(
		&scriptedDriver{results: []capability.AgentResult{{Success: true, Stdout: "did the thing"}}},
		scriptedSnapshotter{snap: capability.Snapshot{ID: "snap-1"}},
		&scriptedVerifier{reports: []capability.VerificationReport{{Passed: true}}},
		nil,
	)
	eng := New(Config{MaxConcurrentRuns: 2}, orch, mon, bus, nil)

	wo := newWorkOrder(t, 5, time.Minute)
	st := preparedState(t, wo.ID())
	persister := &fakePersister{}

	run := eng.Execute(context.Background(), StartParams{
		RunID: "run-1", WorkOrder: wo, State: st, Slot: slot, GatePlan: "default",
		ConvergenceKind: "fixed", ConvergenceParams: map[string]any{"n": 3},
		Snapshotter: scriptedSnapshotter{},
		Persister:   persister,
	})

	assert.Equal(t, ResultPassed, run.Result)
	require.Len(t, persister.saved, 1)
	assert.Equal(t, "did the thing", persister.saved[0].result.Stdout)
	assert.True(t, persister.saved[0].hasReport)
	assert.True(t, persister.saved[0].report.Passed)
}

func TestExecuteSkipsVerificationPersistenceOnBuildFailure(t *testing.T) {
	bus := events.NewBus()
	mon := resources.New(2, bus)
	slot, _ := mon.AcquireSlot("wo-1")

	orch := orchestrator.New(
		&scriptedDriver{results: []capability.AgentResult{{Success: false, ErrorSubkind: capability.SubkindAgentCrash}}},
		scriptedSnapshotter{},
		&scriptedVerifier{},
		nil,
	)
	eng := New(Config{MaxConcurrentRuns: 2}, orch, mon, bus, nil)

	wo := newWorkOrder(t, 5, time.Minute)
	st := preparedState(t, wo.ID())
	persister := &fakePersister{}

	run := eng.Execute(context.Background(), StartParams{
		RunID: "run-1", WorkOrder: wo, State: st, Slot: slot, GatePlan: "default",
		Snapshotter: scriptedSnapshotter{},
		Persister:   persister,
	})

	assert.Equal(t, ResultFailedBuild, run.Result)
	require.Len(t, persister.saved, 1)
	assert.False(t, persister.saved[0].result.Success)
	assert.False(t, persister.saved[0].hasReport, "verification was never reached, nothing to persist")
}
