package convergence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressMeanAndTrend(t *testing.T) {
	gates := []GateOutcome{
		{Name: "lint", Passed: true},
		{Name: "tests", LevelsTotal: 4, LevelsPassed: 2},
	}
	value, trend := Progress(gates, 0.4, true)
	assert.InDelta(t, 0.75, value, 1e-9)
	assert.Equal(t, TrendImproving, trend)

	value, trend = Progress(gates, 0.74, true)
	assert.Equal(t, TrendStagnant, trend)

	value, trend = Progress(gates, 0.9, true)
	assert.Equal(t, TrendRegressing, trend)
}

func TestFixedStrategyStopsAtCapOrGatesPassed(t *testing.T) {
	s, err := New("fixed", map[string]any{"n": 3})
	require.NoError(t, err)

	d := s.ShouldContinue(State{Iteration: 1})
	assert.Equal(t, ActionContinue, d.Action)

	d = s.ShouldContinue(State{Iteration: 3})
	assert.Equal(t, ActionStop, d.Action)

	d = s.ShouldContinue(State{Iteration: 1, GatesPassed: true})
	assert.Equal(t, ActionStop, d.Action)
}

func TestHybridStopsOnLoopDetection(t *testing.T) {
	s, err := New("hybrid", map[string]any{"base": 10, "bonus": 10, "threshold": 0.0})
	require.NoError(t, err)

	s.ShouldContinue(State{Iteration: 1, SnapshotFingerprint: "x"})
	s.ShouldContinue(State{Iteration: 2, SnapshotFingerprint: "x"})
	d := s.ShouldContinue(State{Iteration: 3, SnapshotFingerprint: "x"})
	assert.Equal(t, ActionStop, d.Action)
	assert.Contains(t, d.Reason, "identical snapshot fingerprints")
}

func TestHybridContinuesWithinBaseThenRequiresProgress(t *testing.T) {
	s, err := New("hybrid", map[string]any{"base": 1, "bonus": 2, "threshold": 0.5})
	require.NoError(t, err)

	d := s.ShouldContinue(State{Iteration: 1, Gates: []GateOutcome{{Passed: false}}})
	assert.Equal(t, ActionContinue, d.Action, "within base iterations")

	d = s.ShouldContinue(State{Iteration: 2, Gates: []GateOutcome{{Passed: false}}})
	assert.Equal(t, ActionStop, d.Action, "zero progress is below threshold")
}

func TestRalphDetectsCompletionSignal(t *testing.T) {
	s, err := New("ralph", map[string]any{"min": 1})
	require.NoError(t, err)

	d := s.ShouldContinue(State{Iteration: 2, AgentOutputText: "all good, task_complete now"})
	assert.Equal(t, ActionStop, d.Action)
}

func TestRalphEnforcesMinimumIterations(t *testing.T) {
	s, err := New("ralph", map[string]any{"min": 5})
	require.NoError(t, err)

	d := s.ShouldContinue(State{Iteration: 1, AgentOutputText: "DONE"})
	assert.Equal(t, ActionContinue, d.Action, "minimum iteration count overrides signal match timing by spec, but signal check happens after min gate")
}

func TestRalphWindowConvergence(t *testing.T) {
	s, err := New("ralph", map[string]any{"min": 1, "windowSize": 3, "convergenceThreshold": 0.01})
	require.NoError(t, err)

	out := "the quick brown fox jumps over lazy dog"
	s.ShouldContinue(State{Iteration: 2, AgentOutputText: out})
	s.ShouldContinue(State{Iteration: 3, AgentOutputText: out})
	d := s.ShouldContinue(State{Iteration: 4, AgentOutputText: out})
	assert.Equal(t, ActionStop, d.Action)
}

func TestManualNeverStopsExceptGatesPassed(t *testing.T) {
	s, err := New("manual", nil)
	require.NoError(t, err)

	d := s.ShouldContinue(State{Iteration: 100})
	assert.Equal(t, ActionContinue, d.Action)

	d = s.ShouldContinue(State{Iteration: 100, GatesPassed: true})
	assert.Equal(t, ActionStop, d.Action)
}

func TestAdaptiveFallsBackToHybridDefaults(t *testing.T) {
	s, err := New("adaptive", nil)
	require.NoError(t, err)
	assert.Equal(t, "adaptive", s.Name())

	d := s.ShouldContinue(State{Iteration: 1, GatesPassed: true})
	assert.Equal(t, ActionStop, d.Action)
}

func TestJaccardEmptySetsAreSimilarityOne(t *testing.T) {
	assert.Equal(t, float64(1), jaccard("to is", "a an"))
}

func TestJaccardOverlap(t *testing.T) {
	sim := jaccard("quick brown fox", "quick brown hare")
	assert.InDelta(t, 0.5, sim, 1e-9) // {quick,brown} / {quick,brown,fox,hare}
}

func TestUnknownStrategyErrors(t *testing.T) {
	_, err := New("nonexistent", nil)
	assert.Error(t, err)
}
