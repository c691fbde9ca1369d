package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fl-sean03/agentgate/internal/capability"
)

type fakeDriver struct {
	result capability.AgentResult
	err    error
}

func (f fakeDriver) Execute(ctx context.Context, req capability.AgentRequest) (capability.AgentResult, error) {
	return f.result, f.err
}

type fakeSnapshotter struct {
	snap capability.Snapshot
	err  error
}

func (f fakeSnapshotter) CaptureBefore(ctx context.Context, path string) (capability.BeforeState, error) {
	return capability.BeforeState{WorkspacePath: path}, nil
}
func (f fakeSnapshotter) Capture(ctx context.Context, path string, before capability.BeforeState, runID string, iteration int, prompt string) (capability.Snapshot, error) {
	return f.snap, f.err
}

type fakeVerifier struct {
	report capability.VerificationReport
	err    error
}

func (f fakeVerifier) Verify(ctx context.Context, req capability.VerifyRequest) (capability.VerificationReport, error) {
	return f.report, f.err
}

type fakeFeedback struct {
	text string
	err  error
}

func (f fakeFeedback) Generate(ctx context.Context, snap capability.Snapshot, report capability.VerificationReport, gatePlan any, fctx capability.FeedbackContext) (string, error) {
	return f.text, f.err
}

func TestBuildFailureStopsEarly(t *testing.T) {
	o := New(
		fakeDriver{result: capability.AgentResult{Success: false, ErrorSubkind: capability.SubkindAgentFailure, SessionID: "sess-1"}},
		fakeSnapshotter{},
		fakeVerifier{},
		nil,
	)
	res := o.RunIteration(context.Background(), Input{})
	assert.Equal(t, OutcomeBuildFailed, res.Outcome)
	assert.False(t, res.Success)
	assert.Equal(t, "sess-1", res.SessionID, "session id propagates even on failure")
	require.Len(t, res.Durations, 1)
	assert.Equal(t, "build", res.Durations[0].Phase)
}

func TestSnapshotFailureStopsEarly(t *testing.T) {
	o := New(
		fakeDriver{result: capability.AgentResult{Success: true, SessionID: "sess-1"}},
		fakeSnapshotter{err: errors.New("disk full")},
		fakeVerifier{},
		nil,
	)
	res := o.RunIteration(context.Background(), Input{})
	assert.Equal(t, OutcomeSnapshotFailed, res.Outcome)
	assert.False(t, res.Success)
	require.Len(t, res.Durations, 2)
}

func TestVerifyPassedStopsWithSuccess(t *testing.T) {
	o := New(
		fakeDriver{result: capability.AgentResult{Success: true}},
		fakeSnapshotter{snap: capability.Snapshot{ID: "snap-1"}},
		fakeVerifier{report: capability.VerificationReport{Passed: true}},
		nil,
	)
	res := o.RunIteration(context.Background(), Input{})
	assert.Equal(t, OutcomeVerifyPassed, res.Outcome)
	assert.True(t, res.Success)
	assert.Equal(t, "snap-1", res.Snapshot.ID)
}

func TestVerifyFailedInvokesFeedbackGenerator(t *testing.T) {
	o := New(
		fakeDriver{result: capability.AgentResult{Success: true}},
		fakeSnapshotter{snap: capability.Snapshot{ID: "snap-1"}},
		fakeVerifier{report: capability.VerificationReport{Passed: false}},
		fakeFeedback{text: "try again with X"},
	)
	res := o.RunIteration(context.Background(), Input{})
	assert.Equal(t, OutcomeVerifyFailedRetryable, res.Outcome)
	assert.False(t, res.Success)
	assert.Equal(t, "try again with X", res.Feedback)
}

func TestVerifyFailedFallsBackToSyntheticFeedbackOnGeneratorError(t *testing.T) {
	o := New(
		fakeDriver{result: capability.AgentResult{Success: true}},
		fakeSnapshotter{snap: capability.Snapshot{ID: "snap-1"}},
		fakeVerifier{report: capability.VerificationReport{
			Passed: false,
			Levels: []capability.LevelResult{
				{Level: "L0", Passed: false, Checks: []capability.CheckResult{{Name: "lint", Passed: false, Details: "unused variable x"}}},
			},
		}},
		fakeFeedback{err: errors.New("llm unavailable")},
	)
	res := o.RunIteration(context.Background(), Input{})
	assert.Equal(t, OutcomeVerifyFailedRetryable, res.Outcome)
	assert.Contains(t, res.Feedback, "L0")
	assert.Contains(t, res.Feedback, "lint")
	assert.Contains(t, res.Feedback, "unused variable x")
}

func TestVerifyFailedWithNilFeedbackGeneratorUsesSynthetic(t *testing.T) {
	o := New(
		fakeDriver{result: capability.AgentResult{Success: true}},
		fakeSnapshotter{snap: capability.Snapshot{ID: "snap-1"}},
		fakeVerifier{report: capability.VerificationReport{
			Passed: false,
			Levels: []capability.LevelResult{
				{Level: "L1", Passed: false, Checks: []capability.CheckResult{{Name: "unit-tests", Passed: false, Details: "2 failures"}}},
			},
		}},
		nil,
	)
	res := o.RunIteration(context.Background(), Input{})
	assert.Contains(t, res.Feedback, "unit-tests")
}

func TestSynthesizeFeedbackTruncatesExcerpts(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	report := capability.VerificationReport{
		Levels: []capability.LevelResult{
			{Level: "L0", Passed: false, Checks: []capability.CheckResult{{Name: "big", Passed: false, Details: string(long)}}},
		},
	}
	out := synthesizeFeedback(report)
	assert.Less(t, len(out), 1000+50)
}
