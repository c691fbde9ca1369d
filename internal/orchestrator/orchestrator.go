// Package orchestrator implements the Phase Orchestrator (spec.md §4.5):
// one iteration as an ordered Build -> Snapshot -> Verify -> Feedback
// pipeline with hard early-exit on phase failure.
//
// Grounded on the teacher's pkg/agent/workflowagent sequential-agent
// pipeline shape (run each sub-step, stop the chain on the first
// failure) generalized from LLM sub-agents to the four fixed capability
// phases spec.md §4.5 names, plus the deterministic feedback fallback
// from pkg/reasoning/completion.go's "always produce something usable"
// pattern.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fl-sean03/agentgate/internal/capability"
)

// Outcome is the single terminal signal an iteration produces (spec.md §4.5).
type Outcome string

const (
	OutcomeBuildFailed           Outcome = "BUILD_FAILED"
	OutcomeSnapshotFailed        Outcome = "SNAPSHOT_FAILED"
	OutcomeVerifyPassed          Outcome = "VERIFY_PASSED"
	OutcomeVerifyFailedRetryable Outcome = "VERIFY_FAILED_RETRYABLE"
)

// PhaseDuration records one phase's wall-clock cost for metrics (spec.md §4.5).
type PhaseDuration struct {
	Phase      string
	DurationMs int64
}

// IterationResult is everything the Execution Engine needs after one pass.
type IterationResult struct {
	Outcome      Outcome
	Success      bool
	SessionID    string // propagated to the next iteration regardless of outcome
	Feedback     string // set only after a failed Verify
	AgentResult  capability.AgentResult // the driver's raw result, for ResultPersister.SaveAgentResult
	Snapshot     capability.Snapshot
	Report       capability.VerificationReport
	Durations    []PhaseDuration
	Err          error
	BuildSubkind capability.ErrorKind // set on OutcomeBuildFailed: the agent's reported ErrorSubkind
}

// Input bundles one iteration's parameters.
type Input struct {
	RunID         string
	Iteration     int
	WorkspacePath string
	TaskPrompt    string
	Feedback      string // from the previous iteration, if any
	SessionID     string // continuation token from the previous iteration
	GatePlan      any
	TimeoutMs     int64
	BeforeState   capability.BeforeState
}

// Orchestrator runs one iteration's phase pipeline against bound capabilities.
type Orchestrator struct {
	driver     capability.AgentDriver
	snapshotter capability.Snapshotter
	verifier   capability.Verifier
	feedback   capability.FeedbackGenerator
}

// New binds the four capabilities an Orchestrator drives. feedback may be
// nil; Generate failures and a nil generator both fall through to the
// deterministic synthetic feedback (spec.md §4.5/§7).
func New(driver capability.AgentDriver, snapshotter capability.Snapshotter, verifier capability.Verifier, feedback capability.FeedbackGenerator) *Orchestrator {
	return &Orchestrator{driver: driver, snapshotter: snapshotter, verifier: verifier, feedback: feedback}
}

// RunIteration executes Build -> Snapshot -> Verify -> (Feedback) per
// spec.md §4.5's pipeline rules.
func (o *Orchestrator) RunIteration(ctx context.Context, in Input) IterationResult {
	var durations []PhaseDuration

	buildStart := time.Now()
	agentResult, err := o.driver.Execute(ctx, capability.AgentRequest{
		WorkspacePath: in.WorkspacePath,
		TaskPrompt:    in.TaskPrompt,
		Feedback:      in.Feedback,
		SessionID:     in.SessionID,
		Iteration:     in.Iteration,
		TimeoutMs:     in.TimeoutMs,
	})
	durations = append(durations, PhaseDuration{Phase: "build", DurationMs: time.Since(buildStart).Milliseconds()})

	sessionID := in.SessionID
	if agentResult.SessionID != "" {
		sessionID = agentResult.SessionID // propagated regardless of success (spec.md §4.5)
	}

	if err != nil || !agentResult.Success {
		subkind := agentResult.ErrorSubkind
		if subkind == "" {
			subkind = capability.SubkindAgentFailure
		}
		return IterationResult{
			Outcome:      OutcomeBuildFailed,
			Success:      false,
			SessionID:    sessionID,
			AgentResult:  agentResult,
			Durations:    durations,
			Err:          firstNonNil(err, fmt.Errorf("agent reported failure: %s", agentResult.ErrorSubkind)),
			BuildSubkind: subkind,
		}
	}

	snapStart := time.Now()
	snapshot, err := o.snapshotter.Capture(ctx, in.WorkspacePath, in.BeforeState, in.RunID, in.Iteration, in.TaskPrompt)
	durations = append(durations, PhaseDuration{Phase: "snapshot", DurationMs: time.Since(snapStart).Milliseconds()})
	if err != nil {
		return IterationResult{
			Outcome:     OutcomeSnapshotFailed,
			Success:     false,
			SessionID:   sessionID,
			AgentResult: agentResult,
			Durations:   durations,
			Err:         err,
		}
	}

	verifyStart := time.Now()
	report, err := o.verifier.Verify(ctx, capability.VerifyRequest{
		SnapshotPath: snapshot.PatchPointer,
		GatePlan:     in.GatePlan,
		RunID:        in.RunID,
		Iteration:    in.Iteration,
		TimeoutMs:    in.TimeoutMs,
	})
	durations = append(durations, PhaseDuration{Phase: "verify", DurationMs: time.Since(verifyStart).Milliseconds()})
	if err != nil {
		// A verifier-infrastructure error is not a verification failure; it
		// is treated as a build-phase-class failure for retry purposes by
		// the caller, but reported distinctly here so the engine can tell
		// the two apart.
		return IterationResult{
			Outcome:     OutcomeSnapshotFailed,
			Success:     false,
			SessionID:   sessionID,
			AgentResult: agentResult,
			Snapshot:    snapshot,
			Durations:   durations,
			Err:         err,
		}
	}

	if report.Passed {
		return IterationResult{
			Outcome:     OutcomeVerifyPassed,
			Success:     true,
			SessionID:   sessionID,
			AgentResult: agentResult,
			Snapshot:    snapshot,
			Report:      report,
			Durations:   durations,
		}
	}

	feedbackStart := time.Now()
	feedbackText := o.generateFeedback(ctx, snapshot, report, in)
	durations = append(durations, PhaseDuration{Phase: "feedback", DurationMs: time.Since(feedbackStart).Milliseconds()})

	return IterationResult{
		Outcome:     OutcomeVerifyFailedRetryable,
		Success:     false,
		SessionID:   sessionID,
		Feedback:    feedbackText,
		AgentResult: agentResult,
		Snapshot:    snapshot,
		Report:      report,
		Durations:   durations,
	}
}

// generateFeedback always succeeds (spec.md §7): it calls the bound
// FeedbackGenerator and falls back to synthesizeFeedback on a nil
// generator or a Generate error.
func (o *Orchestrator) generateFeedback(ctx context.Context, snapshot capability.Snapshot, report capability.VerificationReport, in Input) string {
	if o.feedback != nil {
		text, err := o.feedback.Generate(ctx, snapshot, report, in.GatePlan, capability.FeedbackContext{
			RunID:         in.RunID,
			Iteration:     in.Iteration,
			PriorFeedback: in.Feedback,
		})
		if err == nil {
			return text
		}
	}
	return synthesizeFeedback(report)
}

const (
	maxExcerptChars = 500
	maxFeedbackChars = 10000
)

// synthesizeFeedback produces the deterministic fallback feedback spec.md
// §4.5 requires: traverse per-level failed checks L0->L3, emit bulleted
// failure names and truncated detail excerpts.
func synthesizeFeedback(report capability.VerificationReport) string {
	var b strings.Builder
	for _, level := range report.Levels {
		if level.Passed {
			continue
		}
		for _, check := range level.Checks {
			if check.Passed {
				continue
			}
			excerpt := check.Details
			if len(excerpt) > maxExcerptChars {
				excerpt = excerpt[:maxExcerptChars]
			}
			fmt.Fprintf(&b, "- [%s] %s: %s\n", level.Level, check.Name, excerpt)
			if b.Len() >= maxFeedbackChars {
				break
			}
		}
		if b.Len() >= maxFeedbackChars {
			break
		}
	}
	out := b.String()
	if len(out) > maxFeedbackChars {
		out = out[:maxFeedbackChars]
	}
	return out
}

func firstNonNil(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
