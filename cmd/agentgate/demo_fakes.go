package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fl-sean03/agentgate/internal/capability"
)

// demoDriver is an in-process capability.AgentDriver that always succeeds
// immediately, standing in for a real subprocess or plugin-backed agent
// (internal/plugin) during local smoke testing. Grounded on
// internal/orchestrator's own fakeDriver test double.
type demoDriver struct{}

func (demoDriver) Execute(ctx context.Context, req capability.AgentRequest) (capability.AgentResult, error) {
	return capability.AgentResult{
		Success:    true,
		SessionID:  req.SessionID,
		Stdout:     fmt.Sprintf("demo agent: iteration %d on %q", req.Iteration, req.TaskPrompt),
		DurationMs: 5,
	}, nil
}

// demoSnapshotter fabricates content hashes from the workspace path and
// iteration number rather than reading a real filesystem tree, so the dev
// harness runs without a prepared workspace on disk.
type demoSnapshotter struct{}

func (demoSnapshotter) CaptureBefore(ctx context.Context, workspacePath string) (capability.BeforeState, error) {
	return capability.BeforeState{
		WorkspacePath: workspacePath,
		ContentHash:   hashOf(workspacePath, "before"),
		CapturedAt:    time.Now(),
	}, nil
}

func (demoSnapshotter) Capture(ctx context.Context, workspacePath string, before capability.BeforeState, runID string, iteration int, prompt string) (capability.Snapshot, error) {
	return capability.Snapshot{
		ID:              fmt.Sprintf("%s-iter-%d", runID, iteration),
		RunID:           runID,
		Iteration:       iteration,
		PreContentHash:  before.ContentHash,
		PostContentHash: hashOf(workspacePath, fmt.Sprintf("after-%d", iteration)),
		FilesChanged:    1,
		Fingerprint:     hashOf(prompt, fmt.Sprintf("%d", iteration)),
		CapturedAt:      time.Now(),
	}, nil
}

func hashOf(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// demoVerifier passes on the given iteration (1 by default) and fails with
// diagnostics on every iteration before that, so the harness can exercise
// both the retry/feedback loop and the terminal-pass path in one run.
type demoVerifier struct {
	passOnIteration int
}

func (v demoVerifier) Verify(ctx context.Context, req capability.VerifyRequest) (capability.VerificationReport, error) {
	passOn := v.passOnIteration
	if passOn <= 0 {
		passOn = 1
	}
	passed := req.Iteration >= passOn

	level := capability.LevelResult{
		Level:  "L0",
		Passed: passed,
		Checks: []capability.CheckResult{{Name: "demo-check", Passed: passed}},
	}
	report := capability.VerificationReport{
		Passed:     passed,
		Levels:     []capability.LevelResult{level},
		DurationMs: 3,
	}
	if !passed {
		report.Diagnostics = []string{fmt.Sprintf("demo-check failed on iteration %d (passes on %d)", req.Iteration, passOn)}
	}
	return report, nil
}

// demoFeedback turns a failed VerificationReport's diagnostics into the
// next iteration's feedback string.
type demoFeedback struct{}

func (demoFeedback) Generate(ctx context.Context, snapshot capability.Snapshot, report capability.VerificationReport, gatePlan any, fctx capability.FeedbackContext) (string, error) {
	if len(report.Diagnostics) == 0 {
		return "verification failed with no diagnostics", nil
	}
	return fmt.Sprintf("iteration %d: %s", fctx.Iteration, report.Diagnostics[0]), nil
}
