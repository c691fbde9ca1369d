package capability

import (
	"context"
	"time"
)

// AgentRequest is the input to AgentDriver.Execute (spec.md §6.1).
type AgentRequest struct {
	WorkspacePath string
	TaskPrompt    string
	Feedback      string // optional; empty on the first iteration
	SessionID     string // optional continuation token
	Iteration     int
	TimeoutMs     int64
	Constraints   map[string]any // optional: network/path/disk policy hints
}

// AgentResult is the output of AgentDriver.Execute.
type AgentResult struct {
	Success     bool
	SessionID   string // propagated to the next iteration regardless of Success
	Stdout      string
	Stderr      string
	DurationMs  int64
	TokensUsed  int64
	ErrorSubkind ErrorKind // set when !Success: agent_timeout | agent_crash | agent_failure
}

// AgentDriver executes one agent turn against a workspace. Implemented
// entirely outside the core (spec.md §1): a subprocess, a plugin (see
// internal/plugin), or an in-process fake for tests.
type AgentDriver interface {
	Execute(ctx context.Context, req AgentRequest) (AgentResult, error)
}

// BeforeState is the workspace snapshot captured before any iteration runs.
type BeforeState struct {
	WorkspacePath string
	ContentHash   string
	CapturedAt    time.Time
}

// Snapshot is the content-addressed record returned by Snapshotter.Capture.
// Treated as opaque by the engine except ID and Fingerprint (spec.md §3).
type Snapshot struct {
	ID               string
	RunID            string
	Iteration        int
	PreContentHash   string
	PostContentHash  string
	FilesChanged     int
	PatchPointer     string
	Fingerprint      string // used by hybrid loop detection only
	CapturedAt       time.Time
}

// Snapshotter captures workspace state before and after agent edits.
type Snapshotter interface {
	CaptureBefore(ctx context.Context, workspacePath string) (BeforeState, error)
	Capture(ctx context.Context, workspacePath string, before BeforeState, runID string, iteration int, prompt string) (Snapshot, error)
}

// LevelResult is one L0-L3 verification level's outcome.
type LevelResult struct {
	Level   string // "L0".."L3"
	Passed  bool
	Checks  []CheckResult
}

// CheckResult is a single named check within a level.
type CheckResult struct {
	Name    string
	Passed  bool
	Details string
}

// VerificationReport is the output of Verifier.Verify (spec.md §3).
type VerificationReport struct {
	Passed      bool
	Levels      []LevelResult
	Diagnostics []string
	DurationMs  int64
}

// VerifyRequest is the input to Verifier.Verify.
type VerifyRequest struct {
	SnapshotPath string
	GatePlan     any // opaque to the core; resolved by internal/gateplan
	RunID        string
	Iteration    int
	TimeoutMs    int64
	SkipLevels   []string
}

// Verifier runs L0-L3 checks in a clean room and reports pass/fail.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (VerificationReport, error)
}

// FeedbackContext carries whatever ambient info a FeedbackGenerator needs
// beyond the snapshot/report (e.g. prior feedback, iteration number).
type FeedbackContext struct {
	RunID          string
	Iteration      int
	PriorFeedback  string
}

// FeedbackGenerator turns a failed verification into agent-readable
// feedback for the next Build phase.
type FeedbackGenerator interface {
	Generate(ctx context.Context, snapshot Snapshot, report VerificationReport, gatePlan any, fctx FeedbackContext) (string, error)
}

// ResultPersister is the only component allowed to write iteration
// artifacts to durable storage; the core itself writes nothing directly
// (spec.md §6). Reference implementations live under internal/persistence.
type ResultPersister interface {
	SaveAgentResult(ctx context.Context, runID string, iteration int, result AgentResult) error
	SaveVerification(ctx context.Context, runID string, iteration int, report VerificationReport) error
}
