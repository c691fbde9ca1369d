// Package capability defines the narrow, typed interfaces AgentGate's core
// consumes but never implements: AgentDriver, Snapshotter, Verifier,
// FeedbackGenerator, and ResultPersister (spec §6). The core only imports
// this package's interfaces; concrete bindings live under internal/plugin
// and internal/persistence.
package capability

import (
	"errors"
	"fmt"
)

// ErrorKind is the taxonomy from spec.md §7 — a classification, not a Go
// type hierarchy, so a single PhaseError can carry any of them.
type ErrorKind string

const (
	ErrValidation               ErrorKind = "validation_error"
	ErrBuildFailure             ErrorKind = "build_failure"
	ErrSnapshotFailure          ErrorKind = "snapshot_failure"
	ErrVerificationRetryable    ErrorKind = "verification_failed_retryable"
	ErrVerificationTerminal     ErrorKind = "verification_failed_terminal"
	ErrTimeout                  ErrorKind = "timeout"
	ErrCancelled                ErrorKind = "cancelled"
	ErrConcurrencyLimit         ErrorKind = "concurrency_limit"
	ErrInvalidTransition        ErrorKind = "invalid_transition"
	ErrInternal                 ErrorKind = "internal_error"
)

// Build failure subkinds (spec.md §7).
const (
	SubkindAgentTimeout ErrorKind = "agent_timeout"
	SubkindAgentCrash   ErrorKind = "agent_crash"
	SubkindAgentFailure ErrorKind = "agent_failure"
)

// PhaseError is the structured result a phase reports on failure. It
// satisfies the standard error interface and Unwrap so callers can use
// errors.As/errors.Is, mirroring the teacher's RateLimitError/TaskError
// pattern of small typed errors with an Unwrap hook.
type PhaseError struct {
	Kind      ErrorKind
	Subkind   ErrorKind
	Retryable bool
	Message   string
	Err       error
}

func (e *PhaseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// NewPhaseError builds a PhaseError, defaulting Retryable from the kind's
// taxonomy rule in spec.md §7 when the caller doesn't care to override it.
// For ErrBuildFailure, pass the AgentResult.ErrorSubkind as subkind so the
// agent_crash exception (not retryable, unlike the other build-failure
// subkinds) is applied; subkind is ignored for every other kind.
func NewPhaseError(kind ErrorKind, subkind ErrorKind, err error) *PhaseError {
	return &PhaseError{
		Kind:      kind,
		Subkind:   subkind,
		Retryable: defaultRetryable(kind, subkind),
		Err:       err,
	}
}

func defaultRetryable(kind ErrorKind, subkind ErrorKind) bool {
	switch kind {
	case ErrBuildFailure:
		return subkind != SubkindAgentCrash
	case ErrSnapshotFailure, ErrInternal:
		return true
	default:
		return false
	}
}

// IsInvalidTransition reports whether err is (or wraps) an invalid state
// transition — always a programmer error per spec.md §7, never retried.
func IsInvalidTransition(err error) bool {
	var pe *PhaseError
	return errors.As(err, &pe) && pe.Kind == ErrInvalidTransition
}
