package capability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildFailureRetryableExceptAgentCrash(t *testing.T) {
	assert.True(t, NewPhaseError(ErrBuildFailure, SubkindAgentTimeout, nil).Retryable)
	assert.True(t, NewPhaseError(ErrBuildFailure, SubkindAgentFailure, nil).Retryable)
	assert.False(t, NewPhaseError(ErrBuildFailure, SubkindAgentCrash, nil).Retryable)
}

func TestValidationErrorNeverRetryable(t *testing.T) {
	assert.False(t, NewPhaseError(ErrValidation, "", nil).Retryable)
}

func TestSnapshotFailureRetryable(t *testing.T) {
	assert.True(t, NewPhaseError(ErrSnapshotFailure, "", nil).Retryable)
}

func TestInvalidTransitionDetection(t *testing.T) {
	err := NewPhaseError(ErrInvalidTransition, "", errors.New("bad event"))
	assert.True(t, IsInvalidTransition(err))
	assert.False(t, IsInvalidTransition(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	pe := NewPhaseError(ErrInternal, "", cause)
	assert.ErrorIs(t, pe, cause)
}
