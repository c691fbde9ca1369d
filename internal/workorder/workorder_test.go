package workorder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() Params {
	return Params{
		TaskPrompt: "fix the flaky test",
		Workspace:  WorkspaceSource{Kind: WorkspaceLocalPath, LocalPath: "/tmp/ws"},
		AgentKind:  "coding-agent",
		Limits:     Limits{MaxIterations: 3, MaxWallClock: time.Minute},
	}
}

func TestNewAssignsIDAndDefaults(t *testing.T) {
	wo, err := New(validParams())
	require.NoError(t, err)
	assert.NotEmpty(t, wo.ID())
	assert.Equal(t, GatePlanAuto, wo.GatePlanSource().Kind)
	assert.False(t, wo.AcceptedAt().IsZero())
}

func TestNewRejectsEmptyPrompt(t *testing.T) {
	p := validParams()
	p.TaskPrompt = ""
	_, err := New(p)
	assert.Error(t, err)
}

func TestNewRejectsBadWorkspace(t *testing.T) {
	p := validParams()
	p.Workspace = WorkspaceSource{Kind: WorkspaceGitRepo} // missing GitRemote
	_, err := New(p)
	assert.Error(t, err)
}

func TestNewRejectsProfileWithoutName(t *testing.T) {
	p := validParams()
	p.GatePlanSource = GatePlanSource{Kind: GatePlanProfile}
	_, err := New(p)
	assert.Error(t, err)
}

func TestNewEachCallIsUniqueID(t *testing.T) {
	a, err := New(validParams())
	require.NoError(t, err)
	b, err := New(validParams())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestValidateSubmission(t *testing.T) {
	raw := map[string]any{
		"task_prompt": "do it",
		"workspace":   map[string]any{"kind": "local_path", "local_path": "/tmp"},
		"agent_kind":  "coding-agent",
		"limits":      map[string]any{"max_iterations": 3, "max_wall_clock_ms": 60000},
		"gate_plan_source": map[string]any{"kind": "default"},
	}
	assert.NoError(t, ValidateSubmission(raw))

	delete(raw, "task_prompt")
	assert.Error(t, ValidateSubmission(raw))
}
