package persistence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fl-sean03/agentgate/internal/capability"
)

func TestFileResultPersisterRejectsEmptyRoot(t *testing.T) {
	_, err := NewFileResultPersister("")
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestFileResultPersisterSaveAgentResultWritesExpectedLayout(t *testing.T) {
	root := t.TempDir()
	p, err := NewFileResultPersister(root)
	require.NoError(t, err)

	result := capability.AgentResult{Success: true, SessionID: "sess-1", Stdout: "ok", DurationMs: 42}
	require.NoError(t, p.SaveAgentResult(context.Background(), "run-1", 2, result))

	path := filepath.Join(root, "runs", "run-1", "iterations", "2", "agent-result.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got capability.AgentResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, result, got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away, not left behind")
}

func TestFileResultPersisterSaveVerificationWritesExpectedLayout(t *testing.T) {
	root := t.TempDir()
	p, err := NewFileResultPersister(root)
	require.NoError(t, err)

	report := capability.VerificationReport{
		Passed: false,
		Levels: []capability.LevelResult{
			{Level: "L0", Passed: true, Checks: []capability.CheckResult{{Name: "build", Passed: true}}},
		},
		Diagnostics: []string{"L1 failed"},
		DurationMs:  100,
	}
	require.NoError(t, p.SaveVerification(context.Background(), "run-2", 0, report))

	path := filepath.Join(root, "runs", "run-2", "iterations", "0", "verification.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got capability.VerificationReport
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, report, got)
}

func TestFileResultPersisterOverwritesExistingArtifact(t *testing.T) {
	root := t.TempDir()
	p, err := NewFileResultPersister(root)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.SaveAgentResult(ctx, "run-3", 1, capability.AgentResult{Stdout: "first"}))
	require.NoError(t, p.SaveAgentResult(ctx, "run-3", 1, capability.AgentResult{Stdout: "second"}))

	path := filepath.Join(root, "runs", "run-3", "iterations", "1", "agent-result.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got capability.AgentResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "second", got.Stdout)
}
