package gateplan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fl-sean03/agentgate/internal/workorder"
)

func TestCIInferredResolverExtractsGitHubActionsJobs(t *testing.T) {
	dir := t.TempDir()
	workflowsDir := filepath.Join(dir, ".github", "workflows")
	require.NoError(t, os.MkdirAll(workflowsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workflowsDir, "ci.yml"), []byte(`
jobs:
  test:
    runs-on: ubuntu-latest
  build:
    runs-on: ubuntu-latest
`), 0o644))

	r := NewCIInferredResolver(dir)
	plan, err := r.Resolve(context.Background(), workorder.GatePlanSource{Kind: workorder.GatePlanCIInferred})
	require.NoError(t, err)
	assert.Equal(t, workorder.GatePlanCIInferred, plan.Source)

	markers, ok := plan.Data.(ciMarkers)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"test", "build"}, markers.Jobs)
}

func TestCIInferredResolverFallsBackToGitLabCI(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitlab-ci.yml"), []byte(`
build:
  stage: build
deploy:
  stage: deploy
`), 0o644))

	r := NewCIInferredResolver(dir)
	plan, err := r.Resolve(context.Background(), workorder.GatePlanSource{Kind: workorder.GatePlanCIInferred})
	require.NoError(t, err)

	markers, ok := plan.Data.(ciMarkers)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"build", "deploy"}, markers.Jobs)
}

func TestCIInferredResolverErrorsWhenNoCIConfigFound(t *testing.T) {
	r := NewCIInferredResolver(t.TempDir())
	_, err := r.Resolve(context.Background(), workorder.GatePlanSource{Kind: workorder.GatePlanCIInferred})
	assert.True(t, errors.Is(err, ErrNoCIConfig))
}
