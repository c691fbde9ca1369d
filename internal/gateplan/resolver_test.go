package gateplan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fl-sean03/agentgate/internal/workorder"
)

func TestCompositeResolverAutoPrefersProfileThenCIThenDefault(t *testing.T) {
	workspace := t.TempDir()

	profileResolver := NewProfileResolver(func(profileName string) (Backend, error) {
		return newFakeBackend([]byte("levels: [L0, L1, L2]")), nil
	})
	ciResolver := NewCIInferredResolver(workspace)
	composite := NewCompositeResolver(profileResolver, ciResolver)

	// 1. No profile name and no CI config present: falls through to default.
	plan, err := composite.Resolve(context.Background(), workorder.GatePlanSource{Kind: workorder.GatePlanAuto})
	require.NoError(t, err)
	assert.Equal(t, workorder.GatePlanDefault, plan.Source)

	// 2. A recognized CI config appears: auto now prefers it over default.
	require.NoError(t, os.MkdirAll(filepath.Join(workspace, ".github", "workflows"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, ".github", "workflows", "ci.yml"), []byte("jobs:\n  test: {}\n"), 0o644))

	plan, err = composite.Resolve(context.Background(), workorder.GatePlanSource{Kind: workorder.GatePlanAuto})
	require.NoError(t, err)
	assert.Equal(t, workorder.GatePlanCIInferred, plan.Source)

	// 3. A profile name is supplied: auto prefers the profile over CI.
	plan, err = composite.Resolve(context.Background(), workorder.GatePlanSource{Kind: workorder.GatePlanAuto, ProfileName: "strict"})
	require.NoError(t, err)
	assert.Equal(t, workorder.GatePlanProfile, plan.Source)
}

func TestCompositeResolverDispatchesExplicitKinds(t *testing.T) {
	composite := NewCompositeResolver(nil, nil)

	plan, err := composite.Resolve(context.Background(), workorder.GatePlanSource{Kind: workorder.GatePlanDefault})
	require.NoError(t, err)
	assert.Equal(t, workorder.GatePlanDefault, plan.Source)

	_, err = composite.Resolve(context.Background(), workorder.GatePlanSource{Kind: workorder.GatePlanProfile, ProfileName: "x"})
	assert.Error(t, err, "no profile resolver configured")

	_, err = composite.Resolve(context.Background(), workorder.GatePlanSource{Kind: "bogus"})
	assert.Error(t, err)
}
