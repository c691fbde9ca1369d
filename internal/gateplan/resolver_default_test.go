package gateplan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fl-sean03/agentgate/internal/workorder"
)

func TestDefaultResolverReturnsL0OnlyPlan(t *testing.T) {
	r := NewDefaultResolver()
	plan, err := r.Resolve(context.Background(), workorder.GatePlanSource{Kind: workorder.GatePlanDefault})
	require.NoError(t, err)
	assert.Equal(t, workorder.GatePlanDefault, plan.Source)

	data, ok := plan.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"L0"}, data["levels"])
}
