package gateplan

import (
	"context"

	"github.com/fl-sean03/agentgate/internal/workorder"
)

// defaultPlanData is the hardcoded minimal plan (§4.10: "L0 contracts
// only").
var defaultPlanData = map[string]any{
	"levels": []any{"L0"},
}

// DefaultResolver always returns the hardcoded minimal gate plan. It never
// fails — it is the resolution strategy of last resort for GatePlanAuto,
// and the direct strategy for GatePlanDefault.
type DefaultResolver struct{}

func NewDefaultResolver() *DefaultResolver { return &DefaultResolver{} }

func (r *DefaultResolver) Resolve(ctx context.Context, source workorder.GatePlanSource) (Plan, error) {
	return Plan{Source: workorder.GatePlanDefault, Profile: "default", Data: defaultPlanData}, nil
}

var _ Resolver = (*DefaultResolver)(nil)
