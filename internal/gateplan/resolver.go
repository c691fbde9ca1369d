package gateplan

import (
	"context"
	"fmt"

	"github.com/fl-sean03/agentgate/internal/workorder"
)

// CompositeResolver dispatches a GatePlanSource to the resolver matching
// its Kind, and implements GatePlanAuto's "try profile, then ci-inferred,
// then default, first match wins" fallback chain (§4.10).
type CompositeResolver struct {
	Profile *ProfileResolver
	CI      *CIInferredResolver
	Default *DefaultResolver
}

func NewCompositeResolver(profile *ProfileResolver, ci *CIInferredResolver) *CompositeResolver {
	return &CompositeResolver{Profile: profile, CI: ci, Default: NewDefaultResolver()}
}

func (r *CompositeResolver) Resolve(ctx context.Context, source workorder.GatePlanSource) (Plan, error) {
	switch source.Kind {
	case workorder.GatePlanProfile:
		if r.Profile == nil {
			return Plan{}, fmt.Errorf("gate plan source %q: no profile resolver configured", source.Kind)
		}
		return r.Profile.Resolve(ctx, source)

	case workorder.GatePlanCIInferred:
		if r.CI == nil {
			return Plan{}, fmt.Errorf("gate plan source %q: no CI resolver configured", source.Kind)
		}
		return r.CI.Resolve(ctx, source)

	case workorder.GatePlanDefault:
		return r.Default.Resolve(ctx, source)

	case workorder.GatePlanAuto:
		return r.resolveAuto(ctx, source)

	default:
		return Plan{}, fmt.Errorf("unknown gate plan source kind %q", source.Kind)
	}
}

func (r *CompositeResolver) resolveAuto(ctx context.Context, source workorder.GatePlanSource) (Plan, error) {
	if r.Profile != nil && source.ProfileName != "" {
		if plan, err := r.Profile.Resolve(ctx, source); err == nil {
			return plan, nil
		}
	}
	if r.CI != nil {
		if plan, err := r.CI.Resolve(ctx, source); err == nil {
			return plan, nil
		}
	}
	return r.Default.Resolve(ctx, source)
}

var _ Resolver = (*CompositeResolver)(nil)
