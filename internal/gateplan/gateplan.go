// Package gateplan resolves a WorkOrder's GatePlanSource tag (spec.md §6:
// "resolution runs before the engine and is surfaced as a field in the
// resolved task spec") into the opaque gate plan blob internal/engine and
// internal/orchestrator pass straight through to the Verifier/
// FeedbackGenerator without interpreting. Gate semantics belong entirely to
// the Verifier; this package only locates and decodes the blob.
//
// Grounded on the teacher's pkg/config.Loader/pkg/config/provider (the
// multi-backend remote-config loader — file/consul/etcd/zookeeper Provider
// implementations feeding one Loader), generalized from "load an agent
// config document" to "resolve a gate plan profile".
package gateplan

import (
	"context"
	"fmt"

	"github.com/fl-sean03/agentgate/internal/workorder"
)

// Plan is the opaque-to-the-core blob a Resolver hands back. It carries no
// interpreted fields on purpose: internal/capability.VerifyRequest.GatePlan
// and FeedbackGenerator.Generate's gatePlan parameter are typed `any`
// precisely so the core never has to understand gate semantics.
type Plan struct {
	Source  workorder.GatePlanSourceKind
	Profile string // the resolved profile name, for logging/observability only
	Data    any    // decoded YAML/JSON document; opaque to everything but the Verifier
}

// Resolver resolves one GatePlanSource into a Plan.
type Resolver interface {
	Resolve(ctx context.Context, source workorder.GatePlanSource) (Plan, error)
}

// Errors a Resolver may return.
var (
	ErrProfileNotFound = fmt.Errorf("gate plan profile not found")
	ErrNoCIConfig      = fmt.Errorf("no recognized CI config file found in workspace")
)
