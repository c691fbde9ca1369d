// Package observability provides OpenTelemetry tracing and Prometheus
// metrics for the execution engine's runs, iterations, and phases.
//
// Grounded on the teacher's v2/observability package (the self-consistent
// Tracer/constants pair — the teacher's own pkg/observability/tracer.go and
// constants.go turned out to be dead code: pkg/observability/manager.go and
// config.go call NewTracer/WithDebugExporter/DefaultSamplingRate, none of
// which pkg/observability's own tracer.go or constants.go define; only
// v2/observability does. See DESIGN.md.
package observability

// =============================================================================
// Service Attributes
// =============================================================================

const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
)

// =============================================================================
// AgentGate Attributes
// =============================================================================

const (
	// AttrWorkOrderID is the work order a span belongs to.
	AttrWorkOrderID = "agentgate.work_order_id"

	// AttrRunID is the run a span belongs to.
	AttrRunID = "agentgate.run_id"

	// AttrIteration is the iteration number within a run.
	AttrIteration = "agentgate.iteration"

	// AttrAgentKind identifies the configured agent driver.
	AttrAgentKind = "agentgate.agent_kind"

	// AttrGatePlan identifies the resolved gate plan.
	AttrGatePlan = "agentgate.gate_plan"

	// AttrConvergenceKind identifies the convergence strategy in use.
	AttrConvergenceKind = "agentgate.convergence_kind"

	// AttrPhaseKind identifies which orchestrator phase a span covers.
	// Values: "build", "snapshot", "verify", "feedback".
	AttrPhaseKind = "agentgate.phase_kind"

	// AttrResultKind is the terminal Run result.
	AttrResultKind = "agentgate.result_kind"

	// AttrErrorKind is the capability.ErrorKind classifying a failure.
	AttrErrorKind = "agentgate.error_kind"

	// AttrErrorSubkind is the capability.ErrorKind subkind, when present.
	AttrErrorSubkind = "agentgate.error_subkind"

	// AttrSnapshotID is the snapshot captured for an iteration.
	AttrSnapshotID = "agentgate.snapshot_id"

	// AttrVerificationPassed records a verification pass/fail.
	AttrVerificationPassed = "agentgate.verification_passed"
)

// =============================================================================
// Error Attributes
// =============================================================================

const (
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// =============================================================================
// Span Names
// =============================================================================

const (
	// SpanRun is the top-level span for a Run.
	SpanRun = "agentgate.run"

	// SpanIteration is a span for one orchestrator iteration.
	SpanIteration = "agentgate.iteration"

	// SpanBuildPhase covers the Build phase of an iteration.
	SpanBuildPhase = "agentgate.phase.build"

	// SpanSnapshotPhase covers the Snapshot phase.
	SpanSnapshotPhase = "agentgate.phase.snapshot"

	// SpanVerifyPhase covers the Verify phase.
	SpanVerifyPhase = "agentgate.phase.verify"

	// SpanFeedbackPhase covers the Feedback phase.
	SpanFeedbackPhase = "agentgate.phase.feedback"

	// SpanRetrySchedule covers a retry backoff scheduling decision.
	SpanRetrySchedule = "agentgate.retry.schedule"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	DefaultServiceName     = "agentgate"
	DefaultSamplingRate    = 1.0
	DefaultOTLPEndpoint    = "localhost:4317"
	DefaultMetricsPath     = "/metrics"
	DefaultMetricsNamespace = "agentgate"
)
