// Package agentgate is an execution engine that drives an external coding
// agent through repeated build/verify/feedback iterations until its output
// passes a configured gate plan or a limit is hit.
//
// AgentGate never runs the agent itself. It treats "the agent" as an opaque
// external capability (a subprocess, a plugin binary, anything implementing
// capability.AgentDriver) and owns only the loop around it: scheduling,
// convergence, retries, gate-plan resolution, and persistence of each
// iteration's result.
//
// # Quick Start
//
// Install the dev harness:
//
//	go install github.com/fl-sean03/agentgate/cmd/agentgate@latest
//
// Run a work order against it:
//
//	agentgate run --task "fix the failing test" --workspace /path/to/repo
//
// # Using as a Go Library
//
// Import the packages under internal/ are not importable outside this
// module; embedders wire their own capability.AgentDriver/Snapshotter/
// Verifier/FeedbackGenerator implementations and drive internal/engine
// directly from their own command, following the pattern in cmd/agentgate.
//
// # Architecture
//
// A WorkOrder names a task and a workspace. The caller resolves a gate plan
// (internal/gateplan) and acquires a concurrency slot from the Resource
// Monitor; the Engine then runs iterations through the Orchestrator's four phases — Build, Snapshot, Verify, Feedback
// — until the Convergence Controller says stop or a limit is reached. Each
// iteration's agent result and verification report are handed to a
// capability.ResultPersister; the core itself writes nothing to disk.
//
// # License
//
// No license file is included in this repository.
package agentgate
