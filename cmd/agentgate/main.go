// Command agentgate is a local dev harness: it wires an in-process fake
// AgentDriver/Snapshotter/Verifier/FeedbackGenerator pair through the real
// Engine so the convergence/scheduling/persistence machinery can be
// exercised end to end without a real agent subprocess or plugin binary.
// It is deliberately not the caller-facing API spec.md's Non-goals exclude
// (no HTTP/gRPC surface); everything here calls internal/engine.Engine's
// exported methods directly, in-process.
//
// Usage:
//
//	agentgate run --task "fix the failing test" --workspace /tmp/ws
//	agentgate run --task "..." --pass-on 3 --gate-plan ci-inferred
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/fl-sean03/agentgate/internal/engine"
	"github.com/fl-sean03/agentgate/internal/events"
	"github.com/fl-sean03/agentgate/internal/gateplan"
	"github.com/fl-sean03/agentgate/internal/orchestrator"
	"github.com/fl-sean03/agentgate/internal/persistence"
	"github.com/fl-sean03/agentgate/internal/resources"
	"github.com/fl-sean03/agentgate/internal/retry"
	"github.com/fl-sean03/agentgate/internal/stateflow"
	"github.com/fl-sean03/agentgate/internal/workorder"
	"github.com/fl-sean03/agentgate/pkg/logger"
)

// CLI defines agentgate's command-line interface.
type CLI struct {
	Run RunCmd `cmd:"" help:"Run one work order through the engine to a terminal result."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// RunCmd runs a single synthetic work order end to end.
type RunCmd struct {
	Task          string        `help:"Task prompt handed to the agent driver." default:"demo task"`
	Workspace     string        `help:"Workspace path (not read by the demo driver/snapshotter)." default:"."`
	AgentKind     string        `name:"agent-kind" help:"Agent kind label recorded on the work order." default:"demo"`
	MaxIterations int           `name:"max-iterations" help:"Iteration ceiling before the run is declared failed." default:"5"`
	MaxWallClock  time.Duration `name:"max-wall-clock" help:"Wall-clock ceiling for the whole run." default:"1m"`
	PassOn        int           `name:"pass-on" help:"Iteration number the demo verifier passes on." default:"1"`
	GatePlan      string        `name:"gate-plan" help:"Gate plan source kind: auto, default, ci-inferred, profile." default:"default"`
	Profile       string        `help:"Profile name, required when --gate-plan=profile."`
	Concurrency   int           `help:"Engine's max concurrent runs." default:"4"`
	OutDir        string        `name:"out-dir" help:"Root directory for persisted iteration artifacts." default:".agentgate/runs"`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	source, err := c.gatePlanSource()
	if err != nil {
		return err
	}

	wo, err := workorder.New(workorder.Params{
		TaskPrompt:     c.Task,
		Workspace:      workorder.WorkspaceSource{Kind: workorder.WorkspaceLocalPath, LocalPath: c.Workspace},
		AgentKind:      c.AgentKind,
		Limits:         workorder.Limits{MaxIterations: c.MaxIterations, MaxWallClock: c.MaxWallClock},
		GatePlanSource: source,
	})
	if err != nil {
		return fmt.Errorf("build work order: %w", err)
	}

	resolver := gateplan.NewCompositeResolver(
		gateplan.NewProfileResolver(gateplan.FileBackendFactory(".agentgate/gate-profiles")),
		gateplan.NewCIInferredResolver(c.Workspace),
	)
	plan, err := resolver.Resolve(ctx, wo.GatePlanSource())
	if err != nil {
		return fmt.Errorf("resolve gate plan: %w", err)
	}

	persister, err := persistence.NewFileResultPersister(c.OutDir)
	if err != nil {
		return fmt.Errorf("create result persister: %w", err)
	}

	bus := events.NewBus()
	bus.Subscribe(events.TopicRunStarted, func(e any) { fmt.Printf("run started: %+v\n", e) })
	bus.Subscribe(events.TopicIterationStarted, func(e any) { fmt.Printf("iteration started: %+v\n", e) })
	bus.Subscribe(events.TopicIterationComplete, func(e any) { fmt.Printf("iteration completed: %+v\n", e) })

	orch := orchestrator.New(demoDriver{}, demoSnapshotter{}, demoVerifier{passOnIteration: c.PassOn}, demoFeedback{})

	monitor := resources.New(c.Concurrency, bus)
	slot, ok := monitor.AcquireSlot(wo.ID())
	if !ok {
		return fmt.Errorf("no slot available")
	}
	defer monitor.ReleaseSlot(slot)

	retryMgr := retry.New(retry.DefaultConfig(), func(workOrderID string, attempt int) {
		fmt.Printf("retry fired for %s (attempt %d), but this harness does not re-enqueue\n", workOrderID, attempt)
	})

	eng := engine.New(engine.Config{MaxConcurrentRuns: c.Concurrency, MaxRetries: retry.DefaultConfig().MaxRetries}, orch, monitor, bus, retryMgr)

	state := stateflow.New(wo.ID(), retry.DefaultConfig().MaxRetries)
	if _, err := state.Transition(stateflow.EventClaim, map[string]any{"slotId": slot.ID}); err != nil {
		return fmt.Errorf("claim work order: %w", err)
	}

	run := eng.Execute(ctx, engine.StartParams{
		RunID:           wo.ID(),
		WorkOrder:       wo,
		State:           state,
		Slot:            slot,
		GatePlan:        plan,
		ConvergenceKind: "fixed",
		Snapshotter:     demoSnapshotter{},
		Persister:       persister,
	})

	fmt.Printf("\nrun %s result: %s (iterations: %d, artifacts under %s/runs/%s)\n", run.ID, run.Result, len(run.Iterations), c.OutDir, run.ID)
	return nil
}

func (c *RunCmd) gatePlanSource() (workorder.GatePlanSource, error) {
	kind := workorder.GatePlanSourceKind(c.GatePlan)
	switch kind {
	case workorder.GatePlanProfile:
		if c.Profile == "" {
			return workorder.GatePlanSource{}, fmt.Errorf("--gate-plan=profile requires --profile")
		}
		return workorder.GatePlanSource{Kind: kind, ProfileName: c.Profile}, nil
	case workorder.GatePlanAuto, workorder.GatePlanCIInferred, workorder.GatePlanDefault:
		return workorder.GatePlanSource{Kind: kind}, nil
	default:
		return workorder.GatePlanSource{}, fmt.Errorf("unknown --gate-plan %q", c.GatePlan)
	}
}

func main() {
	_ = godotenv.Load()

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("agentgate"),
		kong.Description("AgentGate execution engine — local dev harness"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	output := os.Stderr
	if cli.LogFile != "" {
		f, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = f
	}
	logger.Init(level, output, cli.LogFormat)

	err = kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}
