// Package convergence implements the Convergence Controller (spec.md §4.6):
// a pluggable outer-loop strategy selected per run, plus the shared
// progress metric, loop detection, and Jaccard similarity helpers the
// strategies use.
//
// Grounded on the teacher's pkg/reasoning.ReasoningStrategy interface
// (pkg/reasoning/strategy.go) — a small interface implemented by several
// named strategies and selected by a string identifier in
// pkg/reasoning/factory.go's CreateStrategy — generalized from
// "reasoning approach" to "iterate-or-stop decision". Strategy lookup
// reuses pkg/registry.Registry[T] verbatim as a generic factory registry.
package convergence

import (
	"fmt"
	"strings"

	"github.com/fl-sean03/agentgate/pkg/registry"
)

// Action is the Convergence Controller's binary decision.
type Action string

const (
	ActionContinue Action = "continue"
	ActionStop     Action = "stop"
)

// Decision decorates an iteration result (spec.md §4.6).
type Decision struct {
	Action     Action
	Reason     string
	Confidence float64 // in [0,1]
}

// GateOutcome is one gate's pass/fail (or fractional, for verification
// levels) contribution to the progress metric.
type GateOutcome struct {
	Name          string
	Passed        bool
	LevelsTotal   int // > 0 for verification-level gates
	LevelsPassed  int
}

// score returns 1.0 if passed, the level fraction for level gates, else 0.
func (g GateOutcome) score() float64 {
	if g.Passed {
		return 1.0
	}
	if g.LevelsTotal > 0 {
		return float64(g.LevelsPassed) / float64(g.LevelsTotal)
	}
	return 0
}

// Trend classifies progress movement relative to the previous value.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendRegressing Trend = "regressing"
	TrendStagnant   Trend = "stagnant"
)

// trendBand is the ±0.05 band spec.md §4.6 defines as "stagnant".
const trendBand = 0.05

// Progress computes the mean gate score and its trend against previous.
func Progress(gates []GateOutcome, previous float64, hasPrevious bool) (value float64, trend Trend) {
	if len(gates) == 0 {
		return 0, TrendStagnant
	}
	var sum float64
	for _, g := range gates {
		sum += g.score()
	}
	value = sum / float64(len(gates))

	if !hasPrevious {
		return value, TrendStagnant
	}
	delta := value - previous
	switch {
	case delta > trendBand:
		trend = TrendImproving
	case delta < -trendBand:
		trend = TrendRegressing
	default:
		trend = TrendStagnant
	}
	return value, trend
}

// State is the input a Strategy's ShouldContinue sees: per spec.md §4.6,
// "Pure function of ConvergenceState + strategy-local history".
type State struct {
	Iteration        int
	GatesPassed      bool
	Gates            []GateOutcome
	SnapshotFingerprint string
	AgentOutputText  string
}

// Strategy is one pluggable convergence policy (spec.md §4.6).
type Strategy interface {
	ShouldContinue(state State) Decision
	Reset()
	Name() string
}

// Factory constructs a Strategy instance from its configuration parameters.
type Factory func(params map[string]any) (Strategy, error)

var strategies = registry.NewBaseRegistry[Factory]()

func init() {
	_ = strategies.Register("fixed", newFixedFactory)
	_ = strategies.Register("hybrid", newHybridFactory)
	_ = strategies.Register("ralph", newRalphFactory)
	_ = strategies.Register("manual", newManualFactory)
	_ = strategies.Register("adaptive", newAdaptiveFactory)
}

// New resolves identifier against the strategy registry and constructs an
// instance with params. adaptive falls back to hybrid's default
// parameters, exactly as spec.md §4.6 specifies ("reserved hook").
func New(identifier string, params map[string]any) (Strategy, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	factory, ok := strategies.Get(identifier)
	if !ok {
		return nil, fmt.Errorf("unknown convergence strategy %q", identifier)
	}
	return factory(params)
}
