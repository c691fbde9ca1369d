package convergence

import (
	"fmt"
	"strings"
	"sync"
)

// --- fixed(N) --------------------------------------------------------------

type fixedStrategy struct {
	n int
}

func newFixedFactory(params map[string]any) (Strategy, error) {
	n, err := intParam(params, "n", 5)
	if err != nil {
		return nil, err
	}
	return &fixedStrategy{n: n}, nil
}

func (s *fixedStrategy) Name() string { return "fixed" }
func (s *fixedStrategy) Reset()       {}

func (s *fixedStrategy) ShouldContinue(state State) Decision {
	if state.GatesPassed {
		return Decision{Action: ActionStop, Reason: "gates passed", Confidence: 1}
	}
	if state.Iteration >= s.n {
		return Decision{Action: ActionStop, Reason: fmt.Sprintf("reached fixed iteration cap %d", s.n), Confidence: 1}
	}
	return Decision{Action: ActionContinue, Reason: "iterations remain", Confidence: 0.5}
}

// --- hybrid(base, bonus, threshold) -----------------------------------------

type hybridStrategy struct {
	base, bonus int
	threshold   float64

	mu           sync.Mutex
	prevProgress float64
	hasPrev      bool
	fingerprints []string
}

func newHybridFactory(params map[string]any) (Strategy, error) {
	base, err := intParam(params, "base", 3)
	if err != nil {
		return nil, err
	}
	bonus, err := intParam(params, "bonus", 5)
	if err != nil {
		return nil, err
	}
	threshold, err := floatParam(params, "threshold", 0.1)
	if err != nil {
		return nil, err
	}
	return &hybridStrategy{base: base, bonus: bonus, threshold: threshold}, nil
}

func (s *hybridStrategy) Name() string { return "hybrid" }

func (s *hybridStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prevProgress, s.hasPrev, s.fingerprints = 0, false, nil
}

func (s *hybridStrategy) ShouldContinue(state State) Decision {
	if state.GatesPassed {
		return Decision{Action: ActionStop, Reason: "gates passed", Confidence: 1}
	}

	s.mu.Lock()
	if state.SnapshotFingerprint != "" {
		s.fingerprints = append(s.fingerprints, state.SnapshotFingerprint)
		if len(s.fingerprints) > 3 {
			s.fingerprints = s.fingerprints[len(s.fingerprints)-3:]
		}
	}
	looping := loopDetected(s.fingerprints)
	progress, _ := Progress(state.Gates, s.prevProgress, s.hasPrev)
	s.prevProgress, s.hasPrev = progress, true
	s.mu.Unlock()

	if looping {
		return Decision{Action: ActionStop, Reason: "identical snapshot fingerprints in last 3 iterations", Confidence: 0.9}
	}

	if state.Iteration <= s.base {
		return Decision{Action: ActionContinue, Reason: "within unconditional base iterations", Confidence: 0.6}
	}

	if state.Iteration <= s.base+s.bonus && progress >= s.threshold {
		return Decision{Action: ActionContinue, Reason: "bonus iteration, progress above threshold", Confidence: progress}
	}

	return Decision{Action: ActionStop, Reason: "bonus iterations exhausted or progress below threshold", Confidence: 1 - progress}
}

// loopDetected reports whether the last 3 fingerprints are pairwise equal
// (spec.md §4.6's hybrid loop-detection rule).
func loopDetected(fingerprints []string) bool {
	if len(fingerprints) < 3 {
		return false
	}
	a, b, c := fingerprints[0], fingerprints[1], fingerprints[2]
	return a == b && b == c
}

// --- ralph(min, convergenceThreshold, windowSize) ---------------------------

type ralphStrategy struct {
	min                 int
	convergenceThreshold float64
	windowSize          int
	signals             []string

	mu      sync.Mutex
	outputs []string
}

var defaultRalphSignals = []string{"TASK_COMPLETE", "DONE"}

func newRalphFactory(params map[string]any) (Strategy, error) {
	min, err := intParam(params, "min", 2)
	if err != nil {
		return nil, err
	}
	ct, err := floatParam(params, "convergenceThreshold", 0.1)
	if err != nil {
		return nil, err
	}
	window, err := intParam(params, "windowSize", 3)
	if err != nil {
		return nil, err
	}
	signals := defaultRalphSignals
	if raw, ok := params["signals"]; ok {
		list, ok := raw.([]string)
		if !ok {
			return nil, fmt.Errorf("ralph: signals must be []string")
		}
		signals = list
	}
	return &ralphStrategy{min: min, convergenceThreshold: ct, windowSize: window, signals: signals}, nil
}

func (s *ralphStrategy) Name() string { return "ralph" }

func (s *ralphStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = nil
}

func (s *ralphStrategy) ShouldContinue(state State) Decision {
	s.mu.Lock()
	s.outputs = append(s.outputs, state.AgentOutputText)
	if len(s.outputs) > s.windowSize {
		s.outputs = s.outputs[len(s.outputs)-s.windowSize:]
	}
	window := append([]string(nil), s.outputs...)
	s.mu.Unlock()

	if state.Iteration < s.min {
		return Decision{Action: ActionContinue, Reason: "below minimum iteration count", Confidence: 0.6}
	}

	if completionSignaled(state.AgentOutputText, s.signals) {
		return Decision{Action: ActionStop, Reason: "completion signal detected", Confidence: 1}
	}

	if state.GatesPassed {
		return Decision{Action: ActionStop, Reason: "gates passed", Confidence: 1}
	}

	if len(window) >= s.windowSize && windowConverged(window, s.convergenceThreshold) {
		return Decision{Action: ActionStop, Reason: "sliding window converged (loop detection)", Confidence: 0.9}
	}

	return Decision{Action: ActionContinue, Reason: "no completion signal or convergence yet", Confidence: 0.4}
}

// completionSignaled is a case-insensitive substring match against the
// configured signal set (spec.md §4.6).
func completionSignaled(output string, signals []string) bool {
	lower := strings.ToLower(output)
	for _, sig := range signals {
		if strings.Contains(lower, strings.ToLower(sig)) {
			return true
		}
	}
	return false
}

// windowConverged reports whether every pairwise Jaccard similarity in the
// window is >= 1 - convergenceThreshold (spec.md §4.6).
func windowConverged(window []string, convergenceThreshold float64) bool {
	required := 1 - convergenceThreshold
	for i := 0; i < len(window); i++ {
		for j := i + 1; j < len(window); j++ {
			if jaccard(window[i], window[j]) < required {
				return false
			}
		}
	}
	return true
}

// jaccard tokenizes each output (lowercase, split on whitespace, drop
// tokens of length <= 2) and computes |A∩B|/|A∪B|; 1 if both sets are
// empty (spec.md §4.6).
func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	intersection := 0
	union := make(map[string]struct{}, len(setA)+len(setB))
	for t := range setA {
		union[t] = struct{}{}
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	for t := range setB {
		union[t] = struct{}{}
	}
	return float64(intersection) / float64(len(union))
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		if len(tok) > 2 {
			out[tok] = struct{}{}
		}
	}
	return out
}

// --- manual ------------------------------------------------------------------

type manualStrategy struct{}

func newManualFactory(map[string]any) (Strategy, error) { return &manualStrategy{}, nil }

func (s *manualStrategy) Name() string { return "manual" }
func (s *manualStrategy) Reset()       {}

func (s *manualStrategy) ShouldContinue(state State) Decision {
	if state.GatesPassed {
		return Decision{Action: ActionStop, Reason: "gates passed", Confidence: 1}
	}
	return Decision{Action: ActionContinue, Reason: "manual strategy only stops on gates-passed or external cancel", Confidence: 0.5}
}

// --- adaptive ------------------------------------------------------------------

// newAdaptiveFactory is the "reserved hook" spec.md §4.6 calls for: it
// falls back to hybrid's default parameters until AgentGate grows an
// actual adaptive policy.
func newAdaptiveFactory(params map[string]any) (Strategy, error) {
	hybrid, err := newHybridFactory(nil)
	if err != nil {
		return nil, err
	}
	return &adaptiveStrategy{hybridStrategy: hybrid.(*hybridStrategy)}, nil
}

type adaptiveStrategy struct {
	*hybridStrategy
}

func (s *adaptiveStrategy) Name() string { return "adaptive" }

// --- param helpers ------------------------------------------------------------

func intParam(params map[string]any, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number, got %T", key, raw)
	}
}

func floatParam(params map[string]any, key string, def float64) (float64, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number, got %T", key, raw)
	}
}
