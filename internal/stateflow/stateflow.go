// Package stateflow implements the per-work-order finite state machine
// (spec.md §4.1): explicit transitions, an append-only audit history, and
// a monotone retry counter.
//
// Generalized from the teacher's pkg/task/task.go Task type — which checks
// state transitions ad hoc inside each setter — into an explicit
// map[State]map[Event]State table so the valid-event set for a given state
// can be asserted on directly by callers and tests, as spec.md §4.1 and
// §8's round-trip law (STATE_TRANSITIONS[from][event] defined iff
// canTransition returns true) require.
package stateflow

import (
	"fmt"
	"sync"
	"time"
)

// State is one of the work order's FSM states (spec.md §3).
type State string

const (
	Pending       State = "PENDING"
	Preparing     State = "PREPARING"
	Running       State = "RUNNING"
	Completed     State = "COMPLETED"
	Failed        State = "FAILED"
	WaitingRetry  State = "WAITING_RETRY"
	Cancelled     State = "CANCELLED"
)

// IsTerminal reports whether s is one of COMPLETED/FAILED/CANCELLED.
func (s State) IsTerminal() bool {
	switch s {
	case Completed, Failed, Cancelled:
		return true
	}
	return false
}

// Event is one of the FSM's named transition triggers (spec.md §4.1).
type Event string

const (
	EventSubmit   Event = "SUBMIT"
	EventClaim    Event = "CLAIM"
	EventReady    Event = "READY"
	EventComplete Event = "COMPLETE"
	EventFail     Event = "FAIL"
	EventRetry    Event = "RETRY"
	EventCancel   Event = "CANCEL"
)

// transitions is the literal table from spec.md §4.1. FAIL's routing to
// WAITING_RETRY vs FAILED is NOT encoded here — it is a precondition
// decided by the caller (see TransitionFail) before Apply is invoked with
// whichever event actually applies, exactly mirroring spec.md's footnote
// that FAIL "routes to WAITING_RETRY only if ... retryCount < maxRetries;
// otherwise it routes to FAILED".
var transitions = map[State]map[Event]State{
	Pending: {
		EventClaim:  Preparing,
		EventCancel: Cancelled,
	},
	Preparing: {
		EventReady:  Running,
		EventFail:   WaitingRetry, // only valid when the caller chose retry; see TransitionFail
		EventCancel: Cancelled,
	},
	Running: {
		EventComplete: Completed,
		EventFail:     WaitingRetry, // ditto
		EventCancel:   Cancelled,
	},
	WaitingRetry: {
		EventRetry:  Pending,
		EventCancel: Cancelled,
	},
}

// terminalFailTargets lists the state FAIL lands on from {PREPARING,
// RUNNING} when the caller decided the failure is NOT retryable (or the
// retry budget is exhausted) — i.e. FAILED instead of WAITING_RETRY.
var terminalFailTargets = map[State]State{
	Preparing: Failed,
	Running:   Failed,
}

// Transition is one entry in a StateRecord's append-only history.
type Transition struct {
	ID        int
	From      State
	To        State
	Event     Event
	Metadata  map[string]any
	Timestamp time.Time
}

// TransitionError reports an invalid transition attempt (spec.md §4.1: it
// "names the current state and the valid event set for that state"). It is
// always a programmer error, never retried (spec.md §7's invalid_transition
// kind).
type TransitionError struct {
	State      State
	Event      Event
	ValidEvents []Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: state=%s event=%s valid-events=%v", e.State, e.Event, e.ValidEvents)
}

// Observer is notified after a transition is committed.
type Observer interface {
	OnStateChanged(workOrderID string, from, to State, event Event, metadata map[string]any, ts time.Time)
	OnTerminalReached(workOrderID string, state State, ts time.Time)
}

// StateRecord is the per-work-order state machine. One instance per work
// order, operated single-threaded from the owning Run's goroutine per
// spec.md §5, but the internal mutex makes it safe regardless.
type StateRecord struct {
	mu          sync.Mutex
	workOrderID string
	state       State
	retryCount  int
	maxRetries  int
	history     []Transition
	observers   []Observer
	nextID      int
}

// New creates a StateRecord in PENDING with the given retry budget.
func New(workOrderID string, maxRetries int) *StateRecord {
	return &StateRecord{
		workOrderID: workOrderID,
		state:       Pending,
		maxRetries:  maxRetries,
	}
}

// AddObserver registers an observer for state-changed/terminal-reached
// notifications. Not safe to call concurrently with transitions.
func (s *StateRecord) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// State returns the current state.
func (s *StateRecord) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RetryCount returns the current monotone retry counter.
func (s *StateRecord) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount
}

// MaxRetries returns the configured retry budget.
func (s *StateRecord) MaxRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxRetries
}

// History returns a copy of the append-only transition log.
func (s *StateRecord) History() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transition, len(s.history))
	copy(out, s.history)
	return out
}

// CanTransition is the pure predicate spec.md §4.1 requires: true iff
// transitions[state][event] is defined.
func (s *StateRecord) CanTransition(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canTransitionLocked(event)
}

func (s *StateRecord) canTransitionLocked(event Event) bool {
	row, ok := transitions[s.state]
	if !ok {
		return false
	}
	_, ok = row[event]
	return ok
}

// Transition atomically validates and applies event, appending a history
// record and firing observers. Invalid transitions return a
// *TransitionError and do NOT mutate state or fire observers.
func (s *StateRecord) Transition(event Event, metadata map[string]any) (State, error) {
	s.mu.Lock()

	row, ok := transitions[s.state]
	var target State
	var validEvent bool
	if ok {
		target, validEvent = row[event]
	}
	if !validEvent {
		valid := validEventsLocked(s.state)
		current := s.state
		s.mu.Unlock()
		return current, &TransitionError{State: current, Event: event, ValidEvents: valid}
	}

	from := s.state
	s.state = target
	s.nextID++
	record := Transition{
		ID:        s.nextID,
		From:      from,
		To:        target,
		Event:     event,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
	s.history = append(s.history, record)
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o.OnStateChanged(s.workOrderID, from, target, event, metadata, record.Timestamp)
	}
	if target.IsTerminal() {
		for _, o := range observers {
			o.OnTerminalReached(s.workOrderID, target, record.Timestamp)
		}
	}
	return target, nil
}

func validEventsLocked(state State) []Event {
	row, ok := transitions[state]
	if !ok {
		return nil
	}
	out := make([]Event, 0, len(row))
	for e := range row {
		out = append(out, e)
	}
	return out
}

// TransitionFail applies the FAIL event, choosing WAITING_RETRY or FAILED
// per spec.md §4.1's footnote: retryable AND retryCount < maxRetries routes
// to WAITING_RETRY, otherwise FAILED. The retry budget check lives here,
// not in Retry — see DESIGN.md's Open Question resolution.
func (s *StateRecord) TransitionFail(retryable bool, metadata map[string]any) (State, error) {
	s.mu.Lock()
	current := s.state
	budgetLeft := retryable && s.retryCount < s.maxRetries
	s.mu.Unlock()

	if !budgetLeft {
		if target, ok := terminalFailTargets[current]; ok {
			return s.forceTransition(EventFail, target, metadata)
		}
	}
	return s.Transition(EventFail, metadata)
}

// forceTransition applies event -> target directly, used only for the
// FAILED branch of TransitionFail, where the literal table maps FAIL to
// WAITING_RETRY and the FAILED branch must still go through the same
// validate-append-notify path.
func (s *StateRecord) forceTransition(event Event, target State, metadata map[string]any) (State, error) {
	s.mu.Lock()
	if !s.canTransitionLocked(event) {
		current := s.state
		valid := validEventsLocked(s.state)
		s.mu.Unlock()
		return current, &TransitionError{State: current, Event: event, ValidEvents: valid}
	}

	from := s.state
	s.state = target
	s.nextID++
	record := Transition{ID: s.nextID, From: from, To: target, Event: event, Metadata: metadata, Timestamp: time.Now()}
	s.history = append(s.history, record)
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o.OnStateChanged(s.workOrderID, from, target, event, metadata, record.Timestamp)
	}
	if target.IsTerminal() {
		for _, o := range observers {
			o.OnTerminalReached(s.workOrderID, target, record.Timestamp)
		}
	}
	return target, nil
}

// Retry increments the retry counter and applies the RETRY event
// unconditionally — the budget decision was already made by whichever FAIL
// call led here (spec.md's Open Question: "retry() as unconditional").
func (s *StateRecord) Retry(metadata map[string]any) (State, error) {
	s.mu.Lock()
	s.retryCount++
	s.mu.Unlock()
	return s.Transition(EventRetry, metadata)
}
