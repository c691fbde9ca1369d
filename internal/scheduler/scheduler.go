// Package scheduler implements the pull-based, resource-aware Scheduler
// (spec.md §4.4): a mutex-guarded deque of PENDING work orders, claimed by
// a background poll loop that also wakes on slot-available events.
//
// Grounded on the teacher's pkg/agent/workflowagent/parallel.go use of
// golang.org/x/sync/errgroup to supervise a background goroutine
// cooperatively, and on pkg/ratelimit's mutex-around-small-state-machine
// shape for the claim algorithm itself.
//
// For horizontal scale-out, a LeaderElector (leader.go) can be bound to
// restrict claiming to a single elected process while the rest stay warm;
// see spec.md §4.11. This is off by default.
package scheduler

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fl-sean03/agentgate/internal/events"
	"github.com/fl-sean03/agentgate/internal/resources"
	"github.com/fl-sean03/agentgate/internal/stateflow"
)

// Enqueued is one item accepted into the queue.
type Enqueued struct {
	WorkOrderID string
	Priority    int
	State       *stateflow.StateRecord
	EnqueuedAt  time.Time
}

// Handler is invoked asynchronously once a work order is claimed; it owns
// the slot for the duration of the run (spec.md §4.4 step 8).
type Handler func(ctx context.Context, item Enqueued, slot *resources.Slot)

// Config configures a Scheduler.
type Config struct {
	MaxQueueDepth int // 0 = unlimited
	StaggerDelay  time.Duration
	PollInterval  time.Duration
	PriorityQueue bool
}

// Scheduler is the pull-based Scheduler.
type Scheduler struct {
	mu            sync.Mutex
	cfg           Config
	queue         *list.List // of *Enqueued
	lastClaimTime time.Time
	hasClaimed    bool
	handler       Handler

	monitor *resources.Monitor
	bus     *events.Bus
	leader  *LeaderElector // nil = single-process mode, spec.md §4.11
}

// New creates a Scheduler. Bind a claim handler with SetHandler before
// starting Run, or claims will warn and no-op per spec.md §4.4 step 2.
func New(cfg Config, monitor *resources.Monitor, bus *events.Bus) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	s := &Scheduler{
		cfg:     cfg,
		queue:   list.New(),
		monitor: monitor,
		bus:     bus,
	}
	if bus != nil {
		bus.Subscribe(events.TopicSlotAvailable, func(any) { s.tryClaim() })
	}
	return s
}

// SetHandler binds the execution handler invoked on a successful claim.
func (s *Scheduler) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// errBackpressure reports an enqueue rejected for being over maxQueueDepth.
type errBackpressure struct{ depth int }

func (e errBackpressure) Error() string { return "queue at capacity" }

// Enqueue appends item to the queue, rejecting with backpressure when the
// queue is at maxQueueDepth (spec.md §4.4). Priority ordering, when
// enabled, sorts descending by priority, stable across equal priorities.
func (s *Scheduler) Enqueue(item Enqueued) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.MaxQueueDepth > 0 && s.queue.Len() >= s.cfg.MaxQueueDepth {
		if s.bus != nil {
			s.bus.Publish(events.TopicBackpressure, events.Backpressure{Depth: s.queue.Len(), Timestamp: time.Now()})
		}
		return errBackpressure{depth: s.queue.Len()}
	}

	item.EnqueuedAt = time.Now()
	if !s.cfg.PriorityQueue {
		s.queue.PushBack(&item)
		return nil
	}

	s.insertByPriorityLocked(&item)
	return nil
}

// insertByPriorityLocked inserts item before the first existing entry with
// strictly lower priority, preserving FIFO order among equal priorities.
func (s *Scheduler) insertByPriorityLocked(item *Enqueued) {
	for e := s.queue.Front(); e != nil; e = e.Next() {
		existing := e.Value.(*Enqueued)
		if item.Priority > existing.Priority {
			s.queue.InsertBefore(item, e)
			return
		}
	}
	s.queue.PushBack(item)
}

// Run starts the background poll loop, returning when ctx is canceled
// (supervised by errgroup, matching the teacher's workflowagent
// parallel-fan-out supervision pattern).
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				s.tryClaim()
			}
		}
	})
	return g.Wait()
}

// tryClaim implements spec.md §4.4's claim algorithm. When a LeaderElector
// is bound (spec.md §4.11) and this process is not currently the leader, it
// returns immediately: non-leaders stay warm but never claim.
func (s *Scheduler) tryClaim() {
	s.mu.Lock()

	if s.leader != nil && !s.leader.IsLeader() {
		s.mu.Unlock()
		return
	}

	front := s.queue.Front()
	if front == nil {
		s.mu.Unlock()
		if s.bus != nil {
			s.bus.Publish(events.TopicQueueEmpty, events.QueueEmpty{Timestamp: time.Now()})
		}
		return
	}

	if s.handler == nil {
		s.mu.Unlock()
		slog.Warn("scheduler has no bound execution handler; skipping claim")
		return
	}

	if since := time.Since(s.lastClaimTime); s.hasClaimed && since < s.cfg.StaggerDelay {
		remaining := s.cfg.StaggerDelay - since
		s.mu.Unlock()
		if s.bus != nil {
			item := front.Value.(*Enqueued)
			s.bus.Publish(events.TopicStaggerWait, events.StaggerWait{WorkOrderID: item.WorkOrderID, RemainingMs: remaining.Milliseconds(), Timestamp: time.Now()})
		}
		return
	}

	if _, pressure := s.monitor.Health(); pressure == resources.PressureCritical {
		s.mu.Unlock()
		return
	}

	item := front.Value.(*Enqueued)
	slot, ok := s.monitor.AcquireSlot(item.WorkOrderID)
	if !ok {
		s.mu.Unlock()
		return
	}

	s.queue.Remove(front)
	s.lastClaimTime = time.Now()
	s.hasClaimed = true
	s.mu.Unlock()

	if _, err := item.State.Transition(stateflow.EventClaim, map[string]any{"slotId": slot.ID}); err != nil {
		// Invalid transition: release the slot and push the work order back
		// to the front; do not retry synchronously (spec.md §4.4 step 7).
		s.monitor.ReleaseSlot(slot)
		s.mu.Lock()
		s.queue.PushFront(item)
		s.mu.Unlock()
		slog.Error("scheduler claim produced an invalid state transition", "work_order_id", item.WorkOrderID, "error", err)
		return
	}

	if s.bus != nil {
		s.bus.Publish(events.TopicWorkClaimed, events.WorkClaimed{WorkOrderID: item.WorkOrderID, SlotID: slot.ID, Timestamp: time.Now()})
	}

	handler := s.handler
	go handler(context.Background(), *item, slot)
}

// Depth returns the current queue length.
func (s *Scheduler) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}
