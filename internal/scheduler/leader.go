package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// LeaderElector gates tryClaim behind etcd-backed leader election for
// horizontal scale-out (spec.md §4.11): multiple Scheduler processes can run
// against the same work-order source, but only the elected leader claims.
// Non-leaders keep polling and stay slot-registered/health-checkable; they
// simply skip the claim itself until they win a subsequent election.
//
// A Scheduler with no LeaderElector bound behaves exactly as it did before
// this existed: single-process mode, every tryClaim is live.
type LeaderElector struct {
	session  *concurrency.Session
	election *concurrency.Election
	key      string

	mu       chan struct{} // 1-buffered; held == currently campaigning/leading
	isLeader bool
}

// NewLeaderElector opens an etcd session and prepares a named election.
// Campaign must be called (typically in its own goroutine) before IsLeader
// reports true.
func NewLeaderElector(client *clientv3.Client, electionKey string) (*LeaderElector, error) {
	if electionKey == "" {
		return nil, fmt.Errorf("scheduler: leader election key is required")
	}
	session, err := concurrency.NewSession(client)
	if err != nil {
		return nil, fmt.Errorf("scheduler: open etcd session: %w", err)
	}
	return &LeaderElector{
		session:  session,
		election: concurrency.NewElection(session, electionKey),
		key:      electionKey,
		mu:       make(chan struct{}, 1),
	}, nil
}

// Campaign blocks until ctx is canceled or the session expires, continuously
// standing for election: it re-campaigns after losing leadership (e.g. on a
// resignation or session loss elsewhere) rather than returning. Run it in its
// own goroutine alongside Scheduler.Run.
func (le *LeaderElector) Campaign(ctx context.Context, nodeID string) error {
	for {
		if err := le.election.Campaign(ctx, nodeID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("scheduler leader campaign failed, retrying", "error", err, "key", le.key)
			continue
		}
		le.setLeader(true)
		slog.Info("scheduler became leader", "key", le.key, "node_id", nodeID)

		select {
		case <-ctx.Done():
			le.setLeader(false)
			return ctx.Err()
		case <-le.session.Done():
			le.setLeader(false)
			slog.Warn("scheduler etcd session lost, re-campaigning", "key", le.key)
		}
	}
}

func (le *LeaderElector) setLeader(v bool) {
	select {
	case le.mu <- struct{}{}:
	default:
		<-le.mu
		le.mu <- struct{}{}
	}
	le.isLeader = v
	<-le.mu
}

// IsLeader reports whether this process currently holds the election.
func (le *LeaderElector) IsLeader() bool {
	le.mu <- struct{}{}
	v := le.isLeader
	<-le.mu
	return v
}

// Close releases the underlying etcd session (and, transitively, resigns
// any held election key via its lease expiring).
func (le *LeaderElector) Close() error {
	return le.session.Close()
}

// SetLeaderElector binds an elector; once bound, tryClaim becomes a no-op on
// any process that is not the current leader. Passing nil reverts to
// single-process mode (every tryClaim is live), matching spec.md §4.11's
// "off by default" default.
func (s *Scheduler) SetLeaderElector(le *LeaderElector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leader = le
}
