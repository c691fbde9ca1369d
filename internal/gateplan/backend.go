package gateplan

import "context"

// Backend abstracts where a profile document's raw bytes come from,
// grounded on the teacher's pkg/config/provider.Provider interface
// (file/consul/etcd/zookeeper), generalized from "config source" to
// "profile source".
type Backend interface {
	// Load reads the raw profile document.
	Load(ctx context.Context) ([]byte, error)

	// Watch signals on the returned channel whenever the underlying
	// document changes, so a long-lived ProfileResolver can invalidate its
	// cache without restarting. Returns a nil channel if the backend
	// doesn't support watching.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases any held connections/watchers.
	Close() error
}
