package gateplan

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fl-sean03/agentgate/internal/workorder"
)

// BackendFactory builds the Backend that serves one named profile. The
// factory indirection lets ProfileResolver stay agnostic to whether
// profiles live in a local directory or a Consul/ZooKeeper/etcd tree.
type BackendFactory func(profileName string) (Backend, error)

// FileBackendFactory returns a BackendFactory reading "<dir>/<name>.yaml"
// per profile, the common case (§4.10: "reads a YAML profile file from a
// configured directory").
func FileBackendFactory(dir string) BackendFactory {
	return func(profileName string) (Backend, error) {
		return NewFileBackend(dir + "/" + profileName + ".yaml")
	}
}

type cachedPlan struct {
	plan    Plan
	cancel  context.CancelFunc
	invalid bool
}

// ProfileResolver resolves GatePlanProfile sources by reading a named YAML
// profile document through a Backend and parsing it into a Plan. It caches
// the parsed Plan per profile name and invalidates the cache when the
// backing Backend signals a change, so long-lived scheduler processes pick
// up profile edits without restart (§4.10).
type ProfileResolver struct {
	factory BackendFactory

	mu    sync.Mutex
	cache map[string]*cachedPlan
}

func NewProfileResolver(factory BackendFactory) *ProfileResolver {
	return &ProfileResolver{factory: factory, cache: make(map[string]*cachedPlan)}
}

func (r *ProfileResolver) Resolve(ctx context.Context, source workorder.GatePlanSource) (Plan, error) {
	if source.ProfileName == "" {
		return Plan{}, fmt.Errorf("%w: profile source requires a profile name", ErrProfileNotFound)
	}

	r.mu.Lock()
	if entry, ok := r.cache[source.ProfileName]; ok && !entry.invalid {
		plan := entry.plan
		r.mu.Unlock()
		return plan, nil
	}
	r.mu.Unlock()

	backend, err := r.factory(source.ProfileName)
	if err != nil {
		return Plan{}, fmt.Errorf("build backend for profile %s: %w", source.ProfileName, err)
	}

	data, err := backend.Load(ctx)
	if err != nil {
		backend.Close()
		return Plan{}, err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		backend.Close()
		return Plan{}, fmt.Errorf("parse profile %s: %w", source.ProfileName, err)
	}

	plan := Plan{Source: workorder.GatePlanProfile, Profile: source.ProfileName, Data: doc}

	watchCtx, cancel := context.WithCancel(context.Background())
	entry := &cachedPlan{plan: plan, cancel: cancel}

	r.mu.Lock()
	if old, ok := r.cache[source.ProfileName]; ok {
		old.cancel()
	}
	r.cache[source.ProfileName] = entry
	r.mu.Unlock()

	changes, err := backend.Watch(watchCtx)
	if err == nil && changes != nil {
		go r.invalidateOnChange(source.ProfileName, entry, changes, backend)
	} else {
		backend.Close()
	}

	return plan, nil
}

func (r *ProfileResolver) invalidateOnChange(name string, entry *cachedPlan, changes <-chan struct{}, backend Backend) {
	defer backend.Close()
	for range changes {
		r.mu.Lock()
		if r.cache[name] == entry {
			entry.invalid = true
		}
		r.mu.Unlock()
	}
}

// Close cancels every in-flight watch goroutine.
func (r *ProfileResolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.cache {
		entry.cancel()
	}
	r.cache = make(map[string]*cachedPlan)
}

var _ Resolver = (*ProfileResolver)(nil)
