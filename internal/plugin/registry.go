package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fl-sean03/agentgate/pkg/registry"
)

// RegistryConfig configures a Registry, mirroring the teacher's
// PluginRegistryConfig.
type RegistryConfig struct {
	AutoRestart         bool
	MaxRestartAttempts  int
	HealthCheckInterval time.Duration
	LifecycleHooks      LifecycleHooks
}

// Registry tracks loaded plugin Handles by name, grounded on the teacher's
// plugins.PluginRegistry: same BaseRegistry[T]-wrapping shape, same
// rollback-on-failure Load sequence, same health-check ticker loop.
// Unlike the teacher, which dispatches to one of several PluginLoaders by
// protocol, AgentGate has exactly one transport (net/rpc), so loader is a
// single field rather than a map keyed by protocol.
type Registry struct {
	*registry.BaseRegistry[Handle]

	mu     sync.RWMutex
	loader Loader

	pluginsByKind map[Kind][]string

	hooks               LifecycleHooks
	autoRestart         bool
	restartAttempts     map[string]int
	maxRestartAttempts  int
	healthCheckInterval time.Duration
	stopHealthCheck     chan struct{}
}

// NewRegistry builds a Registry using loader for every Load/Unload.
func NewRegistry(loader Loader, cfg RegistryConfig) *Registry {
	if cfg.MaxRestartAttempts <= 0 {
		cfg.MaxRestartAttempts = 3
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	return &Registry{
		BaseRegistry:        registry.NewBaseRegistry[Handle](),
		loader:              loader,
		pluginsByKind:       make(map[Kind][]string),
		hooks:               cfg.LifecycleHooks,
		autoRestart:         cfg.AutoRestart,
		restartAttempts:     make(map[string]int),
		maxRestartAttempts:  cfg.MaxRestartAttempts,
		healthCheckInterval: cfg.HealthCheckInterval,
		stopHealthCheck:     make(chan struct{}),
	}
}

// Load loads one plugin per cfg, running every lifecycle hook in order and
// rolling back (unloading) on any failure, exactly like the teacher's
// PluginRegistry.LoadPlugin.
func (r *Registry) Load(ctx context.Context, cfg Config) (Handle, error) {
	if r.hooks.BeforeLoad != nil {
		if err := r.hooks.BeforeLoad(ctx, cfg); err != nil {
			return nil, NewError(cfg.Name, "before_load", err)
		}
	}

	h, err := r.loader.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if r.hooks.AfterLoad != nil {
		if err := r.hooks.AfterLoad(ctx, h); err != nil {
			r.loader.Unload(ctx, h)
			return nil, NewError(cfg.Name, "after_load", err)
		}
	}

	if err := h.Initialize(ctx, cfg.Config); err != nil {
		r.loader.Unload(ctx, h)
		return nil, NewError(cfg.Name, "initialize", err)
	}

	if err := r.Register(cfg.Name, h); err != nil {
		h.Shutdown(ctx)
		r.loader.Unload(ctx, h)
		return nil, NewError(cfg.Name, "register", err)
	}

	r.mu.Lock()
	r.pluginsByKind[cfg.Manifest.Kind] = append(r.pluginsByKind[cfg.Manifest.Kind], cfg.Name)
	r.mu.Unlock()

	return h, nil
}

// Unload stops and removes a loaded plugin.
func (r *Registry) Unload(ctx context.Context, name string) error {
	h, ok := r.Get(name)
	if !ok {
		return NewError(name, "unload", ErrNotLoaded)
	}

	if r.hooks.BeforeUnload != nil {
		if err := r.hooks.BeforeUnload(ctx, h); err != nil {
			return NewError(name, "before_unload", err)
		}
	}

	if err := h.Shutdown(ctx); err != nil {
		return NewError(name, "shutdown", err)
	}
	if err := r.loader.Unload(ctx, h); err != nil {
		return NewError(name, "unload", err)
	}
	if err := r.Remove(name); err != nil {
		return NewError(name, "remove", err)
	}

	r.mu.Lock()
	if kind := h.Manifest().Kind; kind != "" {
		names := r.pluginsByKind[kind]
		for i, n := range names {
			if n == name {
				r.pluginsByKind[kind] = append(names[:i], names[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if r.hooks.AfterUnload != nil {
		if err := r.hooks.AfterUnload(ctx, name); err != nil {
			return NewError(name, "after_unload", err)
		}
	}
	return nil
}

// ByKind lists every loaded plugin Handle of the given Kind.
func (r *Registry) ByKind(kind Kind) []Handle {
	r.mu.RLock()
	names := append([]string(nil), r.pluginsByKind[kind]...)
	r.mu.RUnlock()

	handles := make([]Handle, 0, len(names))
	for _, n := range names {
		if h, ok := r.Get(n); ok {
			handles = append(handles, h)
		}
	}
	return handles
}

// StartHealthChecks runs performHealthChecks on healthCheckInterval until
// ctx is cancelled or StopHealthChecks is called.
func (r *Registry) StartHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(r.healthCheckInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopHealthCheck:
				return
			case <-ticker.C:
				r.performHealthChecks(ctx)
			}
		}
	}()
}

// StopHealthChecks stops the health-check loop started by StartHealthChecks.
func (r *Registry) StopHealthChecks() {
	close(r.stopHealthCheck)
}

func (r *Registry) performHealthChecks(ctx context.Context) {
	for _, h := range r.List() {
		if err := h.Health(ctx); err != nil && h.Status() == StatusCrashed {
			if r.hooks.OnCrash != nil {
				r.hooks.OnCrash(ctx, h)
			}
			if r.autoRestart {
				// TODO: restart the crashed plugin subprocess by re-running
				// Load with its original Config; Config isn't retained
				// per-handle today, so restart is a no-op until that's
				// threaded through.
			}
		}
	}
}

// Shutdown stops health checks and unloads every registered plugin,
// aggregating any unload errors.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.StopHealthChecks()

	r.mu.RLock()
	var names []string
	for _, ns := range r.pluginsByKind {
		names = append(names, ns...)
	}
	r.mu.RUnlock()

	var errs []error
	for _, name := range names {
		if err := r.Unload(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("plugin registry shutdown: %v", errs)
	}
	return nil
}
