// Package plugin hosts internal/capability implementations as
// hashicorp/go-plugin subprocess plugins, over the library's net/rpc
// transport rather than its gRPC transport (see DESIGN.md for why). The
// core never imports this package; it is wired in only by whatever builds
// the process (a cmd/ main, or tests).
//
// Grounded on the teacher's plugins/types.go and plugins/registry.go,
// generalized from the teacher's five LLM/Database/Embedder/Tool/Reasoning
// plugin kinds to AgentGate's five capabilities: AgentDriver, Snapshotter,
// Verifier, FeedbackGenerator, ResultPersister.
package plugin

import (
	"context"
	"fmt"
)

// Kind identifies which internal/capability interface a plugin implements.
type Kind string

const (
	KindAgentDriver       Kind = "agent_driver"
	KindSnapshotter       Kind = "snapshotter"
	KindVerifier          Kind = "verifier"
	KindFeedbackGenerator Kind = "feedback_generator"
	KindResultPersister   Kind = "result_persister"
)

// Status mirrors the teacher's PluginStatus state machine.
type Status string

const (
	StatusUnloaded   Status = "unloaded"
	StatusLoading    Status = "loading"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
	StatusCrashed    Status = "crashed"
	StatusShutdown   Status = "shutdown"
	StatusRestarting Status = "restarting"
)

// Manifest describes a plugin binary ahead of loading it. Unlike the
// teacher's PluginManifest there is no Protocol field: every AgentGate
// plugin speaks net/rpc, there being only one transport to choose from.
type Manifest struct {
	Name        string
	Version     string
	Kind        Kind
	Description string
}

// Config describes how to load one plugin instance.
type Config struct {
	Name     string
	Path     string // path to the plugin subprocess binary
	Enabled  bool
	Config   map[string]any
	Manifest *Manifest
}

// Handle is the interface every loaded plugin satisfies, regardless of
// Kind — the lifecycle surface the Registry drives. The capability method
// itself (Execute, Verify, Generate, ...) lives on the dispensed net/rpc
// client the handle holds; AsAgentDriver, AsVerifier, etc. (handle.go)
// return it.
type Handle interface {
	Initialize(ctx context.Context, config map[string]any) error
	Shutdown(ctx context.Context) error
	Manifest() *Manifest
	Status() Status
	Health(ctx context.Context) error
}

// Loader knows how to start and stop one Kind's plugin subprocess and hand
// back a Handle wrapping the dispensed capability implementation.
type Loader interface {
	Load(ctx context.Context, cfg Config) (Handle, error)
	Unload(ctx context.Context, h Handle) error
}

// Error wraps a plugin-lifecycle failure with the plugin name and the
// operation that failed, mirroring the teacher's PluginError.
type Error struct {
	PluginName string
	Operation  string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("plugin %s: %s: %s", e.PluginName, e.Operation, e.Message)
	}
	return fmt.Sprintf("plugin %s: %s: %v", e.PluginName, e.Operation, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(pluginName, operation string, err error) *Error {
	return &Error{PluginName: pluginName, Operation: operation, Err: err}
}

var (
	ErrNotFound         = fmt.Errorf("plugin not found")
	ErrNotLoaded        = fmt.Errorf("plugin not loaded")
	ErrAlreadyLoaded    = fmt.Errorf("plugin already loaded")
	ErrCrashed          = fmt.Errorf("plugin crashed")
	ErrInvalidManifest  = fmt.Errorf("invalid plugin manifest")
	ErrUnsupportedKind  = fmt.Errorf("unsupported plugin kind")
)

// LifecycleHooks let a host observe or veto load/unload transitions,
// mirroring the teacher's PluginLifecycleHooks.
type LifecycleHooks struct {
	BeforeLoad   func(ctx context.Context, cfg Config) error
	AfterLoad    func(ctx context.Context, h Handle) error
	BeforeUnload func(ctx context.Context, h Handle) error
	AfterUnload  func(ctx context.Context, name string) error
	OnCrash      func(ctx context.Context, h Handle)
}
