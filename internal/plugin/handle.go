package plugin

import (
	"context"

	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/fl-sean03/agentgate/internal/capability"
)

// pluginHandle is the concrete Handle returned by RPCLoader.Load. Unlike
// the teacher's capability interfaces (LLMProvider, DatabaseProvider, ...),
// which each declare their own Initialize/Shutdown/Health methods that the
// adapter simply forwards, internal/capability's five interfaces are pure
// business methods (Execute, Verify, Generate, ...) with no lifecycle
// surface of their own — so Initialize/Shutdown/Health here are driven by
// the go-plugin subprocess itself rather than forwarded to raw.
type pluginHandle struct {
	manifest  *Manifest
	hcClient  *hcplugin.Client
	rpcClient hcplugin.ClientProtocol
	raw       any // one of the capability.* interfaces, net/rpc-backed
	status    Status
}

func (h *pluginHandle) Initialize(ctx context.Context, config map[string]any) error {
	// The subprocess is already serving once Dispense succeeds; there is
	// no separate net/rpc init call to make.
	h.status = StatusReady
	return nil
}

func (h *pluginHandle) Shutdown(ctx context.Context) error {
	h.hcClient.Kill()
	h.status = StatusShutdown
	return nil
}

func (h *pluginHandle) Manifest() *Manifest { return h.manifest }

func (h *pluginHandle) Status() Status { return h.status }

func (h *pluginHandle) Health(ctx context.Context) error {
	if err := h.rpcClient.Ping(); err != nil {
		h.status = StatusCrashed
		return err
	}
	if h.status == StatusCrashed {
		h.status = StatusReady
	}
	return nil
}

var _ Handle = (*pluginHandle)(nil)

// The AsX helpers type-assert a loaded Handle back to its capability
// interface, mirroring the teacher's adapter.GetPlugin() accessors
// (LLMPluginAdapter.GetPlugin, DatabasePluginAdapter.GetPlugin, ...).

func AsAgentDriver(h Handle) (capability.AgentDriver, bool) {
	ph, ok := h.(*pluginHandle)
	if !ok {
		return nil, false
	}
	d, ok := ph.raw.(capability.AgentDriver)
	return d, ok
}

func AsSnapshotter(h Handle) (capability.Snapshotter, bool) {
	ph, ok := h.(*pluginHandle)
	if !ok {
		return nil, false
	}
	d, ok := ph.raw.(capability.Snapshotter)
	return d, ok
}

func AsVerifier(h Handle) (capability.Verifier, bool) {
	ph, ok := h.(*pluginHandle)
	if !ok {
		return nil, false
	}
	d, ok := ph.raw.(capability.Verifier)
	return d, ok
}

func AsFeedbackGenerator(h Handle) (capability.FeedbackGenerator, bool) {
	ph, ok := h.(*pluginHandle)
	if !ok {
		return nil, false
	}
	d, ok := ph.raw.(capability.FeedbackGenerator)
	return d, ok
}

func AsResultPersister(h Handle) (capability.ResultPersister, bool) {
	ph, ok := h.(*pluginHandle)
	if !ok {
		return nil, false
	}
	d, ok := ph.raw.(capability.ResultPersister)
	return d, ok
}
