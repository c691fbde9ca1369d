package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandle and fakeLoader let registry_test.go exercise Registry's
// bookkeeping and hook sequencing without spawning a real subprocess
// (loader_test.go covers the real RPCLoader round trip separately).
type fakeHandle struct {
	manifest *Manifest
	status   Status
	shutdown bool
	healthy  bool
}

func (h *fakeHandle) Initialize(ctx context.Context, config map[string]any) error {
	h.status = StatusReady
	return nil
}
func (h *fakeHandle) Shutdown(ctx context.Context) error {
	h.shutdown = true
	h.status = StatusShutdown
	return nil
}
func (h *fakeHandle) Manifest() *Manifest { return h.manifest }
func (h *fakeHandle) Status() Status      { return h.status }
func (h *fakeHandle) Health(ctx context.Context) error {
	if !h.healthy {
		h.status = StatusCrashed
		return assert.AnError
	}
	return nil
}

type fakeLoader struct {
	unloaded []string
}

func (l *fakeLoader) Load(ctx context.Context, cfg Config) (Handle, error) {
	return &fakeHandle{manifest: cfg.Manifest, status: StatusLoading, healthy: true}, nil
}

func (l *fakeLoader) Unload(ctx context.Context, h Handle) error {
	fh := h.(*fakeHandle)
	l.unloaded = append(l.unloaded, fh.manifest.Name)
	return nil
}

func TestRegistryLoadRegistersAndTracksByKind(t *testing.T) {
	loader := &fakeLoader{}
	reg := NewRegistry(loader, RegistryConfig{})

	h, err := reg.Load(context.Background(), Config{
		Name:     "driver-a",
		Path:     "/bin/true",
		Manifest: &Manifest{Name: "driver-a", Kind: KindAgentDriver},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusReady, h.Status())

	got, ok := reg.Get("driver-a")
	require.True(t, ok)
	assert.Same(t, h, got)

	byKind := reg.ByKind(KindAgentDriver)
	require.Len(t, byKind, 1)
	assert.Equal(t, "driver-a", byKind[0].Manifest().Name)
}

func TestRegistryUnloadRunsHooksAndUntracks(t *testing.T) {
	loader := &fakeLoader{}
	var beforeUnloadCalled, afterUnloadCalled bool
	reg := NewRegistry(loader, RegistryConfig{
		LifecycleHooks: LifecycleHooks{
			BeforeUnload: func(ctx context.Context, h Handle) error { beforeUnloadCalled = true; return nil },
			AfterUnload:  func(ctx context.Context, name string) error { afterUnloadCalled = true; return nil },
		},
	})

	_, err := reg.Load(context.Background(), Config{
		Name:     "driver-a",
		Manifest: &Manifest{Name: "driver-a", Kind: KindAgentDriver},
	})
	require.NoError(t, err)

	require.NoError(t, reg.Unload(context.Background(), "driver-a"))
	assert.True(t, beforeUnloadCalled)
	assert.True(t, afterUnloadCalled)
	assert.Contains(t, loader.unloaded, "driver-a")
	assert.Empty(t, reg.ByKind(KindAgentDriver))

	_, ok := reg.Get("driver-a")
	assert.False(t, ok)
}

func TestRegistryUnloadUnknownPluginErrors(t *testing.T) {
	reg := NewRegistry(&fakeLoader{}, RegistryConfig{})
	err := reg.Unload(context.Background(), "nope")
	assert.Error(t, err)
}

func TestRegistryPerformHealthChecksFiresOnCrashHook(t *testing.T) {
	loader := &fakeLoader{}
	crashed := make(chan string, 1)
	reg := NewRegistry(loader, RegistryConfig{
		LifecycleHooks: LifecycleHooks{
			OnCrash: func(ctx context.Context, h Handle) { crashed <- h.Manifest().Name },
		},
	})

	h, err := reg.Load(context.Background(), Config{
		Name:     "flaky",
		Manifest: &Manifest{Name: "flaky", Kind: KindVerifier},
	})
	require.NoError(t, err)
	h.(*fakeHandle).healthy = false

	reg.performHealthChecks(context.Background())

	select {
	case name := <-crashed:
		assert.Equal(t, "flaky", name)
	default:
		t.Fatal("expected OnCrash hook to fire")
	}
}

func TestRegistryShutdownUnloadsEverything(t *testing.T) {
	loader := &fakeLoader{}
	reg := NewRegistry(loader, RegistryConfig{})

	_, err := reg.Load(context.Background(), Config{Name: "a", Manifest: &Manifest{Name: "a", Kind: KindAgentDriver}})
	require.NoError(t, err)
	_, err = reg.Load(context.Background(), Config{Name: "b", Manifest: &Manifest{Name: "b", Kind: KindVerifier}})
	require.NoError(t, err)

	require.NoError(t, reg.Shutdown(context.Background()))
	assert.ElementsMatch(t, []string{"a", "b"}, loader.unloaded)
	assert.Equal(t, 0, reg.Count())
}
