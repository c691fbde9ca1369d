package gateplan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackendLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strict.yaml")
	require.NoError(t, os.WriteFile(path, []byte("levels: [L0]"), 0o644))

	b, err := NewFileBackend(path)
	require.NoError(t, err)
	defer b.Close()

	data, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "levels: [L0]", string(data))
}

func TestFileBackendWatchSignalsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strict.yaml")
	require.NoError(t, os.WriteFile(path, []byte("levels: [L0]"), 0o644))

	b, err := NewFileBackend(path)
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := b.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("levels: [L0, L1]"), 0o644))

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification after writing the watched file")
	}
}
