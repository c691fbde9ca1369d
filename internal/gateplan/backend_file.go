package gateplan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileBackend reads a profile document from a local file and watches its
// containing directory for changes, grounded almost line-for-line on the
// teacher's pkg/config/provider.FileProvider (same debounced fsnotify
// watch loop, same "watch the directory, filter by basename" trick since
// some filesystems don't support watching a single file directly).
type FileBackend struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewFileBackend builds a backend reading path.
func NewFileBackend(path string) (*FileBackend, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve profile path: %w", err)
	}
	return &FileBackend{path: absPath}, nil
}

func (b *FileBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return nil, fmt.Errorf("read profile file %s: %w", b.path, err)
	}
	return data, nil
}

func (b *FileBackend) Watch(ctx context.Context) (<-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("backend is closed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create profile file watcher: %w", err)
	}
	b.watcher = watcher

	dir := filepath.Dir(b.path)
	base := filepath.Base(b.path)

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch profile directory %s: %w", dir, err)
	}

	ch := make(chan struct{}, 1)
	go b.watchLoop(ctx, watcher, base, ch)
	return ch, nil
}

func (b *FileBackend) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, base string, ch chan<- struct{}) {
	defer close(ch)
	defer watcher.Close()

	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, func() {
					select {
					case ch <- struct{}{}:
					default:
					}
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("gate plan file watcher error", "error", err, "path", b.path)
		}
	}
}

func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.watcher != nil {
		err := b.watcher.Close()
		b.watcher = nil
		return err
	}
	return nil
}

var _ Backend = (*FileBackend)(nil)
