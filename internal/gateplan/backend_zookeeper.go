package gateplan

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
)

// ZookeeperBackend reads a profile document from a ZooKeeper znode and
// watches it for changes, grounded on the teacher's
// pkg/config.ZookeeperProvider (same zk.Connect/zk.GetW shape), adapted
// to this package's Backend interface (error-returning Watch channel
// instead of a callback).
type ZookeeperBackend struct {
	conn *zk.Conn
	path string
}

func NewZookeeperBackend(endpoints []string, path string) (*ZookeeperBackend, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("zookeeper endpoints are required")
	}
	if path == "" {
		return nil, fmt.Errorf("zookeeper path is required")
	}
	conn, _, err := zk.Connect(endpoints, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to zookeeper: %w", err)
	}
	return &ZookeeperBackend{conn: conn, path: path}, nil
}

func (b *ZookeeperBackend) Load(ctx context.Context) ([]byte, error) {
	data, _, err := b.conn.Get(b.path)
	if err != nil {
		return nil, fmt.Errorf("read zookeeper path %s: %w", b.path, err)
	}
	return data, nil
}

func (b *ZookeeperBackend) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for {
			_, _, eventCh, err := b.conn.GetW(b.path)
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				switch event.Type {
				case zk.EventNodeDataChanged:
					select {
					case ch <- struct{}{}:
					default:
					}
				case zk.EventNodeDeleted, zk.EventNotWatching:
					return
				}
			}
		}
	}()
	return ch, nil
}

func (b *ZookeeperBackend) Close() error {
	if b.conn != nil {
		b.conn.Close()
	}
	return nil
}

var _ Backend = (*ZookeeperBackend)(nil)
