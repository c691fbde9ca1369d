package gateplan

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdBackend reads a profile document from a single etcd key and watches
// it via etcd's native Watch API, completing the trio of remote profile
// stores alongside ConsulBackend and ZookeeperBackend.
type EtcdBackend struct {
	client *clientv3.Client
	key    string
}

func NewEtcdBackend(endpoints []string, key string) (*EtcdBackend, error) {
	if key == "" {
		return nil, fmt.Errorf("etcd key is required")
	}
	client, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, fmt.Errorf("create etcd client: %w", err)
	}
	return &EtcdBackend{client: client, key: key}, nil
}

func (b *EtcdBackend) Load(ctx context.Context) ([]byte, error) {
	resp, err := b.client.Get(ctx, b.key)
	if err != nil {
		return nil, fmt.Errorf("read etcd key %s: %w", b.key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("%w: etcd key %s", ErrProfileNotFound, b.key)
	}
	return resp.Kvs[0].Value, nil
}

func (b *EtcdBackend) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	watchCh := b.client.Watch(ctx, b.key)
	go func() {
		defer close(ch)
		for resp := range watchCh {
			if resp.Err() != nil {
				return
			}
			if len(resp.Events) > 0 {
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch, nil
}

func (b *EtcdBackend) Close() error {
	return b.client.Close()
}

var _ Backend = (*EtcdBackend)(nil)
