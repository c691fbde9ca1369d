package gateplan

import (
	"context"
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

// ConsulBackend reads a profile document from a single Consul KV key and
// watches it via Consul's blocking-query mechanism, mirroring the
// teacher's pkg/config multi-backend provider loader generalized from
// "remote config" to "remote gate plan profile".
type ConsulBackend struct {
	client *consulapi.Client
	key    string
}

// NewConsulBackend dials addr and targets key (a single KV entry holding
// the whole profile document).
func NewConsulBackend(addr, key string) (*ConsulBackend, error) {
	if key == "" {
		return nil, fmt.Errorf("consul key is required")
	}
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	return &ConsulBackend{client: client, key: key}, nil
}

func (b *ConsulBackend) Load(ctx context.Context) ([]byte, error) {
	pair, _, err := b.client.KV().Get(b.key, (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("read consul key %s: %w", b.key, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("%w: consul key %s", ErrProfileNotFound, b.key)
	}
	return pair.Value, nil
}

// Watch blocks on Consul's wait-index mechanism, signaling once the key's
// ModifyIndex advances.
func (b *ConsulBackend) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		var lastIndex uint64
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			pair, meta, err := b.client.KV().Get(b.key, (&consulapi.QueryOptions{
				WaitIndex: lastIndex,
			}).WithContext(ctx))
			if err != nil {
				return
			}
			if meta != nil && meta.LastIndex != lastIndex {
				if lastIndex != 0 && pair != nil {
					select {
					case ch <- struct{}{}:
					default:
					}
				}
				lastIndex = meta.LastIndex
			}
		}
	}()
	return ch, nil
}

func (b *ConsulBackend) Close() error { return nil }

var _ Backend = (*ConsulBackend)(nil)
