package plugin

import (
	"context"
	"fmt"
	"os/exec"

	hclog "github.com/hashicorp/go-hclog"
	hcplugin "github.com/hashicorp/go-plugin"
)

// RPCLoader loads AgentGate capability plugins as hashicorp/go-plugin
// subprocesses over the net/rpc transport. Grounded on the teacher's
// plugins/grpc.GRPCLoader, with AllowedProtocols swapped from
// plugin.ProtocolGRPC to plugin.ProtocolNetRPC and Dispense targeting a
// plain Go-interface Plugin implementation (agentdriver.go, verifier.go,
// ...) instead of a *_grpc.pb.go-generated stub.
type RPCLoader struct {
	logger hclog.Logger
}

// NewRPCLoader builds an RPCLoader, logging through hashicorp/go-hclog the
// way the teacher's GRPCLoader does.
func NewRPCLoader() *RPCLoader {
	return &RPCLoader{
		logger: hclog.New(&hclog.LoggerOptions{
			Name:  "agentgate-plugin",
			Level: hclog.Info,
		}),
	}
}

func (l *RPCLoader) Load(ctx context.Context, cfg Config) (Handle, error) {
	if cfg.Manifest == nil {
		return nil, NewError(cfg.Name, "load", ErrInvalidManifest)
	}
	if err := validatePath(cfg.Path); err != nil {
		return nil, NewError(cfg.Name, "load", err)
	}

	pluginSet, err := clientPluginMap(cfg.Manifest.Kind)
	if err != nil {
		return nil, NewError(cfg.Name, "load", err)
	}

	clientConfig := &hcplugin.ClientConfig{
		HandshakeConfig:  handshakeConfig,
		Plugins:          pluginSet,
		Cmd:              exec.Command(cfg.Path),
		Logger:           l.logger,
		AllowedProtocols: []hcplugin.Protocol{hcplugin.ProtocolNetRPC},
	}
	client := hcplugin.NewClient(clientConfig)

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, NewError(cfg.Name, "load", fmt.Errorf("dial plugin: %w", err))
	}

	raw, err := rpcClient.Dispense(string(cfg.Manifest.Kind))
	if err != nil {
		client.Kill()
		return nil, NewError(cfg.Name, "load", fmt.Errorf("dispense %s: %w", cfg.Manifest.Kind, err))
	}

	return &pluginHandle{
		manifest:  cfg.Manifest,
		hcClient:  client,
		rpcClient: rpcClient,
		raw:       raw,
		status:    StatusReady,
	}, nil
}

func (l *RPCLoader) Unload(ctx context.Context, h Handle) error {
	ph, ok := h.(*pluginHandle)
	if !ok {
		return fmt.Errorf("unload: handle not produced by RPCLoader")
	}
	ph.hcClient.Kill()
	ph.status = StatusShutdown
	return nil
}

var _ Loader = (*RPCLoader)(nil)
