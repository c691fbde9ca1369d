package plugin

import (
	"context"
	"net/rpc"

	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/fl-sean03/agentgate/internal/capability"
)

// AgentDriverPlugin implements hashicorp/go-plugin's plugin.Plugin over
// net/rpc for internal/capability.AgentDriver, mirroring the shape of the
// teacher's grpc.LLMPluginAdapter but without a codegen'd *_grpc.pb.go
// stub: the wire types below are plain Go structs, encoded with
// encoding/gob the way every net/rpc plugin.Plugin implementation is.
type AgentDriverPlugin struct {
	Impl capability.AgentDriver // set only when serving; nil on the host side
}

func (p *AgentDriverPlugin) Server(*hcplugin.MuxBroker) (any, error) {
	return &agentDriverRPCServer{impl: p.Impl}, nil
}

func (p *AgentDriverPlugin) Client(b *hcplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &agentDriverRPCClient{client: c}, nil
}

var _ hcplugin.Plugin = (*AgentDriverPlugin)(nil)

// --- server half: runs inside the plugin subprocess, wraps Impl ---

type agentDriverRPCServer struct {
	impl capability.AgentDriver
}

func (s *agentDriverRPCServer) Execute(args capability.AgentRequest, reply *capability.AgentResult) error {
	result, err := s.impl.Execute(context.Background(), args)
	if err != nil {
		return err
	}
	*reply = result
	return nil
}

// --- client half: runs in the host process, dials the subprocess ---

type agentDriverRPCClient struct {
	client *rpc.Client
}

// Execute satisfies capability.AgentDriver. net/rpc calls are synchronous
// and carry no context, so ctx cancellation is not propagated to the
// subprocess call in flight — a known simplification of the net/rpc
// transport versus the teacher's gRPC one, documented in DESIGN.md.
func (c *agentDriverRPCClient) Execute(ctx context.Context, req capability.AgentRequest) (capability.AgentResult, error) {
	var reply capability.AgentResult
	if err := c.client.Call("Plugin.Execute", req, &reply); err != nil {
		return capability.AgentResult{}, err
	}
	return reply, nil
}

var _ capability.AgentDriver = (*agentDriverRPCClient)(nil)
