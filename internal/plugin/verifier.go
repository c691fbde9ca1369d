package plugin

import (
	"context"
	"net/rpc"

	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/fl-sean03/agentgate/internal/capability"
)

type VerifierPlugin struct {
	Impl capability.Verifier
}

func (p *VerifierPlugin) Server(*hcplugin.MuxBroker) (any, error) {
	return &verifierRPCServer{impl: p.Impl}, nil
}

func (p *VerifierPlugin) Client(b *hcplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &verifierRPCClient{client: c}, nil
}

var _ hcplugin.Plugin = (*VerifierPlugin)(nil)

type verifierRPCServer struct {
	impl capability.Verifier
}

func (s *verifierRPCServer) Verify(args capability.VerifyRequest, reply *capability.VerificationReport) error {
	report, err := s.impl.Verify(context.Background(), args)
	if err != nil {
		return err
	}
	*reply = report
	return nil
}

type verifierRPCClient struct {
	client *rpc.Client
}

func (c *verifierRPCClient) Verify(ctx context.Context, req capability.VerifyRequest) (capability.VerificationReport, error) {
	var reply capability.VerificationReport
	if err := c.client.Call("Plugin.Verify", req, &reply); err != nil {
		return capability.VerificationReport{}, err
	}
	return reply, nil
}

var _ capability.Verifier = (*verifierRPCClient)(nil)
