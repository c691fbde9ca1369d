package plugin

import (
	"context"
	"net/rpc"

	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/fl-sean03/agentgate/internal/capability"
)

type FeedbackGeneratorPlugin struct {
	Impl capability.FeedbackGenerator
}

func (p *FeedbackGeneratorPlugin) Server(*hcplugin.MuxBroker) (any, error) {
	return &feedbackRPCServer{impl: p.Impl}, nil
}

func (p *FeedbackGeneratorPlugin) Client(b *hcplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &feedbackRPCClient{client: c}, nil
}

var _ hcplugin.Plugin = (*FeedbackGeneratorPlugin)(nil)

type feedbackRPCServer struct {
	impl capability.FeedbackGenerator
}

type generateFeedbackArgs struct {
	Snapshot capability.Snapshot
	Report   capability.VerificationReport
	GatePlan any
	FCtx     capability.FeedbackContext
}

func (s *feedbackRPCServer) Generate(args generateFeedbackArgs, reply *string) error {
	feedback, err := s.impl.Generate(context.Background(), args.Snapshot, args.Report, args.GatePlan, args.FCtx)
	if err != nil {
		return err
	}
	*reply = feedback
	return nil
}

type feedbackRPCClient struct {
	client *rpc.Client
}

func (c *feedbackRPCClient) Generate(ctx context.Context, snapshot capability.Snapshot, report capability.VerificationReport, gatePlan any, fctx capability.FeedbackContext) (string, error) {
	args := generateFeedbackArgs{Snapshot: snapshot, Report: report, GatePlan: gatePlan, FCtx: fctx}
	var reply string
	if err := c.client.Call("Plugin.Generate", args, &reply); err != nil {
		return "", err
	}
	return reply, nil
}

var _ capability.FeedbackGenerator = (*feedbackRPCClient)(nil)
