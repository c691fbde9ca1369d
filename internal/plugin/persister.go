package plugin

import (
	"context"
	"net/rpc"

	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/fl-sean03/agentgate/internal/capability"
)

type ResultPersisterPlugin struct {
	Impl capability.ResultPersister
}

func (p *ResultPersisterPlugin) Server(*hcplugin.MuxBroker) (any, error) {
	return &resultPersisterRPCServer{impl: p.Impl}, nil
}

func (p *ResultPersisterPlugin) Client(b *hcplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &resultPersisterRPCClient{client: c}, nil
}

var _ hcplugin.Plugin = (*ResultPersisterPlugin)(nil)

type resultPersisterRPCServer struct {
	impl capability.ResultPersister
}

type saveAgentResultArgs struct {
	RunID     string
	Iteration int
	Result    capability.AgentResult
}

type saveVerificationArgs struct {
	RunID     string
	Iteration int
	Report    capability.VerificationReport
}

func (s *resultPersisterRPCServer) SaveAgentResult(args saveAgentResultArgs, reply *struct{}) error {
	return s.impl.SaveAgentResult(context.Background(), args.RunID, args.Iteration, args.Result)
}

func (s *resultPersisterRPCServer) SaveVerification(args saveVerificationArgs, reply *struct{}) error {
	return s.impl.SaveVerification(context.Background(), args.RunID, args.Iteration, args.Report)
}

type resultPersisterRPCClient struct {
	client *rpc.Client
}

func (c *resultPersisterRPCClient) SaveAgentResult(ctx context.Context, runID string, iteration int, result capability.AgentResult) error {
	args := saveAgentResultArgs{RunID: runID, Iteration: iteration, Result: result}
	return c.client.Call("Plugin.SaveAgentResult", args, &struct{}{})
}

func (c *resultPersisterRPCClient) SaveVerification(ctx context.Context, runID string, iteration int, report capability.VerificationReport) error {
	args := saveVerificationArgs{RunID: runID, Iteration: iteration, Report: report}
	return c.client.Call("Plugin.SaveVerification", args, &struct{}{})
}

var _ capability.ResultPersister = (*resultPersisterRPCClient)(nil)
