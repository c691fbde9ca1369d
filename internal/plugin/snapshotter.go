package plugin

import (
	"context"
	"net/rpc"

	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/fl-sean03/agentgate/internal/capability"
)

type SnapshotterPlugin struct {
	Impl capability.Snapshotter
}

func (p *SnapshotterPlugin) Server(*hcplugin.MuxBroker) (any, error) {
	return &snapshotterRPCServer{impl: p.Impl}, nil
}

func (p *SnapshotterPlugin) Client(b *hcplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &snapshotterRPCClient{client: c}, nil
}

var _ hcplugin.Plugin = (*SnapshotterPlugin)(nil)

type snapshotterRPCServer struct {
	impl capability.Snapshotter
}

type captureBeforeArgs struct {
	WorkspacePath string
}

type captureArgs struct {
	WorkspacePath string
	Before        capability.BeforeState
	RunID         string
	Iteration     int
	Prompt        string
}

func (s *snapshotterRPCServer) CaptureBefore(args captureBeforeArgs, reply *capability.BeforeState) error {
	before, err := s.impl.CaptureBefore(context.Background(), args.WorkspacePath)
	if err != nil {
		return err
	}
	*reply = before
	return nil
}

func (s *snapshotterRPCServer) Capture(args captureArgs, reply *capability.Snapshot) error {
	snap, err := s.impl.Capture(context.Background(), args.WorkspacePath, args.Before, args.RunID, args.Iteration, args.Prompt)
	if err != nil {
		return err
	}
	*reply = snap
	return nil
}

type snapshotterRPCClient struct {
	client *rpc.Client
}

func (c *snapshotterRPCClient) CaptureBefore(ctx context.Context, workspacePath string) (capability.BeforeState, error) {
	var reply capability.BeforeState
	if err := c.client.Call("Plugin.CaptureBefore", captureBeforeArgs{WorkspacePath: workspacePath}, &reply); err != nil {
		return capability.BeforeState{}, err
	}
	return reply, nil
}

func (c *snapshotterRPCClient) Capture(ctx context.Context, workspacePath string, before capability.BeforeState, runID string, iteration int, prompt string) (capability.Snapshot, error) {
	args := captureArgs{WorkspacePath: workspacePath, Before: before, RunID: runID, Iteration: iteration, Prompt: prompt}
	var reply capability.Snapshot
	if err := c.client.Call("Plugin.Capture", args, &reply); err != nil {
		return capability.Snapshot{}, err
	}
	return reply, nil
}

var _ capability.Snapshotter = (*snapshotterRPCClient)(nil)
