package plugin

import (
	"fmt"
	"os/exec"

	hcplugin "github.com/hashicorp/go-plugin"
)

// handshakeConfig is shared by every AgentGate plugin kind, mirroring the
// teacher's plugins/grpc/loader.go handshakeConfig. A mismatched magic
// cookie means the subprocess wasn't launched as an AgentGate plugin at
// all (protects against accidentally exec'ing an unrelated binary).
var handshakeConfig = hcplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "AGENTGATE_PLUGIN",
	MagicCookieValue: "agentgate_plugin_v1",
}

// clientPluginMap returns the hashicorp/go-plugin plugin set the host side
// needs to Dispense one Kind. Unlike the teacher's gRPC loader, which
// dispatches on AllowedProtocols == plugin.ProtocolGRPC, every entry here
// speaks net/rpc — only the Dispense name varies per Kind. Impl is left
// nil: the host only ever calls a dispensed Plugin's Client method, never
// its Server method (that half is for whoever builds the plugin binary).
func clientPluginMap(kind Kind) (map[string]hcplugin.Plugin, error) {
	switch kind {
	case KindAgentDriver:
		return map[string]hcplugin.Plugin{string(kind): &AgentDriverPlugin{}}, nil
	case KindSnapshotter:
		return map[string]hcplugin.Plugin{string(kind): &SnapshotterPlugin{}}, nil
	case KindVerifier:
		return map[string]hcplugin.Plugin{string(kind): &VerifierPlugin{}}, nil
	case KindFeedbackGenerator:
		return map[string]hcplugin.Plugin{string(kind): &FeedbackGeneratorPlugin{}}, nil
	case KindResultPersister:
		return map[string]hcplugin.Plugin{string(kind): &ResultPersisterPlugin{}}, nil
	default:
		return nil, ErrUnsupportedKind
	}
}

// validatePath checks the plugin binary exists and is runnable, mirroring
// the teacher's grpc.GRPCLoader.Validate.
func validatePath(path string) error {
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("plugin binary not found or not executable: %s: %w", path, err)
	}
	return nil
}
