package plugin

import "encoding/gob"

// AgentRequest.Constraints, VerifyRequest.GatePlan and the gatePlan argument
// of FeedbackGenerator.Generate are typed `any` in internal/capability, since the core treats
// them as opaque. net/rpc encodes arguments with encoding/gob by default,
// which requires concrete types stored behind an interface to be
// registered ahead of time. These are the shapes a YAML/JSON-decoded
// config or gate plan blob actually takes.
func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register("")
	gob.Register(float64(0))
	gob.Register(false)
}
