package workorder

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// schemaParams mirrors Params' shape with JSON-schema-friendly struct tags;
// Params itself is kept free of schema tags so it stays a plain internal
// wiring type. Submission-time structural validation (spec.md §7's
// validation_error) checks a WorkOrder request against part of this schema
// (see ValidateSubmission) before Go-level field validation runs in New; the
// schema itself gives callers outside this
// process (e.g. a queueing layer) a machine-readable contract to validate
// against independently.
type schemaParams struct {
	TaskPrompt string `json:"task_prompt" jsonschema:"required,minLength=1"`
	Workspace  struct {
		Kind         string `json:"kind" jsonschema:"required,enum=local_path,enum=git_repo,enum=fresh_template"`
		LocalPath    string `json:"local_path,omitempty"`
		GitRemote    string `json:"git_remote,omitempty"`
		GitRef       string `json:"git_ref,omitempty"`
		GitCommit    string `json:"git_commit,omitempty"`
		TemplateName string `json:"template_name,omitempty"`
	} `json:"workspace" jsonschema:"required"`
	AgentKind string `json:"agent_kind" jsonschema:"required,minLength=1"`
	Limits    struct {
		MaxIterations int   `json:"max_iterations" jsonschema:"required,minimum=1"`
		MaxWallClockMs int64 `json:"max_wall_clock_ms" jsonschema:"required,minimum=1"`
	} `json:"limits" jsonschema:"required"`
	GatePlanSource struct {
		Kind        string `json:"kind" jsonschema:"required,enum=profile,enum=ci-inferred,enum=auto,enum=default"`
		ProfileName string `json:"profile_name,omitempty"`
	} `json:"gate_plan_source" jsonschema:"required"`
}

var submissionSchema = jsonschema.Reflect(&schemaParams{})

// SubmissionSchema returns the JSON schema a caller can validate a raw work
// order submission against before it ever reaches New.
func SubmissionSchema() *jsonschema.Schema { return submissionSchema }

// ValidateSubmission checks raw (typically the decoded body of an
// ExecutionInput) for the structural shape SubmissionSchema describes: it
// requires task_prompt, workspace.kind, agent_kind and gate_plan_source.kind
// to be non-empty and limits.max_iterations to be positive. It does not
// check enum values or limits.max_wall_clock_ms. It does not replace New's semantic validation; it exists so malformed input
// fails fast with capability.ErrValidation before any domain logic runs.
func ValidateSubmission(raw map[string]any) error {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("submission is not JSON-representable: %w", err)
	}

	var decoded schemaParams
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return fmt.Errorf("submission does not match work order shape: %w", err)
	}
	if decoded.TaskPrompt == "" {
		return fmt.Errorf("task_prompt is required")
	}
	if decoded.Workspace.Kind == "" {
		return fmt.Errorf("workspace.kind is required")
	}
	if decoded.AgentKind == "" {
		return fmt.Errorf("agent_kind is required")
	}
	if decoded.Limits.MaxIterations <= 0 {
		return fmt.Errorf("limits.max_iterations must be positive")
	}
	if decoded.GatePlanSource.Kind == "" {
		return fmt.Errorf("gate_plan_source.kind is required")
	}
	return nil
}
