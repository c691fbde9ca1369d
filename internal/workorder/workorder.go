// Package workorder defines the immutable WorkOrder accepted-request type
// and its nested value objects (spec.md §3).
//
// Grounded on the teacher's pkg/task/task.go Task/Status shape and
// pkg/config/types.go's config-struct-with-validate-method idiom: a plain
// struct built once via a constructor that validates, then treated as
// read-only for the rest of its life.
package workorder

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkspaceKind tags the variant of WorkspaceSource.
type WorkspaceKind string

const (
	WorkspaceLocalPath     WorkspaceKind = "local_path"
	WorkspaceGitRepo       WorkspaceKind = "git_repo"
	WorkspaceFreshTemplate WorkspaceKind = "fresh_template"
)

// WorkspaceSource is a tagged union over the three ways a workspace can be
// provisioned. Only the fields matching Kind are meaningful.
type WorkspaceSource struct {
	Kind WorkspaceKind

	// LocalPath is set when Kind == WorkspaceLocalPath.
	LocalPath string

	// GitRemote/GitRef/GitCommit are set when Kind == WorkspaceGitRepo.
	GitRemote string
	GitRef    string
	GitCommit string

	// TemplateName is set when Kind == WorkspaceFreshTemplate.
	TemplateName string
}

func (w WorkspaceSource) validate() error {
	switch w.Kind {
	case WorkspaceLocalPath:
		if w.LocalPath == "" {
			return fmt.Errorf("workspace source %q requires local_path", w.Kind)
		}
	case WorkspaceGitRepo:
		if w.GitRemote == "" {
			return fmt.Errorf("workspace source %q requires git_remote", w.Kind)
		}
	case WorkspaceFreshTemplate:
		if w.TemplateName == "" {
			return fmt.Errorf("workspace source %q requires template_name", w.Kind)
		}
	default:
		return fmt.Errorf("unknown workspace source kind %q", w.Kind)
	}
	return nil
}

// GatePlanSourceKind tags how a gate plan should be resolved (spec.md §6).
type GatePlanSourceKind string

const (
	GatePlanProfile    GatePlanSourceKind = "profile"
	GatePlanCIInferred GatePlanSourceKind = "ci-inferred"
	GatePlanAuto       GatePlanSourceKind = "auto"
	GatePlanDefault    GatePlanSourceKind = "default"
)

// GatePlanSource names which resolution strategy to use and, for the
// profile kind, where the profile lives.
type GatePlanSource struct {
	Kind        GatePlanSourceKind
	ProfileName string // meaningful when Kind == GatePlanProfile
}

// Limits bounds how far a Run is allowed to go.
type Limits struct {
	MaxIterations int
	MaxWallClock  time.Duration
}

// DefaultLimits mirrors spec.md §5's "default 5 minutes if absent" phase
// timeout framing, applied as a sane overall ceiling too.
func DefaultLimits() Limits {
	return Limits{MaxIterations: 10, MaxWallClock: 5 * time.Minute}
}

// Policies constrains what the agent driver is allowed to do.
type Policies struct {
	NetworkAllowed bool
	AllowedPaths   []string
	ForbiddenPaths []string
	MaxDiskBytes   int64
}

// WorkOrder is the immutable accepted request (spec.md §3). Construct with
// New; there are no exported setters, matching "immutable after acceptance".
type WorkOrder struct {
	id             string
	taskPrompt     string
	workspace      WorkspaceSource
	agentKind      string
	limits         Limits
	gatePlanSource GatePlanSource
	policies       Policies
	acceptedAt     time.Time
}

// Params bundles the fields New needs; it is not itself immutable, so
// callers can build it incrementally before calling New.
type Params struct {
	TaskPrompt     string
	Workspace      WorkspaceSource
	AgentKind      string
	Limits         Limits
	GatePlanSource GatePlanSource
	Policies       Policies
}

// New validates p and returns an immutable WorkOrder, or a PhaseError-free
// structural error (the caller maps this to capability.ErrValidation).
func New(p Params) (*WorkOrder, error) {
	if p.TaskPrompt == "" {
		return nil, fmt.Errorf("task prompt is required")
	}
	if err := p.Workspace.validate(); err != nil {
		return nil, err
	}
	if p.AgentKind == "" {
		return nil, fmt.Errorf("agent kind is required")
	}
	if p.Limits.MaxIterations <= 0 {
		return nil, fmt.Errorf("max iterations must be positive")
	}
	if p.Limits.MaxWallClock <= 0 {
		return nil, fmt.Errorf("max wall clock must be positive")
	}
	if p.GatePlanSource.Kind == "" {
		p.GatePlanSource.Kind = GatePlanAuto
	}
	if p.GatePlanSource.Kind == GatePlanProfile && p.GatePlanSource.ProfileName == "" {
		return nil, fmt.Errorf("gate plan source %q requires a profile name", p.GatePlanSource.Kind)
	}

	return &WorkOrder{
		id:             uuid.NewString(),
		taskPrompt:     p.TaskPrompt,
		workspace:      p.Workspace,
		agentKind:      p.AgentKind,
		limits:         p.Limits,
		gatePlanSource: p.GatePlanSource,
		policies:       p.Policies,
		acceptedAt:     time.Now(),
	}, nil
}

func (w *WorkOrder) ID() string                       { return w.id }
func (w *WorkOrder) TaskPrompt() string                { return w.taskPrompt }
func (w *WorkOrder) Workspace() WorkspaceSource         { return w.workspace }
func (w *WorkOrder) AgentKind() string                  { return w.agentKind }
func (w *WorkOrder) Limits() Limits                     { return w.limits }
func (w *WorkOrder) GatePlanSource() GatePlanSource      { return w.gatePlanSource }
func (w *WorkOrder) Policies() Policies                 { return w.policies }
func (w *WorkOrder) AcceptedAt() time.Time              { return w.acceptedAt }
