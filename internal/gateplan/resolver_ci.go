package gateplan

import (
	"context"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fl-sean03/agentgate/internal/workorder"
)

// ciMarkers is the shape extracted from a recognized CI config file: just
// enough to hand the Verifier a hint, never the full CI DSL (§4.10: "out
// of scope to parse the full CI DSL").
type ciMarkers struct {
	Source string   `yaml:"source"`
	Jobs   []string `yaml:"jobs"`
}

// CIInferredResolver looks for a recognized CI config file in a workspace
// and extracts a best-effort gate plan shape from it (top-level job/stage
// names only), matching spec.md's framing of gate-plan semantics as
// external to the core.
type CIInferredResolver struct {
	WorkspacePath string
}

func NewCIInferredResolver(workspacePath string) *CIInferredResolver {
	return &CIInferredResolver{WorkspacePath: workspacePath}
}

func (r *CIInferredResolver) Resolve(ctx context.Context, source workorder.GatePlanSource) (Plan, error) {
	if markers, path, ok := r.tryGitHubActions(); ok {
		return Plan{Source: workorder.GatePlanCIInferred, Profile: path, Data: markers}, nil
	}
	if markers, path, ok := r.tryGitLabCI(); ok {
		return Plan{Source: workorder.GatePlanCIInferred, Profile: path, Data: markers}, nil
	}
	return Plan{}, ErrNoCIConfig
}

func (r *CIInferredResolver) tryGitHubActions() (ciMarkers, string, bool) {
	dir := filepath.Join(r.WorkspacePath, ".github", "workflows")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ciMarkers{}, "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ".yml" && filepath.Ext(name) != ".yaml" {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		jobs, ok := extractTopLevelKeys(data, "jobs")
		if !ok {
			continue
		}
		return ciMarkers{Source: path, Jobs: jobs}, path, true
	}
	return ciMarkers{}, "", false
}

func (r *CIInferredResolver) tryGitLabCI() (ciMarkers, string, bool) {
	path := filepath.Join(r.WorkspacePath, ".gitlab-ci.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		return ciMarkers{}, "", false
	}
	jobs, ok := extractTopLevelKeys(data, "")
	if !ok {
		return ciMarkers{}, "", false
	}
	return ciMarkers{Source: path, Jobs: jobs}, path, true
}

// extractTopLevelKeys returns the names under section (or the document's
// own top-level keys when section is "") in a YAML document — enough to
// name the stages/jobs a CI pipeline declares, without interpreting any of
// their contents.
func extractTopLevelKeys(data []byte, section string) ([]string, bool) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, false
	}

	target := doc
	if section != "" {
		sub, ok := doc[section].(map[string]any)
		if !ok {
			return nil, false
		}
		target = sub
	}

	keys := make([]string, 0, len(target))
	for k := range target {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, false
	}
	return keys, true
}

var _ Resolver = (*CIInferredResolver)(nil)
