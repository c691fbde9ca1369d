package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fl-sean03/agentgate/internal/capability"
)

// FileResultPersister writes agent-result.json and verification.json under
// <rootDir>/runs/<runId>/iterations/<n>/, the layout spec.md §6 names. Each
// file is written to a ".tmp" sibling and renamed into place so a reader
// never observes a partially written file.
type FileResultPersister struct {
	rootDir string
}

// NewFileResultPersister creates a FileResultPersister rooted at rootDir.
// rootDir is created on first write, not at construction time.
func NewFileResultPersister(rootDir string) (*FileResultPersister, error) {
	if rootDir == "" {
		return nil, ErrInvalidRoot
	}
	return &FileResultPersister{rootDir: rootDir}, nil
}

func (p *FileResultPersister) iterationDir(runID string, iteration int) string {
	return filepath.Join(p.rootDir, "runs", runID, "iterations", fmt.Sprintf("%d", iteration))
}

func (p *FileResultPersister) writeJSON(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persistence: create iteration dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal %s: %w", name, err)
	}

	path := filepath.Join(dir, name)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("persistence: write %s: %w", name, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("persistence: rename %s into place: %w", name, err)
	}
	return nil
}

// SaveAgentResult implements capability.ResultPersister.
func (p *FileResultPersister) SaveAgentResult(ctx context.Context, runID string, iteration int, result capability.AgentResult) error {
	return p.writeJSON(p.iterationDir(runID, iteration), "agent-result.json", result)
}

// SaveVerification implements capability.ResultPersister.
func (p *FileResultPersister) SaveVerification(ctx context.Context, runID string, iteration int, report capability.VerificationReport) error {
	return p.writeJSON(p.iterationDir(runID, iteration), "verification.json", report)
}

var _ capability.ResultPersister = (*FileResultPersister)(nil)
