package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fl-sean03/agentgate/internal/capability"
)

const (
	createIterationArtifactsTableSQL = `
CREATE TABLE IF NOT EXISTS agentgate_iteration_artifacts (
    run_id VARCHAR(255) NOT NULL,
    iteration INTEGER NOT NULL,
    agent_result_json TEXT,
    verification_json TEXT,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (run_id, iteration)
)`

	createIterationArtifactsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_agentgate_iteration_artifacts_run_id ON agentgate_iteration_artifacts(run_id)`
)

// SQLResultPersister implements capability.ResultPersister against a shared
// database/sql connection, storing each iteration's agent result and
// verification report as JSON columns keyed by (runID, iteration). One row
// per iteration is upserted twice: once for the agent result (available
// before verification runs) and once for the verification report.
//
// Supports the same three dialects as the teacher's SQLTaskStore: sqlite,
// postgres, mysql. The db connection should be shared with any other store
// using the same database to avoid SQLite "database is locked" errors.
type SQLResultPersister struct {
	db      *sql.DB
	dialect string
}

// NewSQLResultPersister creates a SQLResultPersister and ensures its table
// exists. dialect is one of "sqlite" (or "sqlite3"), "postgres", "mysql".
func NewSQLResultPersister(db *sql.DB, dialect string) (*SQLResultPersister, error) {
	if db == nil {
		return nil, fmt.Errorf("persistence: database connection is required")
	}

	normalized := dialect
	if dialect == "sqlite3" {
		normalized = "sqlite"
	}
	switch normalized {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("persistence: unsupported dialect %q (supported: postgres, mysql, sqlite)", dialect)
	}

	p := &SQLResultPersister{db: db, dialect: normalized}
	if err := p.initSchema(); err != nil {
		return nil, fmt.Errorf("persistence: init schema: %w", err)
	}
	return p, nil
}

func (p *SQLResultPersister) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := p.db.ExecContext(ctx, createIterationArtifactsTableSQL); err != nil {
		return fmt.Errorf("create agentgate_iteration_artifacts table: %w", err)
	}
	// MySQL has no CREATE INDEX IF NOT EXISTS; there the (run_id, iteration)
	// primary key already serves run_id lookups.
	if p.dialect == "mysql" {
		return nil
	}
	if _, err := p.db.ExecContext(ctx, createIterationArtifactsIndexSQL); err != nil {
		return fmt.Errorf("create run_id index: %w", err)
	}
	return nil
}

func (p *SQLResultPersister) upsertColumn(ctx context.Context, runID string, iteration int, column string, payload []byte) error {
	now := time.Now()

	var query string
	var args []any
	switch p.dialect {
	case "postgres":
		query = fmt.Sprintf(`
INSERT INTO agentgate_iteration_artifacts (run_id, iteration, %s, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (run_id, iteration) DO UPDATE SET
    %s = EXCLUDED.%s,
    updated_at = EXCLUDED.updated_at
`, column, column, column)
		args = []any{runID, iteration, string(payload), now}
	case "mysql":
		query = fmt.Sprintf(`
INSERT INTO agentgate_iteration_artifacts (run_id, iteration, %s, updated_at)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    %s = VALUES(%s),
    updated_at = VALUES(updated_at)
`, column, column, column)
		args = []any{runID, iteration, string(payload), now}
	default: // sqlite
		query = fmt.Sprintf(`
INSERT INTO agentgate_iteration_artifacts (run_id, iteration, %s, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(run_id, iteration) DO UPDATE SET
    %s = excluded.%s,
    updated_at = excluded.updated_at
`, column, column, column)
		args = []any{runID, iteration, string(payload), now}
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", column, err)
	}
	return nil
}

// SaveAgentResult implements capability.ResultPersister.
func (p *SQLResultPersister) SaveAgentResult(ctx context.Context, runID string, iteration int, result capability.AgentResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("persistence: marshal agent result: %w", err)
	}
	return p.upsertColumn(ctx, runID, iteration, "agent_result_json", payload)
}

// SaveVerification implements capability.ResultPersister.
func (p *SQLResultPersister) SaveVerification(ctx context.Context, runID string, iteration int, report capability.VerificationReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("persistence: marshal verification report: %w", err)
	}
	return p.upsertColumn(ctx, runID, iteration, "verification_json", payload)
}

// Close closes the underlying database connection.
func (p *SQLResultPersister) Close() error {
	return p.db.Close()
}

var _ capability.ResultPersister = (*SQLResultPersister)(nil)
