package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// schema is shared verbatim by SQLite and Dolt. TEXT columns carry no
// DEFAULT since MySQL rejects one there.
const schema = `
CREATE TABLE IF NOT EXISTS decisions (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    org_id VARCHAR(64) NOT NULL,
    title VARCHAR(500) NOT NULL,
    description TEXT NOT NULL,
    category VARCHAR(255) NOT NULL DEFAULT '',
    parameters TEXT NOT NULL,
    lifecycle VARCHAR(32) NOT NULL,
    health_signal INT NOT NULL,
    version INT NOT NULL,
    governance_locked BOOLEAN NOT NULL DEFAULT FALSE,
    last_reviewed_at VARCHAR(40) NULL,
    created_by VARCHAR(255) NOT NULL DEFAULT '',
    created_at VARCHAR(40) NOT NULL,
    updated_at VARCHAR(40) NOT NULL
);

CREATE TABLE IF NOT EXISTS assumptions (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    org_id VARCHAR(64) NOT NULL,
    description TEXT NOT NULL,
    status VARCHAR(16) NOT NULL,
    scope VARCHAR(32) NOT NULL,
    owner_decision_id VARCHAR(64) NULL,
    created_at VARCHAR(40) NOT NULL,
    updated_at VARCHAR(40) NOT NULL
);

CREATE TABLE IF NOT EXISTS decision_assumptions (
    org_id VARCHAR(64) NOT NULL,
    decision_id VARCHAR(64) NOT NULL,
    assumption_id VARCHAR(64) NOT NULL,
    created_at VARCHAR(40) NOT NULL,
    PRIMARY KEY (decision_id, assumption_id)
);

CREATE TABLE IF NOT EXISTS org_constraints (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    org_id VARCHAR(64) NOT NULL,
    name VARCHAR(255) NOT NULL,
    description TEXT NOT NULL,
    constraint_type VARCHAR(32) NOT NULL,
    is_immutable BOOLEAN NOT NULL DEFAULT TRUE,
    created_at VARCHAR(40) NOT NULL
);

CREATE TABLE IF NOT EXISTS dependencies (
    org_id VARCHAR(64) NOT NULL,
    source_id VARCHAR(64) NOT NULL,
    target_id VARCHAR(64) NOT NULL,
    created_by VARCHAR(255) NOT NULL DEFAULT '',
    created_at VARCHAR(40) NOT NULL,
    PRIMARY KEY (source_id, target_id)
);

CREATE TABLE IF NOT EXISTS conflicts (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    org_id VARCHAR(64) NOT NULL,
    kind VARCHAR(16) NOT NULL,
    entity_a VARCHAR(64) NOT NULL,
    entity_b VARCHAR(64) NOT NULL,
    pair_lo VARCHAR(64) NOT NULL,
    pair_hi VARCHAR(64) NOT NULL,
    conflict_type VARCHAR(32) NOT NULL,
    confidence DOUBLE NOT NULL,
    explanation TEXT NOT NULL,
    fingerprint VARCHAR(64) NOT NULL,
    detected_at VARCHAR(40) NOT NULL,
    resolved_at VARCHAR(40) NULL,
    resolution_action VARCHAR(32) NULL,
    resolution_notes TEXT NULL,
    resolved_by VARCHAR(255) NULL,
    open_pair VARCHAR(200) NULL
);

CREATE TABLE IF NOT EXISTS dismissed_pairs (
    org_id VARCHAR(64) NOT NULL,
    kind VARCHAR(16) NOT NULL,
    fingerprint VARCHAR(64) NOT NULL,
    pair_lo VARCHAR(64) NOT NULL,
    pair_hi VARCHAR(64) NOT NULL,
    dismissed_by VARCHAR(255) NOT NULL DEFAULT '',
    dismissed_at VARCHAR(40) NOT NULL,
    PRIMARY KEY (org_id, kind, fingerprint)
);

CREATE TABLE IF NOT EXISTS edit_requests (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    org_id VARCHAR(64) NOT NULL,
    decision_id VARCHAR(64) NOT NULL,
    requester VARCHAR(255) NOT NULL,
    justification TEXT NOT NULL,
    proposed_changes TEXT NOT NULL,
    status VARCHAR(16) NOT NULL,
    decided_by VARCHAR(255) NULL,
    decided_at VARCHAR(40) NULL,
    decision_note TEXT NULL,
    created_at VARCHAR(40) NOT NULL,
    pending_for VARCHAR(64) NULL
);

CREATE TABLE IF NOT EXISTS version_events (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    org_id VARCHAR(64) NOT NULL,
    decision_id VARCHAR(64) NOT NULL,
    seq BIGINT NOT NULL,
    version_number INT NULL,
    event_type VARCHAR(64) NOT NULL,
    actor VARCHAR(255) NOT NULL,
    payload TEXT NOT NULL,
    created_at VARCHAR(40) NOT NULL,
    UNIQUE (decision_id, seq)
);
`

// columns added after the first release. Databases created since already
// have them, so "duplicate column" is success.
var columnMigrations = []string{
	"ALTER TABLE conflicts ADD COLUMN open_pair VARCHAR(200) NULL",
	"ALTER TABLE edit_requests ADD COLUMN pending_for VARCHAR(64) NULL",
}

// indexes are created one by one; MySQL has no CREATE INDEX IF NOT EXISTS,
// so an "already exists" error is treated as success.
var indexes = []string{
	"CREATE INDEX idx_decisions_org ON decisions (org_id, lifecycle)",
	"CREATE INDEX idx_assumptions_org ON assumptions (org_id, scope)",
	"CREATE INDEX idx_links_assumption ON decision_assumptions (assumption_id)",
	"CREATE INDEX idx_dependencies_target ON dependencies (target_id)",
	"CREATE INDEX idx_conflicts_pair ON conflicts (org_id, kind, pair_lo, pair_hi)",
	"CREATE INDEX idx_conflicts_fingerprint ON conflicts (org_id, kind, fingerprint)",
	"CREATE INDEX idx_edit_requests_decision ON edit_requests (decision_id, status)",
	"CREATE INDEX idx_events_org ON version_events (org_id, created_at)",
	// open_pair and pending_for are NULL once settled; NULLs never collide,
	// so these hold one open conflict per pair and one pending request per
	// decision even across processes sharing a Dolt server.
	"CREATE UNIQUE INDEX uq_conflicts_open_pair ON conflicts (org_id, open_pair)",
	"CREATE UNIQUE INDEX uq_edit_requests_pending ON edit_requests (org_id, pending_for)",
}

// initSchema creates all tables and indexes if they don't exist.
func initSchema(ctx context.Context, db *sql.DB) error {
	// MySQL/Dolt doesn't support multiple statements in one Exec
	for _, stmt := range splitStatements(schema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w\nStatement: %s", err, truncateForError(stmt))
		}
	}
	for _, stmt := range columnMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("failed to migrate schema: %w\nStatement: %s", err, stmt)
		}
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil && !isDuplicateIndexError(err) {
			return fmt.Errorf("failed to create index: %w\nStatement: %s", err, stmt)
		}
	}
	return nil
}

func isDuplicateIndexError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "already exists") || // SQLite
		strings.Contains(errStr, "duplicate key name") // MySQL 1061
}

func isDuplicateColumnError(err error) bool {
	// SQLite "duplicate column name: x", MySQL 1060 "Duplicate column name 'x'"
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

// isUniqueViolation reports whether err is a unique index violation.
func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") // SQLite
}

// splitStatements splits a SQL script on semicolons that are not inside
// quoted strings.
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := byte(0)

	for i := 0; i < len(script); i++ {
		c := script[i]

		if inString {
			current.WriteByte(c)
			if c == stringChar && (i == 0 || script[i-1] != '\\') {
				inString = false
			}
			continue
		}

		if c == '\'' || c == '"' || c == '`' {
			inString = true
			stringChar = c
			current.WriteByte(c)
			continue
		}

		if c == ';' {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}
		current.WriteByte(c)
	}

	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

func truncateForError(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
