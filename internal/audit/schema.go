// Package audit persists a statement-level audit trail in a local SQLite
// database (audit.db). Every statement the executor runs is recorded with
// its outcome, timing, and origin. Recording is best effort: a failure to
// record never fails the statement itself.
package audit

// CreateStatementsTableSQL creates the statements table. One row per
// executed statement; created_at is stored as unix microseconds so entries
// issued within the same second still order correctly.
const CreateStatementsTableSQL = `
CREATE TABLE IF NOT EXISTS statements (
    entry_id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    sql_text TEXT NOT NULL,
    success INTEGER NOT NULL,
    error_category TEXT,
    rows_affected INTEGER NOT NULL DEFAULT 0,
    duration_us INTEGER NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateStatementsIndexesSQL creates indexes for the common read paths:
// recency listing, failure listing, and TTL-based pruning.
var CreateStatementsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_statements_created ON statements(created_at)`,

	// Failure listing skips successful statements entirely
	`CREATE INDEX IF NOT EXISTS idx_statements_failures ON statements(created_at)
		WHERE success = 0`,

	`CREATE INDEX IF NOT EXISTS idx_statements_source ON statements(source, created_at)`,
}

// AllSchemaSQL returns all SQL statements needed to initialize the audit
// database.
func AllSchemaSQL() []string {
	statements := []string{CreateStatementsTableSQL}
	statements = append(statements, CreateStatementsIndexesSQL...)
	return statements
}
