package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Entry is one recorded statement execution.
type Entry struct {
	ID            string
	Timestamp     time.Time
	Source        string
	SQL           string
	Success       bool
	ErrorCategory string
	RowsAffected  int
	DurationUS    int64
}

// Log records statement executions in a SQLite database.
type Log struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	insertStmt *sql.Stmt
}

// Open opens or creates the audit database at dbPath.
func Open(dbPath string) (*Log, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &Log{db: db, dbPath: dbPath}

	// Initialize schema on the write connection before the read-only
	// connection can be used; read-only open fails on a missing file.
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: failed to initialize schema: %w", err)
	}

	// Read connection pool: concurrent readers via read-only mode
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	l.readDB = readDB

	insertStmt, err := db.Prepare(`
		INSERT INTO statements (
			entry_id, source, sql_text, success,
			error_category, rows_affected, duration_us, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("audit: failed to prepare insert statement: %w", err)
	}
	l.insertStmt = insertStmt

	return l, nil
}

// initSchema creates the statements table and its indexes.
func (l *Log) initSchema() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Record appends one entry. A missing ID or Timestamp is assigned here, so
// callers only fill in what they observed.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	var category sql.NullString
	if e.ErrorCategory != "" {
		category = sql.NullString{String: e.ErrorCategory, Valid: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.insertStmt.ExecContext(ctx,
		e.ID, e.Source, e.SQL, e.Success,
		category, e.RowsAffected, e.DurationUS, e.Timestamp.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("audit: failed to insert entry: %w", err)
	}
	return nil
}

const selectColumns = `entry_id, source, sql_text, success,
	error_category, rows_affected, duration_us, created_at`

// Recent returns the most recent entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + selectColumns + `
		FROM statements
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`

	rows, err := l.readDB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query recent entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Failures returns the most recent failed entries, newest first.
func (l *Log) Failures(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + selectColumns + `
		FROM statements
		WHERE success = 0
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`

	rows, err := l.readDB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query failed entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Count returns the total number of recorded entries.
func (l *Log) Count(ctx context.Context) (int64, error) {
	var count int64
	err := l.readDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM statements",
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit: failed to count entries: %w", err)
	}
	return count, nil
}

// Prune removes entries older than ttl and returns how many were removed.
func (l *Log) Prune(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl).UnixMicro()

	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx,
		"DELETE FROM statements WHERE created_at < ?", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("audit: failed to prune entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("audit: failed to count pruned entries: %w", err)
	}
	return n, nil
}

// Close closes both database connections.
func (l *Log) Close() error {
	if l.insertStmt != nil {
		l.insertStmt.Close()
	}
	// Close read connection first, then write connection
	if l.readDB != nil {
		if err := l.readDB.Close(); err != nil {
			l.db.Close()
			return err
		}
	}
	return l.db.Close()
}

// scanEntries reads every row into an Entry slice.
func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var category sql.NullString
		var createdAt int64
		err := rows.Scan(
			&e.ID, &e.Source, &e.SQL, &e.Success,
			&category, &e.RowsAffected, &e.DurationUS, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to scan entry: %w", err)
		}
		e.ErrorCategory = category.String
		e.Timestamp = time.UnixMicro(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read entries: %w", err)
	}
	return entries, nil
}
