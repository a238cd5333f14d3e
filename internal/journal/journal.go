// Package journal keeps a SQLite ledger of publish-hook invocations.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS hook_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	event       TEXT     NOT NULL,
	subject     TEXT     NOT NULL DEFAULT '',
	ok          INTEGER  NOT NULL,
	detail      TEXT     NOT NULL DEFAULT '',
	url         TEXT     NOT NULL DEFAULT '',
	duration_ms INTEGER  NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_hook_runs_created ON hook_runs(created_at);
`

const defaultLimit = 50

// Entry is one recorded hook invocation.
type Entry struct {
	ID        int64         `json:"id"`
	Event     string        `json:"event"`
	Subject   string        `json:"subject"`
	OK        bool          `json:"ok"`
	Detail    string        `json:"detail,omitempty"`
	URL       string        `json:"url,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// DB wraps a sql.DB with journal operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the journal database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Record appends one entry. A zero CreatedAt is stamped with the current time.
func (db *DB) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO hook_runs (event, subject, ok, detail, url, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Event, e.Subject, e.OK, e.Detail, e.URL, e.Duration.Milliseconds(), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, event, subject, ok, detail, url, duration_ms, created_at
		FROM hook_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ms int64
		)
		if err := rows.Scan(&e.ID, &e.Event, &e.Subject, &e.OK, &e.Detail, &e.URL, &ms, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Failures counts failed invocations recorded since t.
func (db *DB) Failures(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM hook_runs WHERE ok = 0 AND created_at >= ?`, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("journal: failures: %w", err)
	}
	return n, nil
}
