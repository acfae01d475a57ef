// Package store persists reconciliation state in sqlite: day ledgers,
// match results, exceptions, adjustments, and the audit trail.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure Go sqlite driver
)

// Store wraps the sqlite connection.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at path and runs
// migrations. WAL mode keeps concurrent readers cheap.
func Open(path string, log zerolog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{
		db:  db,
		log: log.With().Str("component", "store").Logger(),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS days (
	day_key            TEXT PRIMARY KEY,
	date               TEXT NOT NULL,
	provider           TEXT NOT NULL DEFAULT '',
	state              TEXT NOT NULL DEFAULT 'open',
	run_id             TEXT NOT NULL DEFAULT '',
	total_transactions INTEGER NOT NULL DEFAULT 0,
	matched_count      INTEGER NOT NULL DEFAULT 0,
	total_variance     INTEGER NOT NULL DEFAULT 0,
	reports_generated  INTEGER NOT NULL DEFAULT 0,
	backup_complete    INTEGER NOT NULL DEFAULT 0,
	closed_by          TEXT NOT NULL DEFAULT '',
	closed_at          TEXT
);

CREATE TABLE IF NOT EXISTS match_results (
	id              TEXT NOT NULL,
	day_key         TEXT NOT NULL,
	status          TEXT NOT NULL,
	ledger_id       TEXT NOT NULL DEFAULT '',
	provider_id     TEXT NOT NULL DEFAULT '',
	ledger_amount   INTEGER,
	provider_amount INTEGER,
	reference       TEXT NOT NULL DEFAULT '',
	variance        INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (day_key, id)
);

CREATE TABLE IF NOT EXISTS exceptions (
	id               TEXT PRIMARY KEY,
	day_key          TEXT NOT NULL,
	match_id         TEXT NOT NULL,
	category         TEXT NOT NULL,
	severity         TEXT NOT NULL,
	financial_impact INTEGER NOT NULL DEFAULT 0,
	resolved         INTEGER NOT NULL DEFAULT 0,
	resolution_note  TEXT NOT NULL DEFAULT '',
	resolved_by      TEXT NOT NULL DEFAULT '',
	resolved_at      TEXT
);

CREATE TABLE IF NOT EXISTS adjustments (
	id          TEXT PRIMARY KEY,
	day_key     TEXT NOT NULL,
	amount      INTEGER NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	recorded_by TEXT NOT NULL DEFAULT '',
	recorded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_entries (
	id      TEXT PRIMARY KEY,
	day_key TEXT NOT NULL,
	action  TEXT NOT NULL,
	actor   TEXT NOT NULL DEFAULT '',
	at      TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_results_day ON match_results(day_key);
CREATE INDEX IF NOT EXISTS idx_exceptions_day ON exceptions(day_key);
CREATE INDEX IF NOT EXISTS idx_audit_day ON audit_entries(day_key);
CREATE INDEX IF NOT EXISTS idx_adjustments_day ON adjustments(day_key);
`

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}
