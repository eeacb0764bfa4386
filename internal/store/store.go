// Package store is the SQLite persistence layer: threads, the message
// log, the memory tiers with their promotion marks, and the user
// profile.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates the data directory if needed, opens the database with
// WAL mode, and runs migrations.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "pearlgull.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			id                  TEXT PRIMARY KEY,
			title               TEXT NOT NULL DEFAULT '',
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL,
			summary             TEXT NOT NULL DEFAULT '',
			summary_lang        TEXT NOT NULL DEFAULT '',
			summary_quality     TEXT NOT NULL DEFAULT '',
			summary_source_hash TEXT NOT NULL DEFAULT '',
			summary_updated_at  TEXT NOT NULL DEFAULT '',
			last_summary_run_at TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			thread_id  TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
			seq        INTEGER NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, seq);

		CREATE TABLE IF NOT EXISTS l1_pairs (
			ord            INTEGER PRIMARY KEY AUTOINCREMENT,
			id             TEXT NOT NULL UNIQUE,
			thread_id      TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
			user_text      TEXT NOT NULL,
			assistant_text TEXT NOT NULL,
			tokens         INTEGER NOT NULL,
			clipped        INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_l1_thread ON l1_pairs(thread_id, ord);

		CREATE TABLE IF NOT EXISTS l2_theses (
			ord             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			thread_id       TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
			source_pair_ids TEXT NOT NULL,
			summary         TEXT NOT NULL,
			tokens          INTEGER NOT NULL,
			created_at      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_l2_thread ON l2_theses(thread_id, ord);

		CREATE TABLE IF NOT EXISTS l3_micro_theses (
			ord               INTEGER PRIMARY KEY AUTOINCREMENT,
			id                TEXT NOT NULL UNIQUE,
			thread_id         TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
			source_thesis_ids TEXT NOT NULL,
			summary           TEXT NOT NULL,
			tokens            INTEGER NOT NULL,
			created_at        TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_l3_thread ON l3_micro_theses(thread_id, ord);

		CREATE TABLE IF NOT EXISTS memory_state (
			thread_id   TEXT PRIMARY KEY REFERENCES threads(id) ON DELETE CASCADE,
			l1_promoted INTEGER NOT NULL DEFAULT 0,
			l2_promoted INTEGER NOT NULL DEFAULT 0,
			l3_trimmed  INTEGER NOT NULL DEFAULT 0,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS profile (
			id   INTEGER PRIMARY KEY CHECK (id = 1),
			data TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}
