// Package store is the persistence layer: a sqlite-backed implementation
// of every read/write operation the engine, classifier, and HTTP API need
// (spec.md §4.10). Every view commit is a short, single-row transaction;
// the engine never bulk-writes multiple views together.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a sqlite connection pool opened in WAL mode, grounded on the
// teacher corpus's only relational-store example.
type Store struct {
	db *sql.DB
}

// Open creates or attaches to the sqlite database at dbPath and ensures
// the schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver: serialize writers, WAL allows concurrent readers

	s := &Store{db: db}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }
