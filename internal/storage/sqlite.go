// Package storage persists stay-awake run history in SQLite.
//
// The history is an audit log only. Nothing here is read back to restore a
// countdown; a restarted process always starts a fresh run.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	// Pure-Go SQLite driver, registered for side effects.
	_ "modernc.org/sqlite"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

// ErrRunNotFound is returned when an operation targets a run that was never recorded.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore keeps run history in a SQLite database.
// It creates the database and tables on first use and supports
// concurrent access through internal locking.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates a SQLite database at the given path and
// applies pending migrations. Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	log.Printf("storage: opening database at %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, hostErrors.Wrap(hostErrors.CodeStorageOpenFailed, "create database directory", err)
		}
	}

	// busy_timeout covers a second stay-awake process (e.g. `history`) reading
	// while a run is writing.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, hostErrors.Wrap(hostErrors.CodeStorageOpenFailed, "open database", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, hostErrors.Wrap(hostErrors.CodeStorageOpenFailed, "ping database", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, hostErrors.Wrap(hostErrors.CodeStorageOpenFailed, "init schema", err)
	}

	log.Printf("storage: database ready (schema version %d)", currentSchemaVersion)
	return store, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	log.Printf("storage: closing database")
	return s.db.Close()
}

// ProbeWrite verifies the history tables exist and accept writes by
// inserting and deleting a row inside one transaction.
func (s *SQLiteStore) ProbeWrite() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO keep_awake_audit (run_id, state, reason, last_error, at) VALUES (?, ?, ?, ?, ?)`,
		"", "PROBE", "startup_writability_check", "", formatTime(nowUTC()),
	)
	if err != nil {
		return hostErrors.Wrap(hostErrors.CodeStorageSaveFailed, "insert probe row", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM keep_awake_audit WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete probe row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit probe: %w", err)
	}
	return nil
}
