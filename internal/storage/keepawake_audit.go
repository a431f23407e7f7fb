package storage

// keepawake_audit.go records keep-awake state transitions for a run, so the
// history can show whether the machine was actually kept awake.

import (
	"fmt"
	"log"
	"time"
)

// KeepAwakeAuditEntry is one recorded keep-awake transition.
type KeepAwakeAuditEntry struct {
	ID        int64
	RunID     string
	State     string
	Reason    string
	LastError string
	At        time.Time
}

// SaveKeepAwakeAudit inserts an audit entry.
func (s *SQLiteStore) SaveKeepAwakeAudit(entry *KeepAwakeAuditEntry) error {
	if entry == nil {
		return fmt.Errorf("keep-awake audit entry cannot be nil")
	}
	if entry.At.IsZero() {
		entry.At = nowUTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO keep_awake_audit (run_id, state, reason, last_error, at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.RunID, entry.State, entry.Reason, entry.LastError, formatTime(entry.At))
	if err != nil {
		return fmt.Errorf("insert keep-awake audit: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}

	log.Printf("storage: saved keep-awake audit run_id=%s state=%s", entry.RunID, entry.State)
	return nil
}

// ListKeepAwakeAudit returns a run's entries oldest first.
func (s *SQLiteStore) ListKeepAwakeAudit(runID string) ([]*KeepAwakeAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, run_id, state, reason, last_error, at
		FROM keep_awake_audit
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query keep-awake audit: %w", err)
	}
	defer rows.Close()

	var entries []*KeepAwakeAuditEntry
	for rows.Next() {
		var (
			entry KeepAwakeAuditEntry
			atStr string
		)
		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.State, &entry.Reason, &entry.LastError, &atStr); err != nil {
			return nil, fmt.Errorf("scan keep-awake audit row: %w", err)
		}
		if entry.At, err = parseTime(atStr); err != nil {
			return nil, fmt.Errorf("parse keep-awake audit at: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keep-awake audit rows: %w", err)
	}
	return entries, nil
}
