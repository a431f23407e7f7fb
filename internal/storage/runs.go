package storage

// runs.go contains SQLiteStore methods for the auto-quit run history.

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

// Outcome is how a recorded run ended.
type Outcome string

const (
	// OutcomeRunning marks a run that has not finished.
	OutcomeRunning Outcome = "running"
	// OutcomeDeadline means auto-quit fired.
	OutcomeDeadline Outcome = "deadline"
	// OutcomeCanceled means the run was stopped early (signal, API quit).
	OutcomeCanceled Outcome = "canceled"
	// OutcomeFailed means the run ended on an error.
	OutcomeFailed Outcome = "failed"
)

// Run is one recorded stay-awake invocation.
type Run struct {
	ID string
	// Mode is "duration", "until" or "none".
	Mode  string
	Input string
	// TargetAt is the wall-clock deadline; zero when auto-quit is off.
	TargetAt  time.Time
	StartedAt time.Time
	EndedAt   *time.Time
	Outcome   Outcome
	Detail    string
	PID       int
}

// BeginRun inserts a running row and prunes the oldest runs beyond maxRows
// in the same transaction. An empty run.ID is filled with a new UUID.
func (s *SQLiteStore) BeginRun(run *Run, maxRows int) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = nowUTC()
	}
	run.Outcome = OutcomeRunning

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const insertQuery = `
		INSERT INTO autoquit_runs (id, mode, input, target_at, started_at, outcome, pid)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.Exec(insertQuery,
		run.ID,
		run.Mode,
		run.Input,
		formatOptionalTime(run.TargetAt),
		formatTime(run.StartedAt),
		string(run.Outcome),
		run.PID,
	)
	if err != nil {
		return hostErrors.Wrap(hostErrors.CodeStorageSaveFailed, "insert run", err)
	}

	if maxRows > 0 {
		const pruneQuery = `
			DELETE FROM autoquit_runs
			WHERE id NOT IN (SELECT id FROM autoquit_runs ORDER BY started_at DESC LIMIT ?)
		`
		if _, err := tx.Exec(pruneQuery, maxRows); err != nil {
			return fmt.Errorf("prune runs: %w", err)
		}
		const pruneAudit = `
			DELETE FROM keep_awake_audit
			WHERE run_id != '' AND run_id NOT IN (SELECT id FROM autoquit_runs)
		`
		if _, err := tx.Exec(pruneAudit); err != nil {
			return fmt.Errorf("prune keep-awake audit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return hostErrors.Wrap(hostErrors.CodeStorageSaveFailed, "commit run", err)
	}

	log.Printf("storage: recorded run id=%s mode=%s", run.ID, run.Mode)
	return nil
}

// FinishRun records how a running run ended. Finishing an already finished
// run is a no-op that returns nil; the first outcome wins.
func (s *SQLiteStore) FinishRun(id string, outcome Outcome, detail string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE autoquit_runs SET ended_at = ?, outcome = ?, detail = ? WHERE id = ? AND ended_at IS NULL`,
		formatTime(at), string(outcome), detail, id,
	)
	if err != nil {
		return hostErrors.Wrap(hostErrors.CodeStorageSaveFailed, "finish run", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRow("SELECT 1 FROM autoquit_runs WHERE id = ?", id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return hostErrors.Wrap(hostErrors.CodeStorageNotFound, "finish run "+id, ErrRunNotFound)
		}
		if err != nil {
			return hostErrors.Wrap(hostErrors.CodeStorageQueryFailed, "check run", err)
		}
		return nil
	}

	log.Printf("storage: finished run id=%s outcome=%s", id, outcome)
	return nil
}

// GetRun returns one run by id.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, mode, input, target_at, started_at, ended_at, outcome, detail, pid
		FROM autoquit_runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hostErrors.Wrap(hostErrors.CodeStorageNotFound, "get run "+id, ErrRunNotFound)
	}
	if err != nil {
		return nil, hostErrors.Wrap(hostErrors.CodeStorageQueryFailed, "get run", err)
	}
	return run, nil
}

// ListRuns returns runs newest first. limit <= 0 returns all.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, mode, input, target_at, started_at, ended_at, outcome, detail, pid
		FROM autoquit_runs
		ORDER BY started_at DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, hostErrors.Wrap(hostErrors.CodeStorageQueryFailed, "query runs", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                 Run
		targetAt, startedAt string
		endedAt             sql.NullString
		outcome             string
	)
	if err := row.Scan(&run.ID, &run.Mode, &run.Input, &targetAt, &startedAt, &endedAt, &outcome, &run.Detail, &run.PID); err != nil {
		return nil, err
	}
	run.Outcome = Outcome(outcome)

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if targetAt != "" {
		if run.TargetAt, err = parseTime(targetAt); err != nil {
			return nil, fmt.Errorf("parse target_at: %w", err)
		}
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
		run.EndedAt = &t
	}
	return &run, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
