package storage

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestNewSQLiteStore verifies that a store can be created with an in-memory database.
func TestNewSQLiteStore(t *testing.T) {
	store := newTestStore(t)

	runs, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected empty list, got %d runs", len(runs))
	}

	version, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", version, currentSchemaVersion)
	}

	for _, table := range []string{"autoquit_runs", "keep_awake_audit"} {
		ok, err := store.tableExists(table)
		if err != nil || !ok {
			t.Errorf("table %s missing (err=%v)", table, err)
		}
	}
}

// TestReopenKeepsHistory verifies migrations are idempotent across opens.
func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	run := &Run{Mode: "duration", Input: "1h"}
	if err := store.BeginRun(run, 0); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	store.Close()

	store, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Input != "1h" {
		t.Errorf("Input = %q, want 1h", got.Input)
	}
}

func TestBeginAndFinishRun(t *testing.T) {
	store := newTestStore(t)

	target := time.Date(2030, 1, 1, 7, 0, 0, 0, time.UTC)
	run := &Run{Mode: "until", Input: "2030-01-01 07:00:00", TargetAt: target, PID: 4242}
	if err := store.BeginRun(run, 0); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		t.Fatalf("run ID %q is not a UUID: %v", run.ID, err)
	}

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Outcome != OutcomeRunning {
		t.Errorf("Outcome = %s, want running", got.Outcome)
	}
	if got.EndedAt != nil {
		t.Errorf("EndedAt = %v, want nil", got.EndedAt)
	}
	if !got.TargetAt.Equal(target) {
		t.Errorf("TargetAt = %v, want %v", got.TargetAt, target)
	}
	if got.PID != 4242 {
		t.Errorf("PID = %d", got.PID)
	}

	end := time.Now().UTC()
	if err := store.FinishRun(run.ID, OutcomeDeadline, "", end); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	// First outcome wins.
	if err := store.FinishRun(run.ID, OutcomeCanceled, "late signal", end.Add(time.Second)); err != nil {
		t.Fatalf("second FinishRun failed: %v", err)
	}

	got, err = store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Outcome != OutcomeDeadline {
		t.Errorf("Outcome = %s, want deadline", got.Outcome)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(end) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, end)
	}
}

func TestRunWithoutTarget(t *testing.T) {
	store := newTestStore(t)

	run := &Run{Mode: "none"}
	if err := store.BeginRun(run, 0); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if !got.TargetAt.IsZero() {
		t.Errorf("TargetAt = %v, want zero", got.TargetAt)
	}
}

func TestRunNotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetRun("missing"); hostErrors.GetCode(err) != hostErrors.CodeStorageNotFound {
		t.Errorf("GetRun code = %s, want not_found", hostErrors.GetCode(err))
	}
	err := store.FinishRun("missing", OutcomeCanceled, "", time.Now())
	if hostErrors.GetCode(err) != hostErrors.CodeStorageNotFound {
		t.Errorf("FinishRun code = %s, want not_found", hostErrors.GetCode(err))
	}
}

func TestListRunsNewestFirstAndPrune(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		run := &Run{Mode: "duration", Input: "1h", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.BeginRun(run, 3); err != nil {
			t.Fatalf("BeginRun %d failed: %v", i, err)
		}
		ids = append(ids, run.ID)
	}

	runs, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	for i, want := range []string{ids[4], ids[3], ids[2]} {
		if runs[i].ID != want {
			t.Errorf("runs[%d] = %s, want %s", i, runs[i].ID, want)
		}
	}

	limited, err := store.ListRuns(1)
	if err != nil {
		t.Fatalf("ListRuns(1) failed: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != ids[4] {
		t.Errorf("ListRuns(1) = %v", limited)
	}
}

func TestKeepAwakeAudit(t *testing.T) {
	store := newTestStore(t)

	run := &Run{Mode: "duration", Input: "2h"}
	if err := store.BeginRun(run, 0); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	for _, state := range []string{"PENDING", "ON", "OFF"} {
		if err := store.SaveKeepAwakeAudit(&KeepAwakeAuditEntry{RunID: run.ID, State: state}); err != nil {
			t.Fatalf("SaveKeepAwakeAudit failed: %v", err)
		}
	}
	if err := store.SaveKeepAwakeAudit(&KeepAwakeAuditEntry{RunID: "other", State: "ON"}); err != nil {
		t.Fatalf("SaveKeepAwakeAudit failed: %v", err)
	}

	entries, err := store.ListKeepAwakeAudit(run.ID)
	if err != nil {
		t.Fatalf("ListKeepAwakeAudit failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].State != "PENDING" || entries[2].State != "OFF" {
		t.Errorf("entries out of order: %s..%s", entries[0].State, entries[2].State)
	}

	if err := store.SaveKeepAwakeAudit(nil); err == nil {
		t.Error("expected error for nil entry")
	}
}

func TestPruneDropsOrphanedAudit(t *testing.T) {
	store := newTestStore(t)

	old := &Run{Mode: "duration", StartedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := store.BeginRun(old, 0); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if err := store.SaveKeepAwakeAudit(&KeepAwakeAuditEntry{RunID: old.ID, State: "ON"}); err != nil {
		t.Fatalf("SaveKeepAwakeAudit failed: %v", err)
	}

	if err := store.BeginRun(&Run{Mode: "duration"}, 1); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	entries, err := store.ListKeepAwakeAudit(old.ID)
	if err != nil {
		t.Fatalf("ListKeepAwakeAudit failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("orphaned audit entries kept: %d", len(entries))
	}
}

func TestProbeWrite(t *testing.T) {
	store := newTestStore(t)
	if err := store.ProbeWrite(); err != nil {
		t.Fatalf("ProbeWrite failed: %v", err)
	}
	entries, err := store.ListKeepAwakeAudit("")
	if err != nil {
		t.Fatalf("ListKeepAwakeAudit failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("probe row left behind: %d", len(entries))
	}
}

func TestConcurrentRuns(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run := &Run{Mode: "duration", Input: "1h"}
			if err := store.BeginRun(run, 0); err != nil {
				t.Errorf("BeginRun failed: %v", err)
				return
			}
			if err := store.FinishRun(run.ID, OutcomeCanceled, "", time.Now()); err != nil {
				t.Errorf("FinishRun failed: %v", err)
			}
		}()
	}
	wg.Wait()

	runs, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 10 {
		t.Errorf("len(runs) = %d, want 10", len(runs))
	}
}
