package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stayawake/stay-awake/internal/autoquit"
	hostErrors "github.com/stayawake/stay-awake/internal/errors"
	"github.com/stayawake/stay-awake/internal/keepawake"
	"github.com/stayawake/stay-awake/internal/server"
	"github.com/stayawake/stay-awake/internal/storage"
)

type fakeHandle struct {
	done chan struct{}
	once sync.Once
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) Err() error            { return nil }

func (h *fakeHandle) Release(ctx context.Context) error {
	h.once.Do(func() { close(h.done) })
	return nil
}

type fakeAdapter struct {
	err error
}

func (a fakeAdapter) Acquire(ctx context.Context) (keepawake.Handle, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &fakeHandle{done: make(chan struct{})}, nil
}

type fakePower struct{}

func (fakePower) Snapshot() keepawake.PowerSnapshot { return keepawake.PowerSnapshot{} }

// useFakes swaps the OS seams and lets deadlines be arbitrarily close.
func useFakes(t *testing.T, adapter keepawake.Adapter) {
	t.Helper()
	origAdapter, origPower, origBounds := newKeepAwakeAdapter, newPowerProvider, arbiterBounds
	t.Cleanup(func() {
		newKeepAwakeAdapter, newPowerProvider, arbiterBounds = origAdapter, origPower, origBounds
	})
	newKeepAwakeAdapter = func() keepawake.Adapter { return adapter }
	newPowerProvider = func() keepawake.PowerProvider { return fakePower{} }
	arbiterBounds = autoquit.Bounds{Min: 0, Max: autoquit.DefaultBounds.Max}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func listRuns(t *testing.T, dbPath string) []*storage.Run {
	t.Helper()
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()
	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	return runs
}

func TestRunReachesDeadline(t *testing.T) {
	isolateHome(t)
	useFakes(t, fakeAdapter{})
	db := filepath.Join(t.TempDir(), "history.db")

	start := time.Now()
	code, out, stderr := runWithArgs(t, "--for", "1s", "--status-addr", "off", "--history-db", db)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr %q)", code, stderr)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("run ended after %v, before its deadline", elapsed)
	}
	if !strings.Contains(out, "Auto-quit at") || !strings.Contains(out, "deadline reached") {
		t.Fatalf("unexpected stdout %q", out)
	}
	if !strings.Contains(stderr, "auto-quit armed") {
		t.Fatalf("expected armed log line, got %q", stderr)
	}

	runs := listRuns(t, db)
	if len(runs) != 1 {
		t.Fatalf("expected 1 recorded run, got %d", len(runs))
	}
	r := runs[0]
	if r.Outcome != storage.OutcomeDeadline {
		t.Fatalf("expected outcome deadline, got %s", r.Outcome)
	}
	if r.Mode != "duration" || r.Input != "1s" {
		t.Fatalf("unexpected run mode/input %q/%q", r.Mode, r.Input)
	}
	if r.EndedAt == nil {
		t.Fatal("expected EndedAt to be set")
	}

	// Keep-awake transitions were audited against the run.
	code, out, _ = runWithArgs(t, "history", "--history-db", db, "--run", r.ID)
	if code != 0 {
		t.Fatalf("history --run failed with %d", code)
	}
	for _, want := range []string{"Outcome:    deadline", "Keep-Awake", "ON", "OFF"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected history detail to contain %q, got %q", want, out)
		}
	}

	code, out, _ = runWithArgs(t, "history", "--history-db", db)
	if code != 0 {
		t.Fatalf("history failed with %d", code)
	}
	if !strings.Contains(out, r.ID) || !strings.Contains(out, "deadline") {
		t.Fatalf("expected run in history listing, got %q", out)
	}
}

func TestRunKeepAwakeDegradedIsNotFatal(t *testing.T) {
	isolateHome(t)
	unsupported := hostErrors.New(hostErrors.CodeKeepAwakeUnsupportedEnvironment, "no inhibitor here")
	useFakes(t, fakeAdapter{err: unsupported})

	code, _, stderr := runWithArgs(t, "--for", "1s", "--status-addr", "off", "--history-db", "")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr %q)", code, stderr)
	}
	if !strings.Contains(stderr, "could not keep the machine awake") {
		t.Fatalf("expected degraded warning, got %q", stderr)
	}
}

func TestRunQuitThroughStatusAPI(t *testing.T) {
	isolateHome(t)
	useFakes(t, fakeAdapter{})
	db := filepath.Join(t.TempDir(), "history.db")
	addr := freeAddr(t)

	var stdout, stderr bytes.Buffer
	done := make(chan int, 1)
	go func() {
		done <- run([]string{"stay-awake", "--for", "1h", "--status-addr", addr, "--history-db", db}, &stdout, &stderr)
	}()

	var st *server.StatusResponse
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		st, err = server.FetchStatus(context.Background(), addr)
		if err == nil && st.AutoQuit != nil && st.AutoQuit.State == string(autoquit.StateArmed) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never became ready: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if st.AutoQuit.Mode != "duration" || st.AutoQuit.Input != "1h" {
		t.Fatalf("unexpected auto-quit status %+v", st.AutoQuit)
	}
	if st.AutoQuit.RemainingSeconds < 3500 || st.AutoQuit.RemainingSeconds > 3600 {
		t.Fatalf("unexpected remaining %d", st.AutoQuit.RemainingSeconds)
	}
	if st.KeepAwake == nil || st.KeepAwake.State != keepawake.StateOn {
		t.Fatalf("expected keep-awake ON, got %+v", st.KeepAwake)
	}
	if st.RunID == "" {
		t.Fatal("expected run id in status")
	}

	code, out, _ := runWithArgs(t, "status", "--addr", addr)
	if code != 0 {
		t.Fatalf("status failed with %d", code)
	}
	for _, want := range []string{"Auto-Quit", "ARMED", "Requested:    1h", "Keep-Awake"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected status output to contain %q, got %q", want, out)
		}
	}

	code, out, _ = runWithArgs(t, "quit", "--addr", addr)
	if code != 0 {
		t.Fatalf("quit failed with %d", code)
	}
	if !strings.Contains(out, "quitting") {
		t.Fatalf("unexpected quit output %q", out)
	}

	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("expected exit code 0, got %d (stderr %q)", code, stderr.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not exit after quit")
	}

	runs := listRuns(t, db)
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Outcome != storage.OutcomeCanceled || runs[0].Detail != "quit requested" {
		t.Fatalf("unexpected outcome %s/%q", runs[0].Outcome, runs[0].Detail)
	}
}

func TestStatusNotRunning(t *testing.T) {
	isolateHome(t)
	addr := freeAddr(t)

	for _, cmd := range []string{"status", "quit", "watch"} {
		code, _, stderr := runWithArgs(t, cmd, "--addr", addr)
		if code != exitFailure {
			t.Fatalf("%s: expected exit code %d, got %d", cmd, exitFailure, code)
		}
		if !strings.Contains(stderr, "not running") {
			t.Fatalf("%s: expected not-running error, got %q", cmd, stderr)
		}
	}
}

func TestHistoryEmpty(t *testing.T) {
	isolateHome(t)
	db := filepath.Join(t.TempDir(), "history.db")

	code, out, _ := runWithArgs(t, "history", "--history-db", db)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "No runs recorded.") {
		t.Fatalf("unexpected output %q", out)
	}

	code, _, _ = runWithArgs(t, "history", "--history-db", db, "--limit", "0")
	if code != exitInvalid {
		t.Fatalf("expected exit code %d for --limit 0, got %d", exitInvalid, code)
	}

	code, _, stderr := runWithArgs(t, "history", "--history-db", db, "--run", "missing")
	if code != exitFailure {
		t.Fatalf("expected exit code %d for unknown run, got %d", exitFailure, code)
	}
	if stderr == "" {
		t.Fatal("expected an error message for unknown run")
	}
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer

	raw := func(v interface{}) json.RawMessage {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		return data
	}

	events := []server.Envelope{
		{Type: server.MessageTypeHello, Payload: raw(server.StatusResponse{PID: 42})},
		{Type: server.MessageTypeETA, Payload: raw(server.ETAPayload{Label: "tonight"})},
		{Type: server.MessageTypeTick, Payload: raw(server.TickPayload{Remaining: "00:01:30"})},
		{Type: server.MessageTypeKeepAwake, Payload: raw(keepawake.Status{State: keepawake.StateDegraded, Reason: keepawake.DegradedReasonIntegrityLost})},
		{Type: server.MessageTypeCadence, Payload: raw(server.CadencePayload{CadenceMs: 1000})},
	}
	for _, env := range events {
		if err := printEvent(&buf, env); err != nil {
			t.Fatalf("printEvent(%s): %v", env.Type, err)
		}
	}

	err := printEvent(&buf, server.Envelope{Type: server.MessageTypeTerminate, Payload: raw(server.TerminatePayload{Reason: "deadline"})})
	if err != server.ErrStopWatching {
		t.Fatalf("expected ErrStopWatching on terminate, got %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Connected to stay-awake (pid 42)",
		"ETA: tonight",
		"Remaining: 00:01:30",
		"Keep-awake: DEGRADED (integrity_lost)",
		"stay-awake is exiting (deadline)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got %q", want, out)
		}
	}
}
