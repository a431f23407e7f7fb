package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/stayawake/stay-awake/internal/autoquit"
	"github.com/stayawake/stay-awake/internal/config"
	"github.com/stayawake/stay-awake/internal/display"
	"github.com/stayawake/stay-awake/internal/keepawake"
	"github.com/stayawake/stay-awake/internal/logger"
	"github.com/stayawake/stay-awake/internal/server"
	"github.com/stayawake/stay-awake/internal/storage"
)

// Seams for tests.
var (
	newKeepAwakeAdapter = keepawake.NewDefaultAdapter
	newPowerProvider    = keepawake.NewDefaultPowerProvider
	probeHistoryWrite   = func(store *storage.SQLiteStore) error { return store.ProbeWrite() }
	stderrIsTerminal    = func(w io.Writer) bool {
		f, ok := w.(*os.File)
		return ok && display.IsTerminal(f)
	}
)

const keepAwakeReleaseTimeout = 5 * time.Second

func (a *app) runCountdown(c *cli.Context) error {
	if c.NArg() > 0 {
		return usageErrorf("unexpected argument %q", c.Args().First())
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	log, closeLog, err := a.newLogger(cfg)
	if err != nil {
		return usageError{err}
	}
	defer closeLog()
	logger.Install(log)

	target, err := autoquit.ParseTarget(cfg.AutoQuit.For, cfg.AutoQuit.Until, localZone())
	if err != nil {
		return err
	}
	countdown, err := cfg.CountdownConfig()
	if err != nil {
		return err
	}
	arbiter := autoquit.NewArbiter(arbiterBounds, nil)
	plan, err := arbiter.Validate(target)
	if err != nil {
		return err
	}

	s := &session{
		cfg:       cfg,
		log:       log,
		stdout:    a.stdout,
		stderr:    a.stderr,
		arbiter:   arbiter,
		plan:      plan,
		countdown: countdown,
		power:     newPowerProvider(),
	}
	return s.run(context.Background())
}

func (a *app) newLogger(cfg *config.Config) (*slog.Logger, func() error, error) {
	opts := logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cfg.LogFile}
	if cfg.LogFile == "" {
		return logger.NewWriter(a.stderr, opts), func() error { return nil }, nil
	}
	return logger.New(opts)
}

// session is one stay-awake run: keep-awake, status server, countdown and
// history record, torn down together.
type session struct {
	cfg       *config.Config
	log       *slog.Logger
	stdout    io.Writer
	stderr    io.Writer
	arbiter   *autoquit.Arbiter
	plan      autoquit.Plan
	countdown autoquit.Config
	power     keepawake.PowerProvider

	store  *storage.SQLiteStore
	record *storage.Run
	keep   *keepawake.Manager
	srv    *server.Server
	term   *display.Terminal

	cancel context.CancelFunc

	mu     sync.Mutex
	runner *autoquit.Runner
	reason string
}

func (s *session) run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	s.cancel = cancel

	s.openHistory()
	defer s.closeHistory()

	if s.cfg.StatusServerEnabled() {
		srv := server.NewServer(server.Options{
			Addr:    s.cfg.StatusAddr,
			Version: Version,
			Status:  s.snapshot,
			Quit:    func() bool { return s.stop("quit requested") },
			Logger:  s.log,
		})
		if err := srv.Listen(); err != nil {
			s.log.Warn("status server disabled", "addr", s.cfg.StatusAddr, "error", err)
		} else {
			s.srv = srv
		}
	}

	if s.cfg.KeepAwakeEnabled() {
		s.keep = keepawake.NewManager(newKeepAwakeAdapter(), keepawake.Options{
			Logger:   s.log,
			OnChange: s.keepAwakeChanged,
		})
		st := s.keep.SetDesiredEnabled(ctx, true)
		if st.State == keepawake.StateDegraded {
			fmt.Fprintf(s.stderr, "Warning: could not keep the machine awake (%s)\n", st.Reason)
		}
	}
	defer s.releaseKeepAwake()

	g, gctx := errgroup.WithContext(ctx)
	if s.srv != nil {
		g.Go(func() error { return s.srv.Serve(gctx) })
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			s.stop("received " + sig.String())
		case <-gctx.Done():
		}
		return nil
	})

	if err := s.startCountdown(gctx); err != nil {
		s.stop("failed to start countdown")
		g.Wait()
		s.finishHistory(storage.OutcomeFailed, err.Error())
		return err
	}

	<-gctx.Done()
	if r := s.getRunner(); r != nil {
		r.Cancel()
	}
	err := g.Wait()
	if s.term != nil {
		s.term.Close()
	}

	outcome, detail := s.outcome(err)
	s.finishHistory(outcome, detail)
	switch outcome {
	case storage.OutcomeDeadline:
		fmt.Fprintln(s.stdout, "Auto-quit deadline reached, exiting.")
	case storage.OutcomeCanceled:
		fmt.Fprintf(s.stdout, "Stopped (%s).\n", detail)
	}
	return err
}

func (s *session) startCountdown(ctx context.Context) error {
	if s.srv != nil {
		fmt.Fprintf(s.stdout, "Status API: http://%s/api/status\n", s.srv.Addr())
	}
	if s.plan.Disabled {
		s.log.Info("auto-quit disabled, staying awake until interrupted")
		fmt.Fprintln(s.stdout, "Staying awake until interrupted (Ctrl+C).")
		return nil
	}

	deadline, err := s.arbiter.Arm(s.plan)
	if err != nil {
		return err
	}

	displays := []autoquit.Display{display.NewLog(s.log)}
	if stderrIsTerminal(s.stderr) {
		s.term = display.NewTerminal(s.stderr)
		displays = []autoquit.Display{s.term}
	}
	if s.srv != nil {
		displays = append(displays, s.srv)
	}

	runner := autoquit.NewRunner(autoquit.RunnerOptions{
		Config:    &s.countdown,
		Display:   display.NewFanout(displays...),
		Visible:   s.visible,
		Terminate: s.terminate,
		Logger:    s.log,
	})
	s.mu.Lock()
	s.runner = runner
	s.mu.Unlock()

	fmt.Fprintf(s.stdout, "Auto-quit at %s. Press Ctrl+C to quit early.\n",
		autoquit.ETALabel(deadline.Wall, time.Now()))
	return runner.Start(ctx, deadline)
}

// terminate is the auto-quit sink: tell watchers, then unwind the run.
func (s *session) terminate(reason autoquit.Reason) error {
	if s.srv != nil {
		s.srv.BroadcastTerminate(reason)
	}
	s.stop(string(reason))
	return nil
}

// stop ends the run. Only the first reason is kept.
func (s *session) stop(reason string) bool {
	s.mu.Lock()
	if s.reason != "" {
		s.mu.Unlock()
		return false
	}
	s.reason = reason
	s.mu.Unlock()

	s.log.Info("stopping", "reason", reason)
	s.cancel()
	return true
}

func (s *session) visible() bool {
	return s.term != nil || (s.srv != nil && s.srv.Visible())
}

func (s *session) getRunner() *autoquit.Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner
}

func (s *session) outcome(err error) (storage.Outcome, string) {
	s.mu.Lock()
	reason := s.reason
	s.mu.Unlock()

	if r := s.getRunner(); r != nil && r.Status().State == autoquit.StateFired {
		return storage.OutcomeDeadline, string(autoquit.ReasonDeadline)
	}
	if err != nil {
		return storage.OutcomeFailed, err.Error()
	}
	if reason == "" {
		reason = string(autoquit.ReasonCanceled)
	}
	return storage.OutcomeCanceled, reason
}

func (s *session) snapshot() server.Snapshot {
	var snap server.Snapshot
	if s.record != nil {
		snap.RunID = s.record.ID
	}

	aq := &server.AutoQuitStatus{
		State: string(autoquit.StateIdle),
		Mode:  string(s.plan.Target.Kind),
		Input: s.plan.Target.Input,
	}
	if r := s.getRunner(); r != nil {
		st := r.Status()
		now := time.Now()
		eta := st.Deadline.Wall
		aq.State = string(st.State)
		aq.ETA = &eta
		aq.ETALabel = autoquit.ETALabel(eta, now)
		aq.RemainingSeconds = int64(st.Remaining.Round(time.Second) / time.Second)
		aq.Remaining = autoquit.FormatRemaining(st.Remaining)
		aq.CadenceMs = st.Cadence.Milliseconds()
	}
	snap.AutoQuit = aq

	if s.keep != nil {
		ka := s.keep.Snapshot()
		snap.KeepAwake = &ka
	}
	if s.power != nil {
		p := s.power.Snapshot()
		snap.Power = &p
	}
	return snap
}

func (s *session) keepAwakeChanged(st keepawake.Status) {
	if s.srv != nil {
		s.srv.BroadcastKeepAwake(st)
	}
	if s.store == nil || s.record == nil {
		return
	}
	if err := s.store.SaveKeepAwakeAudit(&storage.KeepAwakeAuditEntry{
		RunID:     s.record.ID,
		State:     string(st.State),
		Reason:    string(st.Reason),
		LastError: st.LastError,
		At:        st.UpdatedAt,
	}); err != nil {
		s.log.Warn("failed to record keep-awake transition", "error", err)
	}
}

func (s *session) releaseKeepAwake() {
	if s.keep == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), keepAwakeReleaseTimeout)
	defer cancel()
	if err := s.keep.Close(ctx); err != nil {
		s.log.Warn("failed to release keep-awake", "error", err)
	}
}

// openHistory starts the run record. History is best-effort: a broken
// database is logged and the run continues without it.
func (s *session) openHistory() {
	if s.cfg.HistoryDB == "" {
		return
	}
	store, err := storage.NewSQLiteStore(s.cfg.HistoryDB)
	if err != nil {
		s.log.Warn("run history disabled", "path", s.cfg.HistoryDB, "error", err)
		return
	}
	if err := probeHistoryWrite(store); err != nil {
		s.log.Warn("run history is read-only, disabling", "path", s.cfg.HistoryDB, "error", err)
		store.Close()
		return
	}

	rec := &storage.Run{
		Mode:     string(s.plan.Target.Kind),
		Input:    s.plan.Target.Input,
		TargetAt: s.plan.Wall,
		PID:      os.Getpid(),
	}
	if s.plan.Disabled {
		rec.Mode = string(autoquit.TargetNone)
	}
	if err := store.BeginRun(rec, s.cfg.HistoryMaxRows); err != nil {
		s.log.Warn("failed to record run", "error", err)
		store.Close()
		return
	}
	s.store = store
	s.record = rec
	s.log.Debug("run recorded", "run_id", rec.ID)
}

func (s *session) finishHistory(outcome storage.Outcome, detail string) {
	if s.store == nil || s.record == nil {
		return
	}
	if err := s.store.FinishRun(s.record.ID, outcome, detail, time.Now()); err != nil {
		s.log.Warn("failed to finish run record", "error", err)
	}
}

func (s *session) closeHistory() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.log.Warn("failed to close run history", "error", err)
	}
}
