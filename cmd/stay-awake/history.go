package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/stayawake/stay-awake/internal/storage"
)

func (a *app) history(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return usageErrorf("no history database configured")
	}
	store, err := storage.NewSQLiteStore(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if id := c.String("run"); id != "" {
		return writeRunDetail(a.stdout, store, id)
	}

	limit := c.Int("limit")
	if limit <= 0 {
		return usageErrorf("--limit must be positive")
	}
	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.stdout, "No runs recorded.")
		return nil
	}
	writeRuns(a.stdout, runs, time.Now())
	return nil
}

func writeRuns(w io.Writer, runs []*storage.Run, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tMODE\tREQUESTED\tOUTCOME\tDETAIL")
	for _, r := range runs {
		input := r.Input
		if input == "" {
			input = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.Mode, input, r.Outcome, r.Detail)
	}
	tw.Flush()
}

func writeRunDetail(w io.Writer, store *storage.SQLiteStore, id string) error {
	run, err := store.GetRun(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Run:        %s\n", run.ID)
	fmt.Fprintf(w, "PID:        %d\n", run.PID)
	fmt.Fprintf(w, "Mode:       %s\n", run.Mode)
	if run.Input != "" {
		fmt.Fprintf(w, "Requested:  %s\n", run.Input)
	}
	if !run.TargetAt.IsZero() {
		fmt.Fprintf(w, "Target:     %s\n", run.TargetAt.Local().Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(w, "Started:    %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05 MST"))
	if run.EndedAt != nil {
		fmt.Fprintf(w, "Ended:      %s (after %s)\n",
			run.EndedAt.Local().Format("2006-01-02 15:04:05 MST"),
			formatUptime(int64(run.EndedAt.Sub(run.StartedAt).Seconds())))
	}
	fmt.Fprintf(w, "Outcome:    %s\n", run.Outcome)
	if run.Detail != "" {
		fmt.Fprintf(w, "Detail:     %s\n", run.Detail)
	}

	entries, err := store.ListKeepAwakeAudit(run.ID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nKeep-Awake\n")
	fmt.Fprintf(w, "----------\n")
	for _, e := range entries {
		line := fmt.Sprintf("%s  %s", e.At.Local().Format("15:04:05"), e.State)
		if e.Reason != "" {
			line += " (" + e.Reason + ")"
		}
		if e.LastError != "" {
			line += ": " + e.LastError
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
