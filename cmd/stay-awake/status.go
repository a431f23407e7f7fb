package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli"

	"github.com/stayawake/stay-awake/internal/server"
)

// statusAddr picks the address of the running instance: --addr, then the
// config file, then the default.
func statusAddr(c *cli.Context) (string, error) {
	if addr := c.String("addr"); addr != "" {
		return addr, nil
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return "", err
	}
	if !cfg.StatusServerEnabled() {
		return "", usageErrorf("status API is disabled in the config (status_addr = %q); pass --addr", cfg.StatusAddr)
	}
	return cfg.StatusAddr, nil
}

func (a *app) status(c *cli.Context) error {
	addr, err := statusAddr(c)
	if err != nil {
		return err
	}
	st, err := server.FetchStatus(context.Background(), addr)
	if err != nil {
		return err
	}
	writeStatusOutput(a.stdout, st)
	return nil
}

func (a *app) quit(c *cli.Context) error {
	addr, err := statusAddr(c)
	if err != nil {
		return err
	}
	resp, err := server.RequestQuit(context.Background(), addr)
	if err != nil {
		return err
	}
	if resp.Canceled {
		fmt.Fprintln(a.stdout, "stay-awake is quitting.")
	} else {
		fmt.Fprintln(a.stdout, "stay-awake is already stopping.")
	}
	return nil
}

// writeStatusOutput renders human-readable status output.
func writeStatusOutput(w io.Writer, st *server.StatusResponse) {
	fmt.Fprintf(w, "stay-awake Status\n")
	fmt.Fprintf(w, "=================\n")
	fmt.Fprintf(w, "PID:          %d\n", st.PID)
	if st.Version != "" {
		fmt.Fprintf(w, "Version:      %s\n", st.Version)
	}
	fmt.Fprintf(w, "Listening:    %s\n", st.ListeningAddress)
	fmt.Fprintf(w, "Watchers:     %d connected\n", st.ConnectedClients)
	fmt.Fprintf(w, "Uptime:       %s\n", formatUptime(st.UptimeSeconds))
	if st.RunID != "" {
		fmt.Fprintf(w, "Run:          %s\n", st.RunID)
	}

	if aq := st.AutoQuit; aq != nil {
		fmt.Fprintf(w, "\nAuto-Quit\n")
		fmt.Fprintf(w, "---------\n")
		fmt.Fprintf(w, "State:        %s\n", aq.State)
		fmt.Fprintf(w, "Mode:         %s\n", aq.Mode)
		if aq.Input != "" {
			fmt.Fprintf(w, "Requested:    %s\n", aq.Input)
		}
		if aq.ETALabel != "" {
			fmt.Fprintf(w, "ETA:          %s\n", aq.ETALabel)
		}
		if aq.Remaining != "" {
			fmt.Fprintf(w, "Remaining:    %s\n", aq.Remaining)
		}
		if aq.CadenceMs > 0 {
			fmt.Fprintf(w, "Updates:      every %s\n", time.Duration(aq.CadenceMs)*time.Millisecond)
		}
	}

	if ka := st.KeepAwake; ka != nil {
		fmt.Fprintf(w, "\nKeep-Awake\n")
		fmt.Fprintf(w, "----------\n")
		fmt.Fprintf(w, "State:        %s\n", ka.State)
		if ka.Reason != "" {
			fmt.Fprintf(w, "Degraded:     %s\n", ka.Reason)
		}
		if ka.LastError != "" {
			fmt.Fprintf(w, "Last Error:   %s\n", ka.LastError)
		}
	}
	if p := st.Power; p != nil && p.OnBattery != nil {
		fmt.Fprintf(w, "Power:        on_battery=%v", *p.OnBattery)
		if p.BatteryPercent != nil {
			fmt.Fprintf(w, " battery=%d%%", *p.BatteryPercent)
		}
		fmt.Fprintf(w, "\n")
	}
}

// formatUptime formats an uptime in seconds as a human-readable string.
// Examples: "45s", "5m 23s", "2h 15m", "3d 4h"
func formatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	if d < time.Minute {
		return fmt.Sprintf("%ds", seconds)
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
