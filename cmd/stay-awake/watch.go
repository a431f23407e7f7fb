package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/stayawake/stay-awake/internal/keepawake"
	"github.com/stayawake/stay-awake/internal/server"
)

func (a *app) watch(c *cli.Context) error {
	addr, err := statusAddr(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Watch(ctx, addr, func(env server.Envelope) error {
		return printEvent(a.stdout, env)
	})
}

// printEvent writes one line per stream message. A terminate message ends
// the watch.
func printEvent(w io.Writer, env server.Envelope) error {
	switch env.Type {
	case server.MessageTypeHello:
		var st server.StatusResponse
		if err := json.Unmarshal(env.Payload, &st); err != nil {
			return err
		}
		fmt.Fprintf(w, "Connected to stay-awake (pid %d)\n", st.PID)
		if aq := st.AutoQuit; aq != nil && aq.ETALabel != "" {
			fmt.Fprintf(w, "ETA: %s, %s remaining\n", aq.ETALabel, aq.Remaining)
		}

	case server.MessageTypeETA:
		var p server.ETAPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		fmt.Fprintf(w, "ETA: %s\n", p.Label)

	case server.MessageTypeTick:
		var p server.TickPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		fmt.Fprintf(w, "Remaining: %s\n", p.Remaining)

	case server.MessageTypeKeepAwake:
		var st keepawake.Status
		if err := json.Unmarshal(env.Payload, &st); err != nil {
			return err
		}
		if st.Reason != "" {
			fmt.Fprintf(w, "Keep-awake: %s (%s)\n", st.State, st.Reason)
		} else {
			fmt.Fprintf(w, "Keep-awake: %s\n", st.State)
		}

	case server.MessageTypeTerminate:
		var p server.TerminatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		fmt.Fprintf(w, "stay-awake is exiting (%s)\n", p.Reason)
		return server.ErrStopWatching

	case server.MessageTypeError:
		var p server.ErrorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		fmt.Fprintf(w, "Error: %s\n", p.Message)
	}
	return nil
}
