package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/urfave/cli"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd/stay-awake
var Version = "dev"

const description = `Keeps the machine awake and, optionally, quits on its own at a deadline.

   The deadline is either a duration measured from now (--for 1h30m, 3d4h5s,
   or a bare number of minutes) or a local timestamp (--until "2030-01-01 07:00:00").
   While running, a loopback status API reports the countdown and accepts quit
   requests from 'stay-awake status', 'stay-awake quit' and 'stay-awake watch'.`

// Exit statuses.
const (
	exitOK      = 0
	exitFailure = 1
	exitInvalid = 2
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	err := a.cli().Run(args)
	if err == nil {
		return exitOK
	}
	var silent silentError
	if !errors.As(err, &silent) {
		fmt.Fprintf(stderr, "Error: %s\n", hostErrors.GetMessage(err))
	}
	return exitCode(err)
}

// app carries the process streams through the cli actions.
type app struct {
	stdout io.Writer
	stderr io.Writer
}

func (a *app) cli() *cli.App {
	return &cli.App{
		Name:        "stay-awake",
		HelpName:    "stay-awake",
		Usage:       "keep the machine awake, then quit on schedule",
		UsageText:   "stay-awake [--for DURATION | --until \"YYYY-MM-DD HH:MM:SS\"] [options]\n   stay-awake <command> [options]",
		Version:     Version,
		Description: description,
		Writer:      a.stdout,
		ErrWriter:   a.stderr,
		// Exit codes are chosen by run, never by the cli package.
		ExitErrHandler: func(*cli.Context, error) {},
		OnUsageError:   a.usageError,
		HideVersion:    true,
		Flags:          runFlags,
		Action:         a.runCountdown,
		Commands: []cli.Command{
			{
				Name:         "run",
				Usage:        "keep awake and count down to the auto-quit deadline (default)",
				Flags:        runFlags,
				Action:       a.runCountdown,
				OnUsageError: a.usageError,
			},
			{
				Name:         "status",
				Usage:        "show the state of a running stay-awake",
				Flags:        clientFlags,
				Action:       a.status,
				OnUsageError: a.usageError,
			},
			{
				Name:         "quit",
				Usage:        "stop a running stay-awake before its deadline",
				Flags:        clientFlags,
				Action:       a.quit,
				OnUsageError: a.usageError,
			},
			{
				Name:         "watch",
				Usage:        "follow the countdown of a running stay-awake",
				Flags:        clientFlags,
				Action:       a.watch,
				OnUsageError: a.usageError,
			},
			{
				Name:         "history",
				Usage:        "list recorded runs",
				Flags:        historyFlags,
				Action:       a.history,
				OnUsageError: a.usageError,
			},
			{
				Name:         "init-config",
				Usage:        "write a commented starter config file",
				Flags:        initConfigFlags,
				Action:       a.initConfig,
				OnUsageError: a.usageError,
			},
			{
				Name:   "version",
				Usage:  "print the version",
				Action: a.version,
			},
		},
	}
}

func (a *app) version(*cli.Context) error {
	fmt.Fprintf(a.stdout, "stay-awake %s (%s_%s)\n", Version, runtime.GOOS, runtime.GOARCH)
	return nil
}

func (a *app) usageError(c *cli.Context, err error, _ bool) error {
	fmt.Fprintf(a.stderr, "Incorrect usage: %v\n", err)
	fmt.Fprintf(a.stderr, "Run 'stay-awake --help' for usage.\n")
	return silentError{usageError{err}}
}

// usageError marks bad command-line input or configuration.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...interface{}) error {
	return usageError{fmt.Errorf(format, args...)}
}

// silentError has already been reported to the user.
type silentError struct {
	err error
}

func (e silentError) Error() string { return e.err.Error() }
func (e silentError) Unwrap() error { return e.err }

// exitCode maps an error to the process exit status: 2 for invalid input,
// 1 for everything else.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var usage usageError
	if errors.As(err, &usage) || hostErrors.IsValidation(err) {
		return exitInvalid
	}
	return exitFailure
}
