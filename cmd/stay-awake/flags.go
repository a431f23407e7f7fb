package main

import (
	"time"

	"github.com/urfave/cli"

	"github.com/stayawake/stay-awake/internal/autoquit"
	"github.com/stayawake/stay-awake/internal/config"
	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

var configFlag = cli.StringFlag{
	Name:  "config, c",
	Usage: "path to config file (default: ~/.stay-awake/config.toml)",
}

var runFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "for, f",
		Usage: "quit after `DURATION`, e.g. 90m, 1h30m, 3d4h5s; a bare number means minutes; 0 disables",
	},
	cli.StringFlag{
		Name:  "until, u",
		Usage: "quit at local `TIME` \"YYYY-MM-DD HH:MM:SS\"",
	},
	configFlag,
	cli.BoolFlag{
		Name:  "no-keep-awake",
		Usage: "do not hold a sleep inhibitor",
	},
	cli.StringFlag{
		Name:  "status-addr",
		Usage: "loopback `ADDR` for the status API, or \"off\" (default: 127.0.0.1:47390)",
	},
	cli.StringFlag{
		Name:  "history-db",
		Usage: "`PATH` of the run history database (default: ~/.stay-awake/history.db)",
	},
	cli.StringFlag{
		Name:  "log-level",
		Usage: "log level: debug, info, warn, error (default: info)",
	},
	cli.StringFlag{
		Name:  "log-format",
		Usage: "log format: text or json (default: text)",
	},
	cli.StringFlag{
		Name:  "log-file",
		Usage: "write logs to `PATH` instead of stderr",
	},
}

var clientFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "addr",
		Usage: "status API `ADDR` of the running instance (default: status_addr from config)",
	},
	configFlag,
}

var historyFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "limit, n",
		Usage: "show at most `N` runs",
		Value: 20,
	},
	cli.StringFlag{
		Name:  "run",
		Usage: "show keep-awake transitions of run `ID`",
	},
	cli.StringFlag{
		Name:  "history-db",
		Usage: "`PATH` of the run history database (default: ~/.stay-awake/history.db)",
	},
	configFlag,
}

var initConfigFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "path",
		Usage: "where to write the file (default: ~/.stay-awake/config.toml)",
	},
}

// loadConfig reads the config file and applies command-line overrides.
// Flags always win over file values.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		path = c.GlobalString("config")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, usageError{err}
	}

	if c.IsSet("for") || c.IsSet("until") {
		cfg.AutoQuit = config.AutoQuitConfig{For: c.String("for"), Until: c.String("until")}
	}
	if c.Bool("no-keep-awake") {
		off := false
		cfg.KeepAwake = &off
	}
	overrideString(&cfg.StatusAddr, c.String("status-addr"))
	overrideString(&cfg.HistoryDB, c.String("history-db"))
	overrideString(&cfg.LogLevel, c.String("log-level"))
	overrideString(&cfg.LogFormat, c.String("log-format"))
	overrideString(&cfg.LogFile, c.String("log-file"))

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		if hostErrors.IsValidation(err) {
			return nil, err
		}
		return nil, usageError{err}
	}
	return cfg, nil
}

func overrideString(dst *string, flag string) {
	if flag != "" {
		*dst = flag
	}
}

// arbiterBounds is the allowed deadline window. Tests shrink it.
var arbiterBounds = autoquit.DefaultBounds

// localZone resolves --until timestamps.
var localZone = func() *time.Location { return time.Local }
