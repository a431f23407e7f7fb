// Package config provides TOML configuration file loading for stay-awake.
// The configuration file lives at ~/.stay-awake/config.toml by default, but can be
// overridden with the --config flag. CLI flags always take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/stayawake/stay-awake/internal/autoquit"
	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

// Config represents the configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files
// via struct tags.
type Config struct {
	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level"`

	// LogFormat selects the log encoding: text or json.
	// Default: text
	LogFormat string `toml:"log_format"`

	// LogFile redirects log output to a file. Empty means stderr.
	LogFile string `toml:"log_file"`

	// HistoryDB is the path to the SQLite run history database.
	// Default: ~/.stay-awake/history.db
	HistoryDB string `toml:"history_db"`

	// HistoryMaxRows caps the number of recorded runs kept on disk.
	// Default: 500
	HistoryMaxRows int `toml:"history_max_rows"`

	// StatusAddr is the loopback host:port for the status API.
	// Default: 127.0.0.1:47390. Set to "off" to disable the server.
	StatusAddr string `toml:"status_addr"`

	// KeepAwake holds a sleep inhibitor for the lifetime of the run.
	// Default: true
	KeepAwake *bool `toml:"keep_awake"`

	// AutoQuit is the default auto-quit target when no flag is given.
	AutoQuit AutoQuitConfig `toml:"auto_quit"`

	// Countdown tunes the countdown display cadence.
	Countdown CountdownConfig `toml:"countdown"`
}

// AutoQuitConfig holds the mutually exclusive auto-quit targets.
type AutoQuitConfig struct {
	// For is a compact duration such as "1h30m".
	For string `toml:"for"`
	// Until is a local timestamp "YYYY-MM-DD HH:MM:SS".
	Until string `toml:"until"`
}

// CountdownConfig overrides the countdown tuning. Unset values keep the
// built-in defaults.
type CountdownConfig struct {
	SnapThreshold    *Duration     `toml:"snap_threshold"`
	SnapMinimum      *Duration     `toml:"snap_minimum"`
	BackoffThreshold *Duration     `toml:"backoff_threshold"`
	BackoffMinimum   *Duration     `toml:"backoff_minimum"`
	Cadence          []CadenceRule `toml:"cadence"`
}

// CadenceRule is one [[countdown.cadence]] table entry.
type CadenceRule struct {
	Above Duration `toml:"above"`
	Every Duration `toml:"every"`
}

// DefaultConfigPath returns the default config file location: ~/.stay-awake/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultDir returns ~/.stay-awake.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".stay-awake"), nil
}

// DefaultHistoryPath returns ~/.stay-awake/history.db.
func DefaultHistoryPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// WriteDefault creates a commented starter config file at the given path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultFileContent), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location (~/.stay-awake/config.toml).
//     Returns an empty Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// KeepAwakeEnabled reports whether a sleep inhibitor should be held.
func (c *Config) KeepAwakeEnabled() bool {
	if c.KeepAwake == nil {
		return true
	}
	return *c.KeepAwake
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.StatusAddr == "" {
		c.StatusAddr = DefaultStatusAddr
	}
	if c.HistoryMaxRows == 0 {
		c.HistoryMaxRows = DefaultHistoryMaxRows
	}
	if c.HistoryDB == "" {
		if p, err := DefaultHistoryPath(); err == nil {
			c.HistoryDB = p
		}
	}
}

// StatusServerEnabled reports whether the status API should listen.
func (c *Config) StatusServerEnabled() bool {
	return c.StatusAddr != "" && !strings.EqualFold(c.StatusAddr, StatusAddrOff)
}

// Validate checks field values that TOML decoding alone cannot.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.HistoryMaxRows < 0 {
		return fmt.Errorf("history_max_rows must not be negative, got %d", c.HistoryMaxRows)
	}
	if c.AutoQuit.For != "" && c.AutoQuit.Until != "" {
		return hostErrors.ConflictingTargets()
	}
	if _, err := c.CountdownConfig(); err != nil {
		return err
	}
	return nil
}

// CountdownConfig merges the file overrides onto autoquit.DefaultConfig and
// validates the result.
func (c *Config) CountdownConfig() (autoquit.Config, error) {
	out := autoquit.DefaultConfig()
	cd := c.Countdown

	if cd.SnapThreshold != nil {
		out.SnapThreshold = cd.SnapThreshold.Std()
	}
	if cd.SnapMinimum != nil {
		out.SnapMinimum = cd.SnapMinimum.Std()
	}
	if cd.BackoffThreshold != nil {
		out.BackoffThreshold = cd.BackoffThreshold.Std()
	}
	if cd.BackoffMinimum != nil {
		out.BackoffMinimum = cd.BackoffMinimum.Std()
	}
	if len(cd.Cadence) > 0 {
		out.Cadence = make([]autoquit.CadenceRule, len(cd.Cadence))
		for i, r := range cd.Cadence {
			out.Cadence[i] = autoquit.CadenceRule{Above: r.Above.Std(), Every: r.Every.Std()}
		}
	}

	if err := out.Validate(); err != nil {
		return autoquit.Config{}, err
	}
	return out, nil
}
