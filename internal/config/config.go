// Package config handles configuration loading, validation, and management
// for the Dikt daemon and IBus engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete Dikt configuration.
type Config struct {
	// Version is the configuration schema version for migrations.
	Version int `toml:"version"`

	// Engine configuration for the IBus engine process.
	Engine EngineConfig `toml:"engine"`

	// Daemon configuration for the transcription daemon.
	Daemon DaemonConfig `toml:"daemon"`

	// History configuration for transcript persistence.
	History HistoryConfig `toml:"history"`

	// Hotkey configuration for the dictation toggle.
	Hotkey HotkeyConfig `toml:"hotkey"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging"`
}

// EngineConfig holds IBus engine process configuration.
type EngineConfig struct {
	// SelfRegister registers the component directly with the IBus daemon
	// instead of relying on the installed component file. Used when the
	// engine is started by the user rather than by ibus-daemon.
	SelfRegister bool `toml:"self_register"`

	// CommitPollMs is the interval between pending-commit polls while an
	// engine instance is focused.
	CommitPollMs int `toml:"commit_poll_ms"`

	// PreeditEnabled shows live partial transcripts as preedit text.
	PreeditEnabled bool `toml:"preedit_enabled"`
}

// DaemonConfig holds transcription daemon configuration.
type DaemonConfig struct {
	// BusName is the well-known D-Bus name the daemon claims.
	BusName string `toml:"bus_name"`

	// SessionTTLSec is how long an idle recording session is kept before
	// it is reaped.
	SessionTTLSec int `toml:"session_ttl_sec"`

	// MaxPendingCommits bounds the per-session pending commit queue.
	MaxPendingCommits int `toml:"max_pending_commits"`

	// PidFile is the path to the daemon pid file.
	PidFile string `toml:"pid_file"`

	// SwitchTimeoutMs bounds engine switch verification.
	SwitchTimeoutMs int `toml:"switch_timeout_ms"`

	// WatchBusFiles resets the cached IBus connection when the IBus
	// daemon rewrites its bus files.
	WatchBusFiles bool `toml:"watch_bus_files"`
}

// HistoryConfig holds transcript history configuration.
type HistoryConfig struct {
	// Enabled persists committed transcripts to the history database.
	Enabled bool `toml:"enabled"`

	// Path is the path to the SQLite history database.
	Path string `toml:"path"`

	// RetainDays is how long committed transcripts are kept. Zero keeps
	// them forever.
	RetainDays int `toml:"retain_days"`
}

// HotkeyConfig holds the dictation toggle hotkey configuration.
type HotkeyConfig struct {
	// Enabled registers a global toggle hotkey.
	Enabled bool `toml:"enabled"`

	// Modifiers is the modifier list, e.g. ["ctrl", "alt"].
	Modifiers []string `toml:"modifiers"`

	// Key is the non-modifier key, e.g. "d".
	Key string `toml:"key"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format"`

	// Output is the log output: "stdout", "stderr", or "file".
	Output string `toml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DiktDir()

	return &Config{
		Version: Version,
		Engine: EngineConfig{
			SelfRegister:   false,
			CommitPollMs:   60,
			PreeditEnabled: true,
		},
		Daemon: DaemonConfig{
			BusName:           "io.dikt.Transcription",
			SessionTTLSec:     300,
			MaxPendingCommits: 32,
			PidFile:           filepath.Join(dir, "dikt-daemon.pid"),
			SwitchTimeoutMs:   2000,
			WatchBusFiles:     true,
		},
		History: HistoryConfig{
			Enabled:    true,
			Path:       filepath.Join(dir, "history.db"),
			RetainDays: 30,
		},
		Hotkey: HotkeyConfig{
			Enabled:   false,
			Modifiers: []string{"ctrl", "alt"},
			Key:       "d",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Output:   "stderr",
			FilePath: filepath.Join(dir, "dikt.log"),
		},
	}
}

// DiktDir returns the base Dikt data directory. DIKT_DATA_DIR overrides
// the XDG default.
func DiktDir() string {
	if envDir := os.Getenv("DIKT_DATA_DIR"); envDir != "" {
		return envDir
	}
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "dikt")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "dikt")
	}
	return filepath.Join(home, ".local", "share", "dikt")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "dikt", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "dikt", "config.toml")
	}
	return filepath.Join(home, ".config", "dikt", "config.toml")
}

// Load reads configuration from the specified path. If the file doesn't
// exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}

	cfg.ApplyEnvOverrides()

	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Variables are prefixed with DIKT_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DIKT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DIKT_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
		c.Logging.Output = "file"
	}
	if v := os.Getenv("DIKT_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("DIKT_PID_FILE"); v != "" {
		c.Daemon.PidFile = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Engine.CommitPollMs <= 0 {
		return fmt.Errorf("engine.commit_poll_ms must be positive, got %d", c.Engine.CommitPollMs)
	}
	if c.Daemon.BusName == "" {
		return fmt.Errorf("daemon.bus_name must not be empty")
	}
	if c.Daemon.SessionTTLSec <= 0 {
		return fmt.Errorf("daemon.session_ttl_sec must be positive, got %d", c.Daemon.SessionTTLSec)
	}
	if c.Daemon.MaxPendingCommits <= 0 {
		return fmt.Errorf("daemon.max_pending_commits must be positive, got %d", c.Daemon.MaxPendingCommits)
	}
	if c.Daemon.SwitchTimeoutMs <= 0 {
		return fmt.Errorf("daemon.switch_timeout_ms must be positive, got %d", c.Daemon.SwitchTimeoutMs)
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path must be set when history is enabled")
	}
	if c.History.RetainDays < 0 {
		return fmt.Errorf("history.retain_days must not be negative, got %d", c.History.RetainDays)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if c.Hotkey.Enabled && c.Hotkey.Key == "" {
		return fmt.Errorf("hotkey.key must be set when the hotkey is enabled")
	}
	return nil
}

// EnsureDirectories creates all directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Daemon.PidFile),
	}
	if c.History.Enabled {
		dirs = append(dirs, filepath.Dir(c.History.Path))
	}
	if c.Logging.Output == "file" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Save writes the configuration to the given path as TOML.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode TOML: %w", err)
	}
	return nil
}
