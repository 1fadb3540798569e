// Package config loads and saves the sentinel TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds all sentinel configuration.
type Config struct {
	General GeneralConfig `toml:"general"`
	Store   StoreConfig   `toml:"store"`
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
}

// GeneralConfig holds default analysis windows for the CLI.
type GeneralConfig struct {
	DefaultDays  int `toml:"default_days"`
	DefaultHours int `toml:"default_hours"`
}

// StoreConfig selects the database. An empty DSN with the sqlite driver
// means the default database file under the data directory.
type StoreConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn,omitempty"`
}

// ServerConfig holds daemon settings.
type ServerConfig struct {
	Addr             string   `toml:"addr"`
	PollIntervalSec  int      `toml:"poll_interval_sec"`
	AlertWindowHours int      `toml:"alert_window_hours"`
	EventsBuffer     int      `toml:"events_buffer"`
	RetentionDays    int      `toml:"retention_days"`
	AllowedOrigins   []string `toml:"allowed_origins,omitempty"`
}

// LogConfig holds logger settings. An empty File logs to stderr.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			DefaultDays:  7,
			DefaultHours: 24,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Server: ServerConfig{
			Addr:             "127.0.0.1:8787",
			PollIntervalSec:  60,
			AlertWindowHours: 24,
			EventsBuffer:     200,
			RetentionDays:    90,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sentinel")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "sentinel")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
// Environment overrides are applied last.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
	} else if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays SENTINEL_* environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("SENTINEL_DB_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("SENTINEL_DB_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("SENTINEL_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SENTINEL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SENTINEL_RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing SENTINEL_RETENTION_DAYS: %w", err)
		}
		cfg.Server.RetentionDays = days
	}
	return nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}
