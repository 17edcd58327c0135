package config

import (
	"errors"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Storage paths
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Remote service
	Remote RemoteConfig `json:"remote" mapstructure:"remote"`

	// Sync behavior
	Sync SyncConfig `json:"sync" mapstructure:"sync"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// StorageConfig for local persistence.
type StorageConfig struct {
	DataDir    string `json:"data_dir" mapstructure:"data_dir"`       // Base directory for all data
	DBFile     string `json:"db_file" mapstructure:"db_file"`         // SQLite database path
	LegacyFile string `json:"legacy_file" mapstructure:"legacy_file"` // Pre-v1 category export, if any
}

// RemoteConfig for the category service.
type RemoteConfig struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	Token      string        `json:"token" mapstructure:"token"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
	UserAgent  string        `json:"user_agent" mapstructure:"user_agent"`

	// Offline disables the remote entirely; every write queues.
	Offline bool `json:"offline" mapstructure:"offline"`
}

// SyncConfig for queue draining.
type SyncConfig struct {
	DrainInterval time.Duration `json:"drain_interval" mapstructure:"drain_interval"` // Periodic drain frequency
	MaxAttempts   int           `json:"max_attempts" mapstructure:"max_attempts"`     // Attempts before degraded status
	BackoffBase   time.Duration `json:"backoff_base" mapstructure:"backoff_base"`     // First retry delay
	BackoffCap    time.Duration `json:"backoff_cap" mapstructure:"backoff_cap"`       // Ceiling for exponential backoff
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stdout)
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".catsync"

	return &Config{
		Storage: StorageConfig{
			DataDir: dataDir,
			DBFile:  filepath.Join(dataDir, "categories.db"),
		},
		Remote: RemoteConfig{
			BaseURL:    "https://api.catsync.dev",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			UserAgent:  "catsync/1.0",
		},
		Sync: SyncConfig{
			DrainInterval: time.Minute,
			MaxAttempts:   8,
			BackoffBase:   time.Second,
			BackoffCap:    2 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Storage.DBFile == "" {
		return errors.New("storage.db_file is required")
	}

	if !c.Remote.Offline && c.Remote.BaseURL == "" {
		return errors.New("remote.base_url is required unless remote.offline is set")
	}

	if c.Remote.Timeout <= 0 {
		return errors.New("remote.timeout must be positive")
	}

	if c.Sync.MaxAttempts <= 0 {
		return errors.New("sync.max_attempts must be positive")
	}

	if c.Sync.BackoffBase <= 0 || c.Sync.BackoffCap < c.Sync.BackoffBase {
		return errors.New("sync backoff must be positive with cap >= base")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.New("log.level must be debug, info, warn or error")
	}

	return nil
}
