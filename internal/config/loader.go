package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from file and environment.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty path searches the
// default locations.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		v:          viper.New(),
	}
}

// Load reads configuration from file and environment.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigType("json")
	setDefaults(l.v)

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
	} else {
		l.v.SetConfigName("catsync")
		for _, dir := range defaultDirs() {
			l.v.AddConfigPath(dir)
		}
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config file: %w", err)
			}
			// No config file is fine; defaults + env apply.
		}
	}

	l.v.SetEnvPrefix("CATSYNC")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so environment overrides are
// visible to Unmarshal even without a config file.
func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("storage.data_dir", def.Storage.DataDir)
	v.SetDefault("storage.db_file", def.Storage.DBFile)
	v.SetDefault("storage.legacy_file", def.Storage.LegacyFile)

	v.SetDefault("remote.base_url", def.Remote.BaseURL)
	v.SetDefault("remote.token", def.Remote.Token)
	v.SetDefault("remote.timeout", def.Remote.Timeout)
	v.SetDefault("remote.max_retries", def.Remote.MaxRetries)
	v.SetDefault("remote.user_agent", def.Remote.UserAgent)
	v.SetDefault("remote.offline", def.Remote.Offline)

	v.SetDefault("sync.drain_interval", def.Sync.DrainInterval)
	v.SetDefault("sync.max_attempts", def.Sync.MaxAttempts)
	v.SetDefault("sync.backoff_base", def.Sync.BackoffBase)
	v.SetDefault("sync.backoff_cap", def.Sync.BackoffCap)

	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.file", def.Log.File)
}

// defaultDirs returns default config file locations.
func defaultDirs() []string {
	dirs := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(homeDir, ".config", "catsync"),
			filepath.Join(homeDir, ".catsync"),
		)
	}

	return dirs
}
