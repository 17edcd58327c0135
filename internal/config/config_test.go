package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdelaney/catsync/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.NotEmpty(t, cfg.Remote.BaseURL)
	assert.Positive(t, cfg.Remote.Timeout)
	assert.NotEmpty(t, cfg.Storage.DBFile)
	assert.Positive(t, cfg.Sync.MaxAttempts)
	assert.Positive(t, cfg.Sync.DrainInterval)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr string
	}{
		{
			name:    "valid config",
			modify:  func(c *config.Config) {},
			wantErr: "",
		},
		{
			name: "missing db file",
			modify: func(c *config.Config) {
				c.Storage.DBFile = ""
			},
			wantErr: "storage.db_file is required",
		},
		{
			name: "missing base URL",
			modify: func(c *config.Config) {
				c.Remote.BaseURL = ""
			},
			wantErr: "remote.base_url is required",
		},
		{
			name: "offline tolerates missing base URL",
			modify: func(c *config.Config) {
				c.Remote.BaseURL = ""
				c.Remote.Offline = true
			},
			wantErr: "",
		},
		{
			name: "negative timeout",
			modify: func(c *config.Config) {
				c.Remote.Timeout = -1
			},
			wantErr: "remote.timeout must be positive",
		},
		{
			name: "zero max attempts",
			modify: func(c *config.Config) {
				c.Sync.MaxAttempts = 0
			},
			wantErr: "sync.max_attempts must be positive",
		},
		{
			name: "backoff cap below base",
			modify: func(c *config.Config) {
				c.Sync.BackoffBase = time.Minute
				c.Sync.BackoffCap = time.Second
			},
			wantErr: "sync backoff must be positive",
		},
		{
			name: "invalid log level",
			modify: func(c *config.Config) {
				c.Log.Level = "verbose"
			},
			wantErr: "log.level must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoaderEnv(t *testing.T) {
	t.Setenv("CATSYNC_REMOTE_BASE_URL", "https://test.example.com")
	t.Setenv("CATSYNC_REMOTE_TIMEOUT", "45s")
	t.Setenv("CATSYNC_LOG_LEVEL", "debug")
	t.Setenv("CATSYNC_SYNC_MAX_ATTEMPTS", "5")

	loader := config.NewLoader("")
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "https://test.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
}

func TestLoaderFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.json")

	configJSON := `{
		"remote": {
			"base_url": "https://file.example.com"
		},
		"log": {
			"level": "warn",
			"format": "json"
		}
	}`

	err := os.WriteFile(configPath, []byte(configJSON), 0644)
	require.NoError(t, err)

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "https://file.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Unset sections keep their defaults.
	assert.Equal(t, config.DefaultConfig().Sync.MaxAttempts, cfg.Sync.MaxAttempts)
}

func TestLoaderMissingExplicitFile(t *testing.T) {
	loader := config.NewLoader(filepath.Join(t.TempDir(), "absent.json"))
	_, err := loader.Load()
	assert.Error(t, err, "an explicitly named config file must exist")
}

func TestLoaderInvalidConfigRejected(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.json")

	require.NoError(t, os.WriteFile(configPath, []byte(`{"log":{"level":"verbose"}}`), 0644))

	loader := config.NewLoader(configPath)
	_, err := loader.Load()
	assert.ErrorContains(t, err, "invalid config")
}
