package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vocabsync/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.NotEmpty(t, cfg.API.BaseURL)
	assert.Positive(t, cfg.API.Timeout)
	assert.NotEmpty(t, cfg.Storage.DataDir)
	assert.Equal(t, config.BackendSQLite, cfg.Storage.Primary.Backend)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, time.Second, cfg.Sync.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.Sync.MaxDelay)
	assert.Equal(t, 2.0, cfg.Sync.BackoffMultiplier)
	assert.Equal(t, 5, cfg.Sync.MaxBackups)
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
			name: "missing base URL",
			modify: func(c *config.Config) {
				c.API.BaseURL = ""
			},
			wantErr: "api.base_url is required",
		},
		{
			name: "invalid log level",
			modify: func(c *config.Config) {
				c.Log.Level = "invalid"
			},
			wantErr: "invalid log level",
		},
		{
			name: "negative timeout",
			modify: func(c *config.Config) {
				c.API.Timeout = -1
			},
			wantErr: "api.timeout must be positive",
		},
		{
			name: "missing primary backend",
			modify: func(c *config.Config) {
				c.Storage.Primary.Backend = ""
			},
			wantErr: "storage.primary.backend is required",
		},
		{
			name: "fallback disabled",
			modify: func(c *config.Config) {
				c.Storage.Fallback = config.BackendConfig{}
			},
			wantErr: "",
		},
		{
			name: "unknown backend",
			modify: func(c *config.Config) {
				c.Storage.Fallback.Backend = "redis"
			},
			wantErr: "invalid storage.fallback.backend",
		},
		{
			name: "s3 without bucket",
			modify: func(c *config.Config) {
				c.Storage.Fallback = config.BackendConfig{Backend: config.BackendS3}
			},
			wantErr: "s3_bucket is required",
		},
		{
			name: "max delay below initial delay",
			modify: func(c *config.Config) {
				c.Sync.MaxDelay = 10 * time.Millisecond
			},
			wantErr: "max_delay >= initial_delay",
		},
		{
			name: "multiplier below one",
			modify: func(c *config.Config) {
				c.Sync.BackoffMultiplier = 0.5
			},
			wantErr: "backoff_multiplier",
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
	t.Setenv("VOCABSYNC_API_BASE_URL", "https://test.example.com")
	t.Setenv("VOCABSYNC_API_TIMEOUT", "45s")
	t.Setenv("VOCABSYNC_LOG_LEVEL", "DEBUG")
	t.Setenv("VOCABSYNC_SYNC_MAX_RETRIES", "7")

	configPath := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0644))

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "https://test.example.com", cfg.API.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.API.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Sync.MaxRetries)
	assert.Equal(t, time.Second, cfg.Sync.InitialDelay)
}

func TestLoaderFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.json")

	configJSON := `{
		"api": {
			"base_url": "https://file.example.com"
		},
		"storage": {
			"fallback": {"backend": "memory"}
		},
		"sync": {
			"initial_delay": "250ms"
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
	assert.Equal(t, configPath, loader.ConfigFile())
	assert.Equal(t, "https://file.example.com", cfg.API.BaseURL)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Fallback.Backend)
	assert.Equal(t, config.BackendSQLite, cfg.Storage.Primary.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.InitialDelay)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoaderInvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"log": {"level": "loud"}}`), 0644))

	_, err := config.NewLoader(configPath).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestConfigEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = filepath.Join(tmpDir, "data")
	cfg.Storage.Primary.Path = filepath.Join(tmpDir, "db", "vocab.db")
	cfg.Storage.Fallback.Path = filepath.Join(tmpDir, "fallback")
	cfg.Log.File = filepath.Join(tmpDir, "logs", "app.log")

	err := cfg.EnsureDirectories()
	require.NoError(t, err)

	assert.DirExists(t, cfg.Storage.DataDir)
	assert.DirExists(t, filepath.Join(tmpDir, "db"))
	assert.DirExists(t, cfg.Storage.Fallback.Path)
	assert.DirExists(t, filepath.Dir(cfg.Log.File))
}

func TestLoadLambdaConfig(t *testing.T) {
	t.Setenv("VOCAB_TABLE_NAME", "vocab-table")
	t.Setenv("VOCAB_SECRET_NAME", "vocab/tokens")
	t.Setenv("VOCAB_MAX_BACKUPS", "9")

	cfg := config.LoadLambdaConfig()

	assert.Equal(t, "vocab-table", cfg.TableName)
	assert.Equal(t, "vocab/tokens", cfg.SecretName)
	assert.Equal(t, 9, cfg.MaxBackups)
	assert.Equal(t, "info", cfg.LogLevel)

	store := cfg.ServerStore()
	assert.Equal(t, config.BackendDynamoDB, store.Backend)
	assert.Equal(t, "vocab-table", store.DynamoTable)
}
