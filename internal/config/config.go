package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// API configuration
	API APIConfig `json:"api" mapstructure:"api"`

	// Local storage backends
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Sync behavior
	Sync SyncConfig `json:"sync" mapstructure:"sync"`

	// Reference server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// APIConfig for server communication.
type APIConfig struct {
	BaseURL   string        `json:"base_url" mapstructure:"base_url"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
	UserAgent string        `json:"user_agent" mapstructure:"user_agent"`
}

// StorageConfig selects the primary and optional fallback key-value stores.
type StorageConfig struct {
	DataDir       string        `json:"data_dir" mapstructure:"data_dir"`
	Primary       BackendConfig `json:"primary" mapstructure:"primary"`
	Fallback      BackendConfig `json:"fallback" mapstructure:"fallback"`
	SchemaVersion int           `json:"schema_version" mapstructure:"schema_version"`
}

// BackendConfig describes one key-value store adapter.
type BackendConfig struct {
	Backend     string `json:"backend" mapstructure:"backend"` // memory, file, sqlite, s3, dynamodb; empty disables
	Path        string `json:"path" mapstructure:"path"`       // directory (file) or database file (sqlite)
	S3Bucket    string `json:"s3_bucket" mapstructure:"s3_bucket"`
	S3Prefix    string `json:"s3_prefix" mapstructure:"s3_prefix"`
	DynamoTable string `json:"dynamo_table" mapstructure:"dynamo_table"`
	DynamoScope string `json:"dynamo_scope" mapstructure:"dynamo_scope"` // partition namespace inside the table
}

// SyncConfig for synchronization behavior.
type SyncConfig struct {
	MaxRetries          int           `json:"max_retries" mapstructure:"max_retries"`
	InitialDelay        time.Duration `json:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay            time.Duration `json:"max_delay" mapstructure:"max_delay"`
	BackoffMultiplier   float64       `json:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	MaxBackups          int           `json:"max_backups" mapstructure:"max_backups"`
	HealthCheckInterval time.Duration `json:"health_check_interval" mapstructure:"health_check_interval"`
}

// ServerConfig for the reference sync server.
type ServerConfig struct {
	Addr       string            `json:"addr" mapstructure:"addr"`
	Tokens     map[string]string `json:"tokens" mapstructure:"tokens"` // bearer token -> user ID
	MaxBackups int               `json:"max_backups" mapstructure:"max_backups"`
	Store      BackendConfig     `json:"store" mapstructure:"store"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stderr)
	Color  bool   `json:"color" mapstructure:"color"`
}

// Storage backend names.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendS3       = "s3"
	BackendDynamoDB = "dynamodb"
)

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".vocabsync"

	return &Config{
		API: APIConfig{
			BaseURL:   "http://localhost:8787",
			Timeout:   30 * time.Second,
			UserAgent: "vocabsync/1.0",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
			Primary: BackendConfig{
				Backend: BackendSQLite,
				Path:    filepath.Join(dataDir, "vocab.db"),
			},
			Fallback: BackendConfig{
				Backend: BackendFile,
				Path:    filepath.Join(dataDir, "fallback"),
			},
			SchemaVersion: 1,
		},
		Sync: SyncConfig{
			MaxRetries:          3,
			InitialDelay:        time.Second,
			MaxDelay:            5 * time.Second,
			BackoffMultiplier:   2,
			MaxBackups:          5,
			HealthCheckInterval: 10 * time.Second,
		},
		Server: ServerConfig{
			Addr:       ":8787",
			Tokens:     map[string]string{},
			MaxBackups: 5,
			Store: BackendConfig{
				Backend: BackendSQLite,
				Path:    filepath.Join(dataDir, "server.db"),
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if err := c.Storage.Primary.validate("storage.primary", true); err != nil {
		return err
	}
	if err := c.Storage.Fallback.validate("storage.fallback", false); err != nil {
		return err
	}

	if c.Storage.SchemaVersion <= 0 {
		return errors.New("storage.schema_version must be positive")
	}

	if c.Sync.MaxRetries < 0 {
		return errors.New("sync.max_retries cannot be negative")
	}

	if c.Sync.InitialDelay <= 0 || c.Sync.MaxDelay < c.Sync.InitialDelay {
		return errors.New("sync delays must be positive and max_delay >= initial_delay")
	}

	if c.Sync.BackoffMultiplier < 1 {
		return errors.New("sync.backoff_multiplier must be at least 1")
	}

	if c.Sync.MaxBackups <= 0 {
		return errors.New("sync.max_backups must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

func (b BackendConfig) validate(name string, required bool) error {
	switch b.Backend {
	case "":
		if required {
			return fmt.Errorf("%s.backend is required", name)
		}
	case BackendMemory:
	case BackendFile, BackendSQLite:
		if b.Path == "" {
			return fmt.Errorf("%s.path is required for %s backend", name, b.Backend)
		}
	case BackendS3:
		if b.S3Bucket == "" {
			return fmt.Errorf("%s.s3_bucket is required for s3 backend", name)
		}
	case BackendDynamoDB:
		if b.DynamoTable == "" {
			return fmt.Errorf("%s.dynamo_table is required for dynamodb backend", name)
		}
	default:
		return fmt.Errorf("invalid %s.backend: %s", name, b.Backend)
	}
	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Storage.DataDir}

	for _, b := range []BackendConfig{c.Storage.Primary, c.Storage.Fallback} {
		switch b.Backend {
		case BackendFile:
			dirs = append(dirs, b.Path)
		case BackendSQLite:
			dirs = append(dirs, filepath.Dir(b.Path))
		}
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
