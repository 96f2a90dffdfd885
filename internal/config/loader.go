package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. VOCABSYNC_LOG_LEVEL.
const EnvPrefix = "VOCABSYNC"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		configPath: configPath,
		v:          v,
	}
}

// Load reads configuration from defaults, file and environment, in that order.
func (l *Loader) Load() (*Config, error) {
	registerDefaults(l.v, DefaultConfig())

	if l.configPath == "" {
		for _, path := range l.defaultPaths() {
			if _, err := os.Stat(path); err == nil {
				l.configPath = path
				break
			}
		}
	}

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if cfg.Server.Tokens == nil {
		cfg.Server.Tokens = map[string]string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ConfigFile returns the file that was loaded, if any.
func (l *Loader) ConfigFile() string {
	return l.configPath
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{
		"vocabsync.json",
		".vocabsync.json",
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "vocabsync", "config.json"),
			filepath.Join(homeDir, ".vocabsync", "config.json"),
		)
	}

	return paths
}

// registerDefaults makes every key known to viper so environment overrides apply.
func registerDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("api.user_agent", cfg.API.UserAgent)

	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	v.SetDefault("storage.schema_version", cfg.Storage.SchemaVersion)
	registerBackend(v, "storage.primary", cfg.Storage.Primary)
	registerBackend(v, "storage.fallback", cfg.Storage.Fallback)

	v.SetDefault("sync.max_retries", cfg.Sync.MaxRetries)
	v.SetDefault("sync.initial_delay", cfg.Sync.InitialDelay)
	v.SetDefault("sync.max_delay", cfg.Sync.MaxDelay)
	v.SetDefault("sync.backoff_multiplier", cfg.Sync.BackoffMultiplier)
	v.SetDefault("sync.max_backups", cfg.Sync.MaxBackups)
	v.SetDefault("sync.health_check_interval", cfg.Sync.HealthCheckInterval)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.tokens", cfg.Server.Tokens)
	v.SetDefault("server.max_backups", cfg.Server.MaxBackups)
	registerBackend(v, "server.store", cfg.Server.Store)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.color", cfg.Log.Color)
}

func registerBackend(v *viper.Viper, prefix string, b BackendConfig) {
	v.SetDefault(prefix+".backend", b.Backend)
	v.SetDefault(prefix+".path", b.Path)
	v.SetDefault(prefix+".s3_bucket", b.S3Bucket)
	v.SetDefault(prefix+".s3_prefix", b.S3Prefix)
	v.SetDefault(prefix+".dynamo_table", b.DynamoTable)
	v.SetDefault(prefix+".dynamo_scope", b.DynamoScope)
}

// SaveExample writes an example config file.
func SaveExample(path string) error {
	cfg := DefaultConfig()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
