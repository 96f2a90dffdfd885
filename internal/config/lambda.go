package config

import (
	"os"
	"strconv"
)

// LambdaConfig contains settings for the serverless sync server.
type LambdaConfig struct {
	TableName  string `json:"table_name"`
	TableScope string `json:"table_scope"`
	SecretName string `json:"secret_name"`
	MaxBackups int    `json:"max_backups"`
	LogLevel   string `json:"log_level"`
}

// LoadLambdaConfig loads configuration for Lambda environment
func LoadLambdaConfig() *LambdaConfig {
	cfg := &LambdaConfig{
		TableName:  os.Getenv("VOCAB_TABLE_NAME"),
		TableScope: os.Getenv("VOCAB_TABLE_SCOPE"),
		SecretName: os.Getenv("VOCAB_SECRET_NAME"),
		MaxBackups: 5,
		LogLevel:   os.Getenv("LOG_LEVEL"),
	}

	if v := os.Getenv("VOCAB_MAX_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxBackups = n
		}
	}

	if cfg.TableName == "" {
		cfg.TableName = "vocabsync-server"
	}
	if cfg.TableScope == "" {
		cfg.TableScope = "server"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg
}

// ServerStore returns the backend used by the Lambda server.
func (c *LambdaConfig) ServerStore() BackendConfig {
	return BackendConfig{
		Backend:     BackendDynamoDB,
		DynamoTable: c.TableName,
		DynamoScope: c.TableScope,
	}
}

// IsLambdaEnvironment checks if running in Lambda
func IsLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}
