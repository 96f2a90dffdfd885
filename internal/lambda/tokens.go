package lambda

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// tokenSecret is the JSON payload of the tokens secret. Two layouts work:
//
//	{"tokens": {"<token>": "<user>"}}
//	{"tokens": {"<token>": {"user_id": "<user>"}}}
type tokenSecret struct {
	Tokens json.RawMessage `json:"tokens"`
}

// LoadTokens reads the bearer-token map from Secrets Manager.
func LoadTokens(ctx context.Context, secretID string) (map[string]string, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return LoadTokensWithClient(ctx, secretsmanager.NewFromConfig(cfg), secretID)
}

// LoadTokensWithClient reads the bearer-token map using client.
func LoadTokensWithClient(ctx context.Context, client SecretsAPI, secretID string) (map[string]string, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &secretID})
	if err != nil {
		return nil, fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret has no string payload")
	}
	return ParseTokens([]byte(*out.SecretString))
}

// ParseTokens decodes a token secret payload.
func ParseTokens(data []byte) (map[string]string, error) {
	var secret tokenSecret
	if err := json.Unmarshal(data, &secret); err != nil {
		return nil, fmt.Errorf("parse secret json: %w", err)
	}
	if len(secret.Tokens) == 0 {
		return map[string]string{}, nil
	}

	// flat first
	var flat map[string]string
	if err := json.Unmarshal(secret.Tokens, &flat); err == nil {
		return flat, nil
	}

	var nested map[string]struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(secret.Tokens, &nested); err != nil {
		return nil, fmt.Errorf("parse tokens: %w", err)
	}
	out := make(map[string]string, len(nested))
	for token, v := range nested {
		out[token] = v.UserID
	}
	return out, nil
}
