package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/TheMichaelB/vocabsync/internal/config"
	"github.com/TheMichaelB/vocabsync/internal/events"
	vocablambda "github.com/TheMichaelB/vocabsync/internal/lambda"
	"github.com/TheMichaelB/vocabsync/internal/server"
	"github.com/TheMichaelB/vocabsync/internal/storage"
)

// Global handler instance for reuse across warm starts
var h *vocablambda.Handler

func init() {
	// Initialize handler once during cold start
	var err error
	h, err = newHandler(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize handler: %v", err)
	}
}

func newHandler(ctx context.Context) (*vocablambda.Handler, error) {
	cfg := config.LoadLambdaConfig()

	logger, err := events.NewLogger(&config.LogConfig{
		Level:  cfg.LogLevel,
		Format: "json",
	})
	if err != nil {
		return nil, err
	}
	if !config.IsLambdaEnvironment() {
		logger.Warn("AWS_LAMBDA_FUNCTION_NAME not set; running outside Lambda")
	}

	store, err := storage.Open(ctx, cfg.ServerStore(), logger)
	if err != nil {
		return nil, err
	}

	tokens := map[string]string{}
	if cfg.SecretName != "" {
		tokens, err = vocablambda.LoadTokens(ctx, cfg.SecretName)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Warn("VOCAB_SECRET_NAME not set; all requests are accepted as the local user")
	}

	logger.WithFields(map[string]interface{}{
		"table":  cfg.TableName,
		"scope":  cfg.TableScope,
		"tokens": len(tokens),
	}).Info("Lambda sync server initialized")

	srv := server.New(store, server.Options{
		Tokens:     tokens,
		MaxBackups: cfg.MaxBackups,
	}, logger)

	return vocablambda.NewHandler(srv, logger), nil
}

func main() {
	lambda.Start(h.Handle)
}
