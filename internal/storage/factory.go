package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TheMichaelB/vocabsync/internal/config"
	"github.com/TheMichaelB/vocabsync/internal/events"
)

// Open creates the store described by cfg. An empty backend yields (nil, nil).
func Open(ctx context.Context, cfg config.BackendConfig, logger *events.Logger) (Store, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendFile:
		return wrap(NewFileStore(cfg.Path, logger))
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		return wrap(NewSQLiteStore(cfg.Path, logger))
	case config.BackendS3:
		return wrap(NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix, logger))
	case config.BackendDynamoDB:
		return wrap(NewDynamoDBStore(ctx, cfg.DynamoTable, cfg.DynamoScope, logger))
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// wrap keeps a failed constructor from yielding a non-nil Store holding a nil pointer.
func wrap[S Store](s S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
