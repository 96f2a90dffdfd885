package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/models"
)

// VersionKey is where the schema version marker is stored.
const VersionKey = "storage.schema.version"

// MigrateFunc upgrades the data in store from one schema version to another.
type MigrateFunc func(ctx context.Context, store Store, fromVersion, toVersion int) error

// PrepareOptions configures Prepare.
type PrepareOptions struct {
	Primary       Store
	Fallback      Store // optional
	DataKeys      []string
	TargetVersion int
	MetadataKey   string      // defaults to VersionKey
	Migrate       MigrateFunc // optional
	Logger        *events.Logger
	Now           func() time.Time
}

// PrepareResult reports which store is ready for use.
type PrepareResult struct {
	Store        Store
	UsedFallback bool
	Migrated     bool
	Version      int
}

// Prepare brings a store to TargetVersion. A primary without a version marker
// is restored from the fallback when the fallback has one; any primary failure
// switches to the fallback entirely.
func Prepare(ctx context.Context, opts PrepareOptions) (*PrepareResult, error) {
	if opts.Primary == nil {
		return nil, errors.New("primary store is required")
	}
	if opts.MetadataKey == "" {
		opts.MetadataKey = VersionKey
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = events.NewNopLogger()
	}
	logger := opts.Logger.WithField("component", "storage_migration")

	result, primaryErr := prepareWithRestore(ctx, opts, logger)
	if primaryErr == nil {
		return result, nil
	}

	if opts.Fallback == nil {
		return nil, primaryErr
	}

	logger.WithError(primaryErr).Warn("Primary storage failed, using fallback")

	return prepareFallback(ctx, opts)
}

func prepareWithRestore(ctx context.Context, opts PrepareOptions, logger *events.Logger) (*PrepareResult, error) {
	snapshot, err := readVersion(ctx, opts.Primary, opts.MetadataKey)
	if err != nil {
		return nil, fmt.Errorf("read primary version: %w", err)
	}

	if snapshot == nil && opts.Fallback != nil {
		fallbackSnapshot, err := readVersion(ctx, opts.Fallback, opts.MetadataKey)
		if err != nil {
			logger.WithError(err).Warn("Cannot read fallback version")
		} else if fallbackSnapshot != nil {
			logger.WithField("version", fallbackSnapshot.Version).Info("Restoring primary storage from fallback")

			if err := copyKeys(ctx, opts.Fallback, opts.Primary, opts.DataKeys); err != nil {
				return nil, fmt.Errorf("restore from fallback: %w", err)
			}
			if err := writeVersion(ctx, opts.Primary, opts.MetadataKey, fallbackSnapshot.Version, opts.Now()); err != nil {
				return nil, fmt.Errorf("write restored version: %w", err)
			}
		}
	}

	return prepareOn(ctx, opts.Primary, opts)
}

func prepareOn(ctx context.Context, store Store, opts PrepareOptions) (*PrepareResult, error) {
	snapshot, err := readVersion(ctx, store, opts.MetadataKey)
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}

	fromVersion := 0
	if snapshot != nil {
		fromVersion = snapshot.Version
	}

	result := &PrepareResult{
		Store:   store,
		Version: max(fromVersion, opts.TargetVersion),
	}

	if fromVersion < opts.TargetVersion {
		if opts.Migrate != nil {
			if err := opts.Migrate(ctx, store, fromVersion, opts.TargetVersion); err != nil {
				return nil, fmt.Errorf("migrate %d -> %d: %w", fromVersion, opts.TargetVersion, err)
			}
		}
		if err := writeVersion(ctx, store, opts.MetadataKey, opts.TargetVersion, opts.Now()); err != nil {
			return nil, fmt.Errorf("write version: %w", err)
		}
		result.Migrated = true
	}

	return result, nil
}

func prepareFallback(ctx context.Context, opts PrepareOptions) (*PrepareResult, error) {
	snapshot, err := readVersion(ctx, opts.Fallback, opts.MetadataKey)
	if err != nil {
		return nil, fmt.Errorf("read fallback version: %w", err)
	}

	fromVersion := 0
	if snapshot != nil {
		fromVersion = snapshot.Version
	}

	result := &PrepareResult{
		Store:        opts.Fallback,
		UsedFallback: true,
		Version:      max(fromVersion, opts.TargetVersion),
	}

	if fromVersion < opts.TargetVersion && opts.Migrate != nil {
		if err := opts.Migrate(ctx, opts.Fallback, fromVersion, opts.TargetVersion); err != nil {
			return nil, fmt.Errorf("migrate fallback %d -> %d: %w", fromVersion, opts.TargetVersion, err)
		}
		if err := writeVersion(ctx, opts.Fallback, opts.MetadataKey, opts.TargetVersion, opts.Now()); err != nil {
			return nil, fmt.Errorf("write fallback version: %w", err)
		}
		result.Migrated = true
	}

	return result, nil
}

// readVersion returns nil when the marker is absent or unreadable.
func readVersion(ctx context.Context, store Store, key string) (*models.StorageVersionSnapshot, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, nil
	}
	if _, ok := fields["version"]; !ok {
		return nil, nil
	}
	if _, ok := fields["updatedAt"]; !ok {
		return nil, nil
	}

	var snapshot models.StorageVersionSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, nil
	}
	return &snapshot, nil
}

func writeVersion(ctx context.Context, store Store, key string, version int, now time.Time) error {
	return SetJSON(ctx, store, key, models.StorageVersionSnapshot{
		Version:   version,
		UpdatedAt: now.UTC(),
	})
}

func copyKeys(ctx context.Context, src, dst Store, keys []string) error {
	for _, key := range keys {
		value, err := src.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		if err := dst.Set(ctx, key, value); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	return nil
}
