package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Store is an asynchronous string key-value store.
// Every adapter must report a missing key from Get as ErrNotFound and
// propagate all other failures unchanged.
type Store interface {
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys lists every stored key in no particular order.
	Keys(ctx context.Context) ([]string, error)

	// Close releases resources.
	Close() error
}

// Swapper is implemented by stores that can replace a value only while it
// still holds an expected one.
type Swapper interface {
	// CompareAndSwap stores value under key if the current value equals old.
	// An empty old requires the key to be absent. It reports whether the
	// write happened; a lost race is not an error.
	CompareAndSwap(ctx context.Context, key, old, value string) (bool, error)
}

// Errors
var (
	ErrNotFound    = errors.New("key not found")
	ErrInvalidKey  = errors.New("invalid key")
	ErrUnavailable = errors.New("storage unavailable")
)

// GetJSON decodes the JSON value stored under key into v.
func GetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON stores v under key as JSON.
func SetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// KeysWithPrefix returns the keys starting with prefix, sorted.
func KeysWithPrefix(ctx context.Context, s Store, prefix string) ([]string, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}

	var matched []string
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	sort.Strings(matched)
	return matched, nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if len(key) > 512 {
		return fmt.Errorf("%w: key too long (%d bytes)", ErrInvalidKey, len(key))
	}
	return nil
}
