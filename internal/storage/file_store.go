package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/TheMichaelB/vocabsync/internal/events"
)

const fileStoreExt = ".kv"

// FileStore keeps one file per key inside a directory.
type FileStore struct {
	baseDir string
	logger  *events.Logger

	mu sync.RWMutex
}

// NewFileStore creates a file-backed store rooted at baseDir.
func NewFileStore(baseDir string, logger *events.Logger) (*FileStore, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &FileStore{
		baseDir: absPath,
		logger:  logger.WithField("component", "file_store"),
	}, nil
}

// Get reads the file for key.
func (s *FileStore) Get(ctx context.Context, key string) (string, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return string(data), nil
}

// Set writes the file for key atomically.
func (s *FileStore) Set(ctx context.Context, key, value string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(key, path, value)
}

// CompareAndSwap replaces the file for key if it still holds old. The check
// is atomic only among callers sharing this FileStore.
func (s *FileStore) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if old != "" {
			return false, nil
		}
	case err != nil:
		return false, fmt.Errorf("read %s: %w", key, err)
	case old == "" || string(data) != old:
		return false, nil
	}

	if err := s.write(key, path, value); err != nil {
		return false, err
	}
	return true, nil
}

// write replaces path through a temp file. Callers hold s.mu.
func (s *FileStore) write(key, path, value string) error {
	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(value),
	}).Debug("Writing key")

	tmp, err := os.CreateTemp(s.baseDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}

// Remove deletes the file for key.
func (s *FileStore) Remove(ctx context.Context, key string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys.
func (s *FileStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileStoreExt) {
			continue
		}

		key, err := decodeFileKey(strings.TrimSuffix(name, fileStoreExt))
		if err != nil {
			s.logger.WithField("file", name).Warn("Skipping unreadable key file")
			continue
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// Close releases resources.
func (s *FileStore) Close() error {
	return nil
}

// Dir returns the directory backing the store.
func (s *FileStore) Dir() string {
	return s.baseDir
}

func (s *FileStore) keyPath(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	name := encodeFileKey(key) + fileStoreExt
	if len(name) > 255 {
		return "", fmt.Errorf("%w: encoded key exceeds file name limit", ErrInvalidKey)
	}

	return filepath.Join(s.baseDir, name), nil
}

// encodeFileKey escapes every byte outside [A-Za-z0-9._-] as %XX, and a
// leading dot, so the result is a safe single path element on any platform.
func encodeFileKey(key string) string {
	var sb strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		safe := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '_' || c == '-' || (c == '.' && i > 0)
		if safe {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, "%%%02X", c)
	}
	return sb.String()
}

func decodeFileKey(name string) (string, error) {
	key, err := url.PathUnescape(name)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.New("empty key")
	}
	return key, nil
}
