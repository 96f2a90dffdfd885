// Package backup keeps timestamped copies of the local vocabulary file so a
// destructive replace can be undone.
package backup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/models"
	"github.com/TheMichaelB/vocabsync/internal/storage"
)

const (
	// DefaultPrefix starts every backup key.
	DefaultPrefix = "vocab_backup_"
	// DefaultMaxBackups is the retention count when none is configured.
	DefaultMaxBackups = 5
	// TimestampLayout sorts lexicographically in chronological order.
	TimestampLayout = "2006-01-02T15:04:05.000Z"
	// RevisionFormat names a backup by the revision it preserves. The padding
	// keeps lexicographic order equal to revision order.
	RevisionFormat = "rev%020d"
)

// Entry describes one stored backup.
type Entry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service writes and prunes backups in a key-value store.
type Service struct {
	store      storage.Store
	prefix     string
	maxBackups int
	now        func() time.Time
	logger     *events.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPrefix stores backups under a different key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Service) { s.prefix = prefix }
}

// WithMaxBackups sets the retention count. Values below 1 are ignored.
func WithMaxBackups(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBackups = n
		}
	}
}

// WithClock overrides the time source used for backup keys.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a backup service over store.
func NewService(store storage.Store, logger *events.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		prefix:     DefaultPrefix,
		maxBackups: DefaultMaxBackups,
		now:        time.Now,
		logger:     logger.WithField("component", "backup"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxBackups returns the retention count.
func (s *Service) MaxBackups() int {
	return s.maxBackups
}

// Backup stores file under a new timestamped key and prunes old backups.
// A failed prune is logged; the backup itself is still reported.
func (s *Service) Backup(ctx context.Context, file *models.VocabFile) (string, error) {
	return s.write(ctx, s.prefix+s.now().UTC().Format(TimestampLayout), file)
}

// BackupRevision stores file under a key derived from rev, so two backups of
// different revisions never share a key however close together they are taken.
func (s *Service) BackupRevision(ctx context.Context, file *models.VocabFile, rev int64) (string, error) {
	return s.write(ctx, s.prefix+fmt.Sprintf(RevisionFormat, rev), file)
}

func (s *Service) write(ctx context.Context, key string, file *models.VocabFile) (string, error) {
	if file == nil {
		return "", fmt.Errorf("backup: no file")
	}

	if err := storage.SetJSON(ctx, s.store, key, file); err != nil {
		return "", fmt.Errorf("write backup %s: %w", key, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":   key,
		"words": len(file.Words),
	}).Info("Backed up vocabulary")

	if _, err := s.Prune(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to prune backups")
	}

	return key, nil
}

// Prune deletes the oldest backups beyond the retention count and returns how
// many were removed.
func (s *Service) Prune(ctx context.Context) (int, error) {
	keys, err := storage.KeysWithPrefix(ctx, s.store, s.prefix)
	if err != nil {
		return 0, fmt.Errorf("list backups: %w", err)
	}

	excess := len(keys) - s.maxBackups
	if excess <= 0 {
		return 0, nil
	}

	removed := 0
	for _, key := range keys[:excess] {
		if err := s.store.Remove(ctx, key); err != nil {
			return removed, fmt.Errorf("remove backup %s: %w", key, err)
		}
		removed++
		s.logger.WithField("key", key).Debug("Pruned backup")
	}

	return removed, nil
}

// List returns the stored backups, newest first.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	keys, err := storage.KeysWithPrefix(ctx, s.store, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		ts, err := time.Parse(TimestampLayout, strings.TrimPrefix(key, s.prefix))
		if err != nil {
			s.logger.WithField("key", key).Debug("Skipping key with unparseable timestamp")
			continue
		}
		entries = append(entries, Entry{Key: key, CreatedAt: ts})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Key > entries[j].Key
	})

	return entries, nil
}

// Load reads a backup. key may be given with or without the prefix.
func (s *Service) Load(ctx context.Context, key string) (*models.VocabFile, error) {
	if !strings.HasPrefix(key, s.prefix) {
		key = s.prefix + key
	}

	var file models.VocabFile
	if err := storage.GetJSON(ctx, s.store, key, &file); err != nil {
		return nil, fmt.Errorf("read backup %s: %w", key, err)
	}
	file.Normalize()

	return &file, nil
}
