// Package vocab owns the local vocabulary snapshot and its sync metadata.
package vocab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/models"
	"github.com/TheMichaelB/vocabsync/internal/storage"
)

// Storage keys owned by the repository.
const (
	FileKey     = "vocab.file"
	MetadataKey = "vocab.sync_metadata"
)

// DataKeys are restored from the fallback store by the migration policy.
var DataKeys = []string{FileKey, MetadataKey}

// Repository holds the VocabFile and SyncMetadata in memory, backed by a Store.
// Every mutation marks the snapshot dirty. The mutex only guards single
// method calls; sync flows that read then write metadata are not serialized.
type Repository struct {
	store  storage.Store
	logger *events.Logger
	now    func() time.Time
	newID  func() string

	mu   sync.RWMutex
	file *models.VocabFile
	meta *models.SyncMetadata
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDGenerator overrides word ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(r *Repository) { r.newID = newID }
}

// Open loads the snapshot from store, creating an empty one on first launch.
func Open(ctx context.Context, store storage.Store, logger *events.Logger, opts ...Option) (*Repository, error) {
	r := &Repository{
		store:  store,
		logger: logger.WithField("component", "vocab_repository"),
		now:    time.Now,
		newID:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.load(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Repository) load(ctx context.Context) error {
	var file models.VocabFile
	err := storage.GetJSON(ctx, r.store, FileKey, &file)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		r.file = models.NewVocabFile(r.now().UTC())
		if err := storage.SetJSON(ctx, r.store, FileKey, r.file); err != nil {
			return &models.StorageError{Op: "init", Key: FileKey, Err: err}
		}
		r.logger.Info("Created empty vocabulary file")
	case err != nil:
		return &models.StorageError{Op: "load", Key: FileKey, Err: err}
	default:
		file.Normalize()
		r.file = &file
	}

	var meta models.SyncMetadata
	err = storage.GetJSON(ctx, r.store, MetadataKey, &meta)
	switch {
	case errors.Is(err, storage.ErrNotFound) || (err == nil && meta.ClientID == ""):
		r.meta = models.NewSyncMetadata(uuid.NewString())
		if err := storage.SetJSON(ctx, r.store, MetadataKey, r.meta); err != nil {
			return &models.StorageError{Op: "init", Key: MetadataKey, Err: err}
		}
		r.logger.WithField("client_id", r.meta.ClientID).Info("Generated client identifier")
	case err != nil:
		return &models.StorageError{Op: "load", Key: MetadataKey, Err: err}
	default:
		r.meta = &meta
	}

	r.logger.WithFields(map[string]interface{}{
		"words":      len(r.file.Words),
		"server_rev": r.meta.ServerRev,
		"dirty":      r.meta.Dirty,
	}).Debug("Loaded local snapshot")

	return nil
}

// mutate applies fn to a copy of the file and persists it with dirty=true.
// Metadata is written first so a failed file write can only over-report dirtiness.
func (r *Repository) mutate(ctx context.Context, fn func(file *models.VocabFile, now time.Time) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	next := r.file.Clone()
	if err := fn(next, now); err != nil {
		return err
	}
	next.UpdatedAt = now

	if !r.meta.Dirty {
		meta := r.meta.Clone()
		meta.Dirty = true
		if err := storage.SetJSON(ctx, r.store, MetadataKey, meta); err != nil {
			return &models.StorageError{Op: "save", Key: MetadataKey, Err: err}
		}
		r.meta = meta
	}

	if err := storage.SetJSON(ctx, r.store, FileKey, next); err != nil {
		return &models.StorageError{Op: "save", Key: FileKey, Err: err}
	}
	r.file = next

	return nil
}

// CreateWord adds a word with a fresh memory state.
func (r *Repository) CreateWord(ctx context.Context, in models.WordInput) (*models.WordEntry, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	var created models.WordEntry
	err := r.mutate(ctx, func(file *models.VocabFile, now time.Time) error {
		created = models.WordEntry{
			ID:            r.newID(),
			Headword:      in.Headword,
			Pronunciation: in.Pronunciation,
			PartOfSpeech:  in.PartOfSpeech,
			Meaning:       in.Meaning,
			Examples:      withExampleIDs(in.Examples),
			Tags:          in.Tags,
			Memo:          in.Memo,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		file.Words = append(file.Words, created)
		file.Memory = append(file.Memory, models.NewMemoryState(created.ID, now))
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"word_id":  created.ID,
		"headword": created.Headword,
	}).Debug("Created word")

	return &created, nil
}

// UpdateWord replaces the editable fields of a word.
func (r *Repository) UpdateWord(ctx context.Context, id string, in models.WordInput) (*models.WordEntry, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	var updated models.WordEntry
	err := r.mutate(ctx, func(file *models.VocabFile, now time.Time) error {
		i := file.WordIndex(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", models.ErrWordNotFound, id)
		}

		updated = models.WordEntry{
			ID:            id,
			Headword:      in.Headword,
			Pronunciation: in.Pronunciation,
			PartOfSpeech:  in.PartOfSpeech,
			Meaning:       in.Meaning,
			Examples:      withExampleIDs(in.Examples),
			Tags:          in.Tags,
			Memo:          in.Memo,
			CreatedAt:     file.Words[i].CreatedAt,
			UpdatedAt:     now,
		}
		file.Words[i] = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

// DeleteWord removes a word and its memory state.
func (r *Repository) DeleteWord(ctx context.Context, id string) error {
	return r.mutate(ctx, func(file *models.VocabFile, now time.Time) error {
		i := file.WordIndex(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", models.ErrWordNotFound, id)
		}
		file.Words = append(file.Words[:i], file.Words[i+1:]...)

		if m := file.MemoryIndex(id); m >= 0 {
			file.Memory = append(file.Memory[:m], file.Memory[m+1:]...)
		}
		return nil
	})
}

// GradeCard records a review and reschedules the word.
func (r *Repository) GradeCard(ctx context.Context, wordID string, rating models.Rating) (*models.MemoryState, error) {
	var graded models.MemoryState
	err := r.mutate(ctx, func(file *models.VocabFile, now time.Time) error {
		if file.WordIndex(wordID) < 0 {
			return fmt.Errorf("%w: %s", models.ErrWordNotFound, wordID)
		}

		i := file.MemoryIndex(wordID)
		if i < 0 {
			file.Memory = append(file.Memory, models.NewMemoryState(wordID, now))
			i = len(file.Memory) - 1
		}

		graded = Schedule(file.Memory[i], rating, now)
		file.Memory[i] = graded
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"word_id":  wordID,
		"rating":   string(rating),
		"interval": graded.IntervalDays,
	}).Debug("Graded card")

	return &graded, nil
}

// ResetMemory returns a word to the never-reviewed state.
func (r *Repository) ResetMemory(ctx context.Context, wordID string) (*models.MemoryState, error) {
	var reset models.MemoryState
	err := r.mutate(ctx, func(file *models.VocabFile, now time.Time) error {
		if file.WordIndex(wordID) < 0 {
			return fmt.Errorf("%w: %s", models.ErrWordNotFound, wordID)
		}

		reset = models.NewMemoryState(wordID, now)
		if i := file.MemoryIndex(wordID); i >= 0 {
			file.Memory[i] = reset
		} else {
			file.Memory = append(file.Memory, reset)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reset, nil
}

// GetWord returns a copy of the word with id.
func (r *Repository) GetWord(id string) (*models.WordEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.file.WordIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrWordNotFound, id)
	}

	w := r.file.Clone().Words[i]
	return &w, nil
}

// Memory returns the memory state of a word, or the default state if none is stored.
func (r *Repository) Memory(wordID string) models.MemoryState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.file.MemoryFor(wordID); ok {
		return m
	}
	return models.NewMemoryState(wordID, r.now().UTC())
}

// Card pairs a word with its memory state.
type Card struct {
	Word   models.WordEntry   `json:"word"`
	Memory models.MemoryState `json:"memory"`
}

// GetNextDueCard returns the matching word with the earliest due time, or nil.
// Words without a stored memory state are due now. Ties keep file order.
func (r *Repository) GetNextDueCard(tags []string) *Card {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now().UTC()
	var best *Card

	for _, w := range r.file.Words {
		if !matchesAnyTag(&w, tags) {
			continue
		}

		mem, ok := r.file.MemoryFor(w.ID)
		if !ok {
			mem = models.NewMemoryState(w.ID, now)
		}

		if best == nil || mem.DueAt.Before(best.Memory.DueAt) {
			best = &Card{Word: w, Memory: mem}
		}
	}

	if best == nil {
		return nil
	}

	out := &Card{Word: best.Word, Memory: best.Memory}
	out.Word.Tags = append([]string(nil), best.Word.Tags...)
	out.Word.Examples = append([]models.ExampleSentence(nil), best.Word.Examples...)
	return out
}

// Snapshot returns a deep copy of the current file.
func (r *Repository) Snapshot() *models.VocabFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.file.Clone()
}

// Metadata returns a copy of the current sync metadata.
func (r *Repository) Metadata() *models.SyncMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meta.Clone()
}

// MarkSynced records that the server acknowledged the local file at serverRev.
func (r *Repository) MarkSynced(ctx context.Context, serverRev int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta := r.meta.Clone()
	meta.MarkSynced(serverRev, at)

	if err := storage.SetJSON(ctx, r.store, MetadataKey, meta); err != nil {
		return &models.StorageError{Op: "save", Key: MetadataKey, Err: err}
	}
	r.meta = meta

	return nil
}

// ReplaceFromServer overwrites the local file with the server's copy and marks it synced.
// The file is stored as received.
func (r *Repository) ReplaceFromServer(ctx context.Context, file *models.VocabFile, serverRev int64, at time.Time) error {
	if file == nil {
		return errors.New("server file is empty")
	}

	next := file.Clone()
	next.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := storage.SetJSON(ctx, r.store, FileKey, next); err != nil {
		return &models.StorageError{Op: "save", Key: FileKey, Err: err}
	}

	// The stored file must not run ahead of the metadata that names its
	// revision, so a failed metadata write puts the previous file back.
	meta := r.meta.Clone()
	meta.MarkSynced(serverRev, at)
	if err := storage.SetJSON(ctx, r.store, MetadataKey, meta); err != nil {
		if rerr := storage.SetJSON(ctx, r.store, FileKey, r.file); rerr != nil {
			r.logger.WithError(rerr).Error("Failed to restore local file after metadata write failed")
		}
		return &models.StorageError{Op: "save", Key: MetadataKey, Err: err}
	}
	r.file = next
	r.meta = meta

	r.logger.WithFields(map[string]interface{}{
		"server_rev": serverRev,
		"words":      len(next.Words),
	}).Info("Replaced local file with server copy")

	return nil
}

func withExampleIDs(examples []models.ExampleSentence) []models.ExampleSentence {
	out := make([]models.ExampleSentence, len(examples))
	for i, ex := range examples {
		if ex.ID == "" {
			ex.ID = uuid.NewString()
		}
		out[i] = ex
	}
	return out
}

func matchesAnyTag(w *models.WordEntry, tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if w.HasTag(t) {
			return true
		}
	}
	return false
}
