package vocab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TheMichaelB/vocabsync/internal/models"
)

// ImportMode selects how imported data combines with the local file.
type ImportMode string

const (
	// ImportReplace discards the local file. Callers back it up first.
	ImportReplace ImportMode = "replace"
	// ImportMerge upserts words by ID and memory states by word ID.
	ImportMerge ImportMode = "merge"
)

// ImportResult summarizes an import.
type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// Import applies data to the local file and marks it dirty.
func (r *Repository) Import(ctx context.Context, data *models.VocabFile, mode ImportMode) (*ImportResult, error) {
	if data == nil {
		return nil, fmt.Errorf("import: no data")
	}
	if mode != ImportReplace && mode != ImportMerge {
		return nil, fmt.Errorf("import: unknown mode %q", mode)
	}

	incoming := data.Clone()
	result := &ImportResult{}

	err := r.mutate(ctx, func(file *models.VocabFile, now time.Time) error {
		prepareImported(incoming, now)

		if mode == ImportReplace {
			file.Words = incoming.Words
			file.Memory = incoming.Memory
			result.Added = len(incoming.Words)
			result.Total = len(file.Words)
			return nil
		}

		for _, w := range incoming.Words {
			if i := file.WordIndex(w.ID); i >= 0 {
				file.Words[i] = w
				result.Updated++
			} else {
				file.Words = append(file.Words, w)
				result.Added++
			}
		}
		for _, m := range incoming.Memory {
			if file.WordIndex(m.WordID) < 0 {
				continue
			}
			if i := file.MemoryIndex(m.WordID); i >= 0 {
				file.Memory[i] = m
			} else {
				file.Memory = append(file.Memory, m)
			}
		}
		result.Total = len(file.Words)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"mode":    string(mode),
		"added":   result.Added,
		"updated": result.Updated,
	}).Info("Imported vocabulary")

	return result, nil
}

// ParseVocabFile decodes an exported or backed-up file.
func ParseVocabFile(data []byte) (*models.VocabFile, error) {
	var file models.VocabFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode vocabulary file: %w", err)
	}
	file.Normalize()
	return &file, nil
}

// Export encodes the current file as indented JSON.
func (r *Repository) Export() ([]byte, error) {
	data, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode vocabulary file: %w", err)
	}
	return data, nil
}

// ExportFileName is the default name of an export written at now.
func ExportFileName(now time.Time) string {
	return fmt.Sprintf("vocab-backup-%s.json", now.UTC().Format("2006-01-02T15-04-05Z"))
}

// prepareImported fills missing IDs and timestamps, drops duplicate words and
// orphaned or duplicate memory states, and gives every word a memory state.
func prepareImported(file *models.VocabFile, now time.Time) {
	file.Normalize()

	seenWords := make(map[string]bool, len(file.Words))
	words := file.Words[:0]
	for _, w := range file.Words {
		if w.ID == "" {
			w.ID = uuid.NewString()
		}
		if seenWords[w.ID] {
			continue
		}
		seenWords[w.ID] = true

		if w.CreatedAt.IsZero() {
			w.CreatedAt = now
		}
		if w.UpdatedAt.IsZero() {
			w.UpdatedAt = w.CreatedAt
		}
		if !w.PartOfSpeech.Valid() {
			w.PartOfSpeech = models.PosOther
		}
		if w.Tags == nil {
			w.Tags = []string{}
		}
		w.Examples = withExampleIDs(w.Examples)
		words = append(words, w)
	}
	file.Words = words

	seenMemory := make(map[string]bool, len(file.Memory))
	memory := file.Memory[:0]
	for _, m := range file.Memory {
		if !seenWords[m.WordID] || seenMemory[m.WordID] {
			continue
		}
		seenMemory[m.WordID] = true
		if m.Ease == 0 {
			m.Ease = models.DefaultEase
		}
		if m.DueAt.IsZero() {
			m.DueAt = now
		}
		memory = append(memory, m)
	}
	for _, w := range file.Words {
		if !seenMemory[w.ID] {
			memory = append(memory, models.NewMemoryState(w.ID, now))
		}
	}
	file.Memory = memory
}
