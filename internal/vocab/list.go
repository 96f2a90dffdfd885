package vocab

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TheMichaelB/vocabsync/internal/models"
)

// Sort fields accepted by ListOptions.
const (
	SortHeadword  = "headword"
	SortCreatedAt = "createdAt"
	SortUpdatedAt = "updatedAt"
)

// ListOptions filters, orders and pages ListWords.
type ListOptions struct {
	Query        string // case-insensitive match on headword or meaning
	Tags         []string
	PartOfSpeech models.PartOfSpeech
	SortBy       string
	Desc         bool
	Offset       int
	Limit        int // 0 means no limit
}

// ListResult is one page of words.
type ListResult struct {
	Words  []models.WordEntry            `json:"words"`
	Memory map[string]models.MemoryState `json:"memory"`
	Total  int                           `json:"total"`
}

// Validate checks the sort field and paging values.
func (o ListOptions) Validate() error {
	switch o.SortBy {
	case "", SortHeadword, SortCreatedAt, SortUpdatedAt:
	default:
		return fmt.Errorf("invalid sort field %q", o.SortBy)
	}
	if o.Offset < 0 || o.Limit < 0 {
		return fmt.Errorf("offset and limit must not be negative")
	}
	return nil
}

// ListWords returns the words matching opts. Total counts matches before paging.
func (r *Repository) ListWords(opts ListOptions) (*ListResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	file := r.file.Clone()
	r.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(opts.Query))
	words := make([]models.WordEntry, 0, len(file.Words))
	for _, w := range file.Words {
		if query != "" &&
			!strings.Contains(strings.ToLower(w.Headword), query) &&
			!strings.Contains(strings.ToLower(w.Meaning), query) {
			continue
		}
		if opts.PartOfSpeech != "" && w.PartOfSpeech != opts.PartOfSpeech {
			continue
		}
		if !matchesAnyTag(&w, opts.Tags) {
			continue
		}
		words = append(words, w)
	}

	total := len(words)

	if opts.SortBy != "" {
		sort.SliceStable(words, func(i, j int) bool {
			c := compareWords(&words[i], &words[j], opts.SortBy)
			if opts.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if opts.Offset > 0 || opts.Limit > 0 {
		start := min(opts.Offset, len(words))
		end := len(words)
		if opts.Limit > 0 {
			end = min(start+opts.Limit, len(words))
		}
		words = words[start:end]
	}

	memory := make(map[string]models.MemoryState, len(file.Memory))
	for _, m := range file.Memory {
		memory[m.WordID] = m
	}

	return &ListResult{Words: words, Memory: memory, Total: total}, nil
}

// AllTags returns every tag in use, sorted.
func (r *Repository) AllTags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var tags []string
	for _, w := range r.file.Words {
		for _, t := range w.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	sort.Strings(tags)
	return tags
}

func compareWords(a, b *models.WordEntry, field string) int {
	switch field {
	case SortCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return strings.Compare(a.Headword, b.Headword)
	}
}
