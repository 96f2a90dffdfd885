package models

import (
	"fmt"
	"strings"
	"time"
)

// CurrentSchemaVersion is the VocabFile layout written by this build.
const CurrentSchemaVersion = 1

// PartOfSpeech classifies a headword.
type PartOfSpeech string

const (
	PosNoun   PartOfSpeech = "noun"
	PosVerb   PartOfSpeech = "verb"
	PosAdj    PartOfSpeech = "adj"
	PosAdv    PartOfSpeech = "adv"
	PosPrep   PartOfSpeech = "prep"
	PosConj   PartOfSpeech = "conj"
	PosPron   PartOfSpeech = "pron"
	PosDet    PartOfSpeech = "det"
	PosInterj PartOfSpeech = "interj"
	PosOther  PartOfSpeech = "other"
)

var validPos = map[PartOfSpeech]bool{
	PosNoun: true, PosVerb: true, PosAdj: true, PosAdv: true, PosPrep: true,
	PosConj: true, PosPron: true, PosDet: true, PosInterj: true, PosOther: true,
}

// Valid reports whether p is a known part of speech.
func (p PartOfSpeech) Valid() bool {
	return validPos[p]
}

// ParsePartOfSpeech normalizes user input into a PartOfSpeech.
func ParsePartOfSpeech(s string) (PartOfSpeech, error) {
	p := PartOfSpeech(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PosOther, nil
	}
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown part of speech %q", ErrInvalidWord, s)
	}
	return p, nil
}

// Rating is the self-assessed recall quality for a review.
type Rating string

const (
	RatingAgain Rating = "again"
	RatingHard  Rating = "hard"
	RatingGood  Rating = "good"
	RatingEasy  Rating = "easy"
)

// ParseRating validates a rating name.
func ParseRating(s string) (Rating, error) {
	r := Rating(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RatingAgain, RatingHard, RatingGood, RatingEasy:
		return r, nil
	}
	return "", fmt.Errorf("invalid rating %q: want again, hard, good or easy", s)
}

// ExampleSentence is a usage example attached to a word.
type ExampleSentence struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
	Source      string `json:"source,omitempty"`
}

// WordEntry is one vocabulary item.
type WordEntry struct {
	ID            string            `json:"id"`
	Headword      string            `json:"headword"`
	Pronunciation string            `json:"pronunciation,omitempty"`
	PartOfSpeech  PartOfSpeech      `json:"partOfSpeech"`
	Meaning       string            `json:"meaning"`
	Examples      []ExampleSentence `json:"examples"`
	Tags          []string          `json:"tags"`
	Memo          string            `json:"memo,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// HasTag reports whether the word carries tag.
func (w *WordEntry) HasTag(tag string) bool {
	for _, t := range w.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// WordInput carries the user-editable fields of a word.
type WordInput struct {
	Headword      string            `json:"headword"`
	Pronunciation string            `json:"pronunciation,omitempty"`
	PartOfSpeech  PartOfSpeech      `json:"partOfSpeech"`
	Meaning       string            `json:"meaning"`
	Examples      []ExampleSentence `json:"examples,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Memo          string            `json:"memo,omitempty"`
}

// Normalize trims fields, dedupes tags and checks required values.
func (in *WordInput) Normalize() error {
	in.Headword = strings.TrimSpace(in.Headword)
	in.Meaning = strings.TrimSpace(in.Meaning)
	in.Pronunciation = strings.TrimSpace(in.Pronunciation)
	in.Memo = strings.TrimSpace(in.Memo)

	if in.Headword == "" {
		return fmt.Errorf("%w: headword is required", ErrInvalidWord)
	}
	if in.Meaning == "" {
		return fmt.Errorf("%w: meaning is required", ErrInvalidWord)
	}
	if in.PartOfSpeech == "" {
		in.PartOfSpeech = PosOther
	}
	if !in.PartOfSpeech.Valid() {
		return fmt.Errorf("%w: unknown part of speech %q", ErrInvalidWord, in.PartOfSpeech)
	}

	seen := make(map[string]bool, len(in.Tags))
	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	in.Tags = tags

	examples := make([]ExampleSentence, 0, len(in.Examples))
	for _, ex := range in.Examples {
		ex.Text = strings.TrimSpace(ex.Text)
		if ex.Text == "" {
			continue
		}
		examples = append(examples, ex)
	}
	in.Examples = examples

	return nil
}

// MemoryState is the spaced-repetition state of one word.
type MemoryState struct {
	WordID         string     `json:"wordId"`
	MemoryLevel    int        `json:"memoryLevel"`
	Ease           float64    `json:"ease"`
	IntervalDays   int        `json:"intervalDays"`
	DueAt          time.Time  `json:"dueAt"`
	LastRating     Rating     `json:"lastRating,omitempty"`
	LastReviewedAt *time.Time `json:"lastReviewedAt,omitempty"`
	LapseCount     int        `json:"lapseCount"`
	ReviewCount    int        `json:"reviewCount"`
}

// DefaultEase is the ease factor of a never-reviewed word.
const DefaultEase = 2.5

// NewMemoryState returns the state of a word that is due immediately.
func NewMemoryState(wordID string, now time.Time) MemoryState {
	return MemoryState{
		WordID: wordID,
		Ease:   DefaultEase,
		DueAt:  now,
	}
}

// VocabFile is the synchronized document.
type VocabFile struct {
	SchemaVersion int           `json:"schemaVersion"`
	Words         []WordEntry   `json:"words"`
	Memory        []MemoryState `json:"memory"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// NewVocabFile returns an empty file at the current schema version.
func NewVocabFile(now time.Time) *VocabFile {
	return &VocabFile{
		SchemaVersion: CurrentSchemaVersion,
		Words:         []WordEntry{},
		Memory:        []MemoryState{},
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy.
func (f *VocabFile) Clone() *VocabFile {
	if f == nil {
		return nil
	}

	out := &VocabFile{
		SchemaVersion: f.SchemaVersion,
		Words:         make([]WordEntry, len(f.Words)),
		Memory:        make([]MemoryState, len(f.Memory)),
		UpdatedAt:     f.UpdatedAt,
	}

	for i, w := range f.Words {
		w.Examples = append([]ExampleSentence(nil), w.Examples...)
		w.Tags = append([]string(nil), w.Tags...)
		if w.Examples == nil {
			w.Examples = []ExampleSentence{}
		}
		if w.Tags == nil {
			w.Tags = []string{}
		}
		out.Words[i] = w
	}

	for i, m := range f.Memory {
		if m.LastReviewedAt != nil {
			t := *m.LastReviewedAt
			m.LastReviewedAt = &t
		}
		out.Memory[i] = m
	}

	return out
}

// WordIndex returns the position of the word with id, or -1.
func (f *VocabFile) WordIndex(id string) int {
	for i := range f.Words {
		if f.Words[i].ID == id {
			return i
		}
	}
	return -1
}

// MemoryIndex returns the position of the memory state for wordID, or -1.
func (f *VocabFile) MemoryIndex(wordID string) int {
	for i := range f.Memory {
		if f.Memory[i].WordID == wordID {
			return i
		}
	}
	return -1
}

// MemoryFor returns the memory state of a word, if one exists.
func (f *VocabFile) MemoryFor(wordID string) (MemoryState, bool) {
	if i := f.MemoryIndex(wordID); i >= 0 {
		return f.Memory[i], true
	}
	return MemoryState{}, false
}

// Normalize fills nil slices so the file always serializes with arrays.
func (f *VocabFile) Normalize() {
	if f.Words == nil {
		f.Words = []WordEntry{}
	}
	if f.Memory == nil {
		f.Memory = []MemoryState{}
	}
	if f.SchemaVersion == 0 {
		f.SchemaVersion = CurrentSchemaVersion
	}
}
