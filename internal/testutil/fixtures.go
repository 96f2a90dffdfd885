// Package testutil holds helpers shared by package tests.
package testutil

import (
	"bytes"
	"fmt"
	"time"

	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/models"
)

// FixedTime is the reference instant used by fixtures.
var FixedTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// CaptureLogger returns a JSON debug logger and the buffer it writes to.
func CaptureLogger() (*events.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return events.NewTestLogger(events.DebugLevel, "json", buf), buf
}

// Word builds a word with an empty example and tag list.
func Word(id, headword, meaning string) models.WordEntry {
	return models.WordEntry{
		ID:           id,
		Headword:     headword,
		PartOfSpeech: models.PosOther,
		Meaning:      meaning,
		Examples:     []models.ExampleSentence{},
		Tags:         []string{},
		CreatedAt:    FixedTime,
		UpdatedAt:    FixedTime,
	}
}

// VocabFile returns a file holding one word per headword, with IDs w1, w2...
func VocabFile(headwords ...string) *models.VocabFile {
	file := models.NewVocabFile(FixedTime)
	for i, h := range headwords {
		file.Words = append(file.Words, Word(fmt.Sprintf("w%d", i+1), h, h+" meaning"))
	}
	return file
}

// Clock returns a time source that advances by step on every call.
func Clock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}
