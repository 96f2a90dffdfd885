package vocab_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vocabsync/internal/models"
	"github.com/TheMichaelB/vocabsync/internal/storage"
	"github.com/TheMichaelB/vocabsync/internal/vocab"
)

const importJSON = `{
  "schemaVersion": 1,
  "words": [
    {"id": "x1", "headword": "hello", "meaning": "greeting", "partOfSpeech": "interjection", "tags": ["basic"]},
    {"id": "x1", "headword": "duplicate", "meaning": "dropped"},
    {"headword": "world", "meaning": "earth", "partOfSpeech": "bogus"}
  ],
  "memory": [
    {"wordId": "x1", "memoryLevel": 2, "ease": 2.2, "intervalDays": 3, "dueAt": "2024-07-01T00:00:00Z", "reviewCount": 2},
    {"wordId": "ghost", "memoryLevel": 1}
  ]
}`

func TestParseVocabFile(t *testing.T) {
	file, err := vocab.ParseVocabFile([]byte(importJSON))
	require.NoError(t, err)
	assert.Len(t, file.Words, 3)

	_, err = vocab.ParseVocabFile([]byte("{not json"))
	assert.Error(t, err)
}

func TestImportReplace(t *testing.T) {
	ctx := context.Background()
	repo, clk := newTestRepo(t, storage.NewMemoryStore())

	_, err := repo.CreateWord(ctx, models.WordInput{Headword: "old", Meaning: "gone"})
	require.NoError(t, err)

	data, err := vocab.ParseVocabFile([]byte(importJSON))
	require.NoError(t, err)

	result, err := repo.Import(ctx, data, vocab.ImportReplace)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 2, result.Total)

	file := repo.Snapshot()
	require.Len(t, file.Words, 2)
	assert.Equal(t, "hello", file.Words[0].Headword)
	assert.Equal(t, "world", file.Words[1].Headword)
	assert.NotEmpty(t, file.Words[1].ID)
	assert.Equal(t, models.PosOther, file.Words[1].PartOfSpeech)
	assert.Equal(t, clk.now, file.Words[1].CreatedAt)

	require.Len(t, file.Memory, 2)
	hello := repo.Memory("x1")
	assert.Equal(t, 2, hello.MemoryLevel)
	assert.Equal(t, 2, hello.ReviewCount)
	assert.Equal(t, models.NewMemoryState(file.Words[1].ID, clk.now), repo.Memory(file.Words[1].ID))

	assert.True(t, repo.Metadata().Dirty)
}

func TestImportMerge(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, storage.NewMemoryStore())

	_, err := repo.CreateWord(ctx, models.WordInput{Headword: "keep", Meaning: "stays"})
	require.NoError(t, err)

	data := models.NewVocabFile(time.Time{})
	data.Words = []models.WordEntry{
		{ID: "w1", Headword: "keep", Meaning: "updated"},
		{ID: "n1", Headword: "new", Meaning: "added"},
	}

	result, err := repo.Import(ctx, data, vocab.ImportMerge)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 2, result.Total)

	word, err := repo.GetWord("w1")
	require.NoError(t, err)
	assert.Equal(t, "updated", word.Meaning)

	_, err = repo.GetWord("n1")
	assert.NoError(t, err)
}

func TestImportRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, storage.NewMemoryStore())

	_, err := repo.Import(ctx, nil, vocab.ImportMerge)
	assert.Error(t, err)

	_, err = repo.Import(ctx, models.NewVocabFile(time.Time{}), "append")
	assert.Error(t, err)
	assert.False(t, repo.Metadata().Dirty)
}

func TestExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, storage.NewMemoryStore())

	_, err := repo.CreateWord(ctx, models.WordInput{Headword: "apple", Meaning: "fruit"})
	require.NoError(t, err)

	data, err := repo.Export()
	require.NoError(t, err)

	parsed, err := vocab.ParseVocabFile(data)
	require.NoError(t, err)
	assert.Equal(t, repo.Snapshot().Words, parsed.Words)
}

func TestExportFileName(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.FixedZone("KST", 9*3600))
	assert.Equal(t, "vocab-backup-2024-03-05T05-07-09Z.json", vocab.ExportFileName(now))
}
