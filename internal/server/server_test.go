package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/models"
	"github.com/TheMichaelB/vocabsync/internal/server"
	"github.com/TheMichaelB/vocabsync/internal/storage"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newServer(t *testing.T, tokens map[string]string) (*server.Server, *storage.MemoryStore) {
	t.Helper()
	var buf bytes.Buffer
	store := storage.NewMemoryStore()
	clock := fixedNow
	srv := server.New(store, server.Options{
		Tokens:     tokens,
		MaxBackups: 2,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}, events.NewTestLogger(events.DebugLevel, "json", &buf))
	return srv, store
}

func do(t *testing.T, h http.Handler, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func fileWith(headword string) *models.VocabFile {
	f := models.NewVocabFile(fixedNow)
	f.Words = append(f.Words, models.WordEntry{ID: headword, Headword: headword, Meaning: "m", Examples: []models.ExampleSentence{}, Tags: []string{}})
	return f
}

func rev(n int64) *int64 { return &n }

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, map[string]string{"secret": "u1"})
	rec := do(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGetVocabEmpty(t *testing.T) {
	srv, _ := newServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/vocab", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrCodeNotFound, apiErr.Code)
}

func TestPutThenGet(t *testing.T) {
	srv, store := newServer(t, nil)

	rec := do(t, srv, http.MethodPut, "/vocab", "", models.SyncRequest{ServerRev: rev(0), File: fileWith("apple"), ClientID: "c1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, int64(1), resp.ServerRev)
	assert.Equal(t, fixedNow.Add(time.Second), resp.UpdatedAt)

	rec = do(t, srv, http.MethodGet, "/vocab", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var data models.ServerData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, int64(1), data.ServerRev)
	assert.Equal(t, "c1", data.UpdatedByClientID)
	assert.Equal(t, fileWith("apple"), data.File)

	var stored struct {
		ServerRev int64             `json:"serverRev"`
		File      *models.VocabFile `json:"file"`
	}
	require.NoError(t, storage.GetJSON(context.Background(), store, "users/local/vocab.json", &stored))
	assert.Equal(t, int64(1), stored.ServerRev)
	assert.Equal(t, fileWith("apple"), stored.File)
	assert.Len(t, store.Snapshot(), 1, "file and revision live in one record")
}

func TestPutConflict(t *testing.T) {
	srv, _ := newServer(t, nil)

	rec := do(t, srv, http.MethodPut, "/vocab", "", models.SyncRequest{ServerRev: rev(0), File: fileWith("a"), ClientID: "c1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPut, "/vocab", "", models.SyncRequest{ServerRev: rev(0), File: fileWith("b"), ClientID: "c2"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var body models.ConflictBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.ErrCodeConflict, body.Code)
	assert.Equal(t, int64(0), body.ExpectedRev)
	assert.Equal(t, int64(1), body.CurrentRev)

	rec = do(t, srv, http.MethodGet, "/vocab", "", nil)
	var data models.ServerData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, "a", data.File.Words[0].Headword, "rejected push leaves the document unchanged")
}

func TestPutValidation(t *testing.T) {
	srv, _ := newServer(t, nil)

	rec := do(t, srv, http.MethodPut, "/vocab", "", models.SyncRequest{File: fileWith("a")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPut, "/vocab", "", models.SyncRequest{ServerRev: rev(0)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPut, "/vocab", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestForcePutBacksUpAndPrunes(t *testing.T) {
	srv, store := newServer(t, nil)

	rec := do(t, srv, http.MethodPut, "/vocab?force=true", "", models.ForceSyncRequest{File: fileWith("first"), ClientID: "c1"})
	require.Equal(t, http.StatusOK, rec.Code)

	keys, err := storage.KeysWithPrefix(context.Background(), store, "users/local/vocab_backup_")
	require.NoError(t, err)
	assert.Empty(t, keys, "nothing to back up on first write")

	for i, word := range []string{"second", "third", "fourth"} {
		rec = do(t, srv, http.MethodPut, "/vocab?force=true", "", models.ForceSyncRequest{File: fileWith(word), ClientID: "c1"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp models.SyncResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(i+2), resp.ServerRev)
	}

	keys, err = storage.KeysWithPrefix(context.Background(), store, "users/local/vocab_backup_")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"users/local/vocab_backup_rev00000000000000000002",
		"users/local/vocab_backup_rev00000000000000000003",
	}, keys)

	var backedUp models.VocabFile
	require.NoError(t, storage.GetJSON(context.Background(), store, keys[1], &backedUp))
	assert.Equal(t, "third", backedUp.Words[0].Headword)
}

func TestForcePutBackupsWithFrozenClock(t *testing.T) {
	var buf bytes.Buffer
	store := storage.NewMemoryStore()
	srv := server.New(store, server.Options{
		MaxBackups: 5,
		Now:        func() time.Time { return fixedNow },
	}, events.NewTestLogger(events.DebugLevel, "json", &buf))

	for _, word := range []string{"one", "two", "three"} {
		rec := do(t, srv, http.MethodPut, "/vocab?force=true", "", models.ForceSyncRequest{File: fileWith(word), ClientID: "c1"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	keys, err := storage.KeysWithPrefix(context.Background(), store, "users/local/vocab_backup_")
	require.NoError(t, err)
	assert.Len(t, keys, 2, "each overwritten revision keeps its own backup")
}

func TestForcePutIgnoresRevision(t *testing.T) {
	srv, _ := newServer(t, nil)

	do(t, srv, http.MethodPut, "/vocab", "", models.SyncRequest{ServerRev: rev(0), File: fileWith("a")})
	rec := do(t, srv, http.MethodPut, "/vocab?force=true", "", models.SyncRequest{ServerRev: rev(42), File: fileWith("b"), ClientID: "c9"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.ServerRev)
}

func TestAuthentication(t *testing.T) {
	srv, _ := newServer(t, map[string]string{"tok-a": "alice", "tok-b": "bob"})

	rec := do(t, srv, http.MethodGet, "/vocab", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv, http.MethodGet, "/vocab", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv, http.MethodPut, "/vocab", "tok-a", models.SyncRequest{ServerRev: rev(0), File: fileWith("alice-word")})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/vocab", "tok-b", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "documents are per user")

	rec = do(t, srv, http.MethodGet, "/vocab", "tok-a", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConcurrentPutsIncrementOnce(t *testing.T) {
	srv, _ := newServer(t, nil)

	const writers = 8
	codes := make([]int, writers)
	var wg gosync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := do(t, srv, http.MethodPut, "/vocab", "", models.SyncRequest{ServerRev: rev(0), File: fileWith("w")})
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, c := range codes {
		if c == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusConflict, c)
		}
	}
	assert.Equal(t, 1, ok)
}

// lockstepStore holds the first two reads of key until both have happened,
// so two servers decide on the same revision before either writes.
type lockstepStore struct {
	*storage.MemoryStore
	key   string
	reads atomic.Int32
	ready gosync.WaitGroup
}

func newLockstepStore(key string) *lockstepStore {
	s := &lockstepStore{MemoryStore: storage.NewMemoryStore(), key: key}
	s.ready.Add(2)
	return s
}

func (s *lockstepStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.MemoryStore.Get(ctx, key)
	if key == s.key {
		if s.reads.Add(1) <= 2 {
			s.ready.Done()
		}
		s.ready.Wait()
	}
	return value, err
}

func TestServersSharingStoreAcceptOneWriterPerRevision(t *testing.T) {
	store := newLockstepStore("users/local/vocab.json")

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	instances := []*server.Server{
		server.New(store, server.Options{}, logger),
		server.New(store, server.Options{}, logger),
	}

	codes := make([]int, len(instances))
	var wg gosync.WaitGroup
	for i, srv := range instances {
		wg.Add(1)
		go func(i int, srv *server.Server) {
			defer wg.Done()
			rec := do(t, srv, http.MethodPut, "/vocab", "", models.SyncRequest{
				ServerRev: rev(0),
				File:      fileWith(fmt.Sprintf("from-c%d", i)),
				ClientID:  fmt.Sprintf("c%d", i),
			})
			codes[i] = rec.Code
		}(i, srv)
	}
	wg.Wait()

	sort.Ints(codes)
	assert.Equal(t, []int{http.StatusOK, http.StatusConflict}, codes)

	rec := do(t, instances[0], http.MethodGet, "/vocab", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var data models.ServerData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, int64(1), data.ServerRev)
	assert.Equal(t, "from-"+data.UpdatedByClientID, data.File.Words[0].Headword, "stored file belongs to the accepted writer")
}

func TestForcedWritesFromSharingServersBothApply(t *testing.T) {
	store := newLockstepStore("users/local/vocab.json")
	require.NoError(t, storage.SetJSON(context.Background(), store.MemoryStore, "users/local/vocab.json", map[string]interface{}{
		"serverRev": 3,
		"file":      fileWith("seed"),
	}))

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	instances := []*server.Server{
		server.New(store, server.Options{}, logger),
		server.New(store, server.Options{}, logger),
	}

	var wg gosync.WaitGroup
	for i, srv := range instances {
		wg.Add(1)
		go func(i int, srv *server.Server) {
			defer wg.Done()
			rec := do(t, srv, http.MethodPut, "/vocab?force=true", "", models.ForceSyncRequest{File: fileWith("forced"), ClientID: "f"})
			assert.Equal(t, http.StatusOK, rec.Code)
		}(i, srv)
	}
	wg.Wait()

	rec := do(t, instances[0], http.MethodGet, "/vocab", "", nil)
	var data models.ServerData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, int64(5), data.ServerRev, "the losing forced write re-reads and lands on top")
}

// plainStore hides the conditional write so the server falls back to Set.
type plainStore struct {
	storage.Store
}

func TestPutOverStoreWithoutConditionalWrites(t *testing.T) {
	var buf bytes.Buffer
	srv := server.New(plainStore{storage.NewMemoryStore()}, server.Options{}, events.NewTestLogger(events.DebugLevel, "json", &buf))

	rec := do(t, srv, http.MethodPut, "/vocab", "", models.SyncRequest{ServerRev: rev(0), File: fileWith("a")})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPut, "/vocab", "", models.SyncRequest{ServerRev: rev(0), File: fileWith("b")})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodPut, "/vocab", "", models.SyncRequest{ServerRev: rev(1), File: fileWith("b")})
	assert.Equal(t, http.StatusOK, rec.Code)
}
