package testutil

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TheMichaelB/vocabsync/internal/config"
	"github.com/TheMichaelB/vocabsync/internal/server"
	"github.com/TheMichaelB/vocabsync/internal/storage"
)

// TestServer runs the reference sync server over a memory store.
type TestServer struct {
	*httptest.Server
	Store *storage.MemoryStore
	Sync  *server.Server
}

// NewTestServer starts a sync server that accepts the given tokens. It is
// closed when the test ends.
func NewTestServer(t testing.TB, tokens map[string]string) *TestServer {
	t.Helper()

	store := storage.NewMemoryStore()
	srv := server.New(store, server.Options{Tokens: tokens}, NewTestLogger())
	ts := &TestServer{
		Server: httptest.NewServer(srv),
		Store:  store,
		Sync:   srv,
	}
	t.Cleanup(ts.Close)
	return ts
}

// ClientConfig returns a client config pointing at baseURL with in-memory
// storage and millisecond retry delays.
func ClientConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.API.Timeout = 5 * time.Second
	cfg.Storage.Primary = config.BackendConfig{Backend: config.BackendMemory}
	cfg.Storage.Fallback = config.BackendConfig{}
	cfg.Sync.InitialDelay = time.Millisecond
	cfg.Sync.MaxDelay = 5 * time.Millisecond
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	return cfg
}
