package client_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vocabsync/internal/client"
	"github.com/TheMichaelB/vocabsync/internal/config"
	"github.com/TheMichaelB/vocabsync/internal/models"
	"github.com/TheMichaelB/vocabsync/internal/services/sync"
	"github.com/TheMichaelB/vocabsync/internal/testutil"
)

const token = "tok"

func newClient(t *testing.T, cfg *config.Config) *client.Client {
	t.Helper()
	c, err := client.New(context.Background(), cfg, testutil.NewTestLogger(),
		client.WithClock(testutil.Clock(testutil.FixedTime, time.Second)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func headwords(c *client.Client) []string {
	var out []string
	for _, w := range c.Repo.Snapshot().Words {
		out = append(out, w.Headword)
	}
	return out
}

func TestSyncAcrossDevices(t *testing.T) {
	ctx := context.Background()
	ts := testutil.NewTestServer(t, map[string]string{token: "u1"})

	a := newClient(t, testutil.ClientConfig(ts.URL))
	b := newClient(t, testutil.ClientConfig(ts.URL))

	apple, err := a.Repo.CreateWord(ctx, models.WordInput{Headword: "apple", Meaning: "fruit"})
	require.NoError(t, err)

	// not logged in yet: the sync waits for a token
	result, err := a.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, sync.StatusRequiresAuth, result.Status)
	pending, err := a.HasPendingSync(ctx)
	require.NoError(t, err)
	assert.True(t, pending)

	result, err = a.Login(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, sync.StatusSuccess, result.Status)
	assert.Equal(t, int64(1), result.ServerRev)
	pending, err = a.HasPendingSync(ctx)
	require.NoError(t, err)
	assert.False(t, pending)

	// second device pulls the first revision
	result, err = b.Login(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, result)

	found, err := b.Pull(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"apple"}, headwords(b))
	assert.Equal(t, int64(1), b.Status().ServerRev)
	assert.False(t, b.Status().Dirty)

	_, err = b.Repo.CreateWord(ctx, models.WordInput{Headword: "banana", Meaning: "yellow fruit"})
	require.NoError(t, err)
	result, err = b.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, sync.StatusSuccess, result.Status, result.Message)
	assert.Equal(t, int64(2), result.ServerRev)

	// stale device conflicts and takes the server copy
	_, err = a.Repo.UpdateWord(ctx, apple.ID, models.WordInput{Headword: "apple", Meaning: "red fruit"})
	require.NoError(t, err)
	result, err = a.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, sync.StatusConflict, result.Status)
	require.NotNil(t, result.ServerData)
	assert.Equal(t, int64(2), result.ServerData.ServerRev)

	result = a.Resolve(ctx, models.StrategyFetchServer)
	require.Equal(t, sync.StatusSuccess, result.Status, result.Message)
	assert.Equal(t, int64(2), result.ServerRev)
	assert.ElementsMatch(t, []string{"apple", "banana"}, headwords(a))
	assert.False(t, a.Status().Dirty)

	backups, err := a.Backups.List(ctx)
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	// force-local overwrites a newer server revision
	_, err = b.Repo.CreateWord(ctx, models.WordInput{Headword: "cherry", Meaning: "small fruit"})
	require.NoError(t, err)
	result, err = b.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, sync.StatusSuccess, result.Status)
	assert.Equal(t, int64(3), result.ServerRev)

	_, err = a.Repo.UpdateWord(ctx, apple.ID, models.WordInput{Headword: "apple", Meaning: "red fruit"})
	require.NoError(t, err)
	result, err = a.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, sync.StatusConflict, result.Status)

	result = a.Resolve(ctx, models.StrategyForceLocal)
	require.Equal(t, sync.StatusSuccess, result.Status, result.Message)
	assert.Equal(t, int64(4), result.ServerRev)

	found, err = b.Pull(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.ElementsMatch(t, []string{"apple", "banana"}, headwords(b))
	assert.Equal(t, int64(4), b.Status().ServerRev)
}

func TestPullEmptyServer(t *testing.T) {
	ctx := context.Background()
	ts := testutil.NewTestServer(t, nil)
	c := newClient(t, testutil.ClientConfig(ts.URL))

	_, err := c.Login(ctx, token)
	require.NoError(t, err)

	found, err := c.Pull(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOfflineBlocksSync(t *testing.T) {
	ctx := context.Background()
	ts := testutil.NewTestServer(t, nil)
	cfg := testutil.ClientConfig(ts.URL)
	ts.Close()

	c := newClient(t, cfg)
	_, err := c.Login(ctx, token)
	require.NoError(t, err)

	_, err = c.Repo.CreateWord(ctx, models.WordInput{Headword: "apple", Meaning: "fruit"})
	require.NoError(t, err)

	result, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, sync.StatusBlockedOffline, result.Status)
	assert.False(t, c.Status().Online)
	assert.True(t, c.Status().Dirty)

	result = c.Resolve(ctx, models.StrategyForceLocal)
	assert.Equal(t, sync.StatusBlockedOffline, result.Status)

	_, err = c.Pull(ctx)
	assert.Equal(t, models.ErrCodeNetwork, models.ErrorCode(err))
}

func TestLoginValidation(t *testing.T) {
	c := newClient(t, testutil.ClientConfig("http://127.0.0.1:1"))

	_, err := c.Login(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	assert.False(t, c.IsAuthenticated())
}

func TestTokenPersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	ts := testutil.NewTestServer(t, nil)
	cfg := testutil.ClientConfig(ts.URL)
	cfg.Storage.Primary = config.BackendConfig{Backend: config.BackendFile, Path: t.TempDir()}

	c, err := client.New(ctx, cfg, testutil.NewTestLogger())
	require.NoError(t, err)
	_, err = c.Login(ctx, token)
	require.NoError(t, err)
	_, err = c.Repo.CreateWord(ctx, models.WordInput{Headword: "apple", Meaning: "fruit"})
	require.NoError(t, err)
	clientID := c.Status().ClientID
	require.NoError(t, c.Close())

	c, err = client.New(ctx, cfg, testutil.NewTestLogger())
	require.NoError(t, err)
	assert.True(t, c.IsAuthenticated())
	assert.Equal(t, []string{"apple"}, headwords(c))
	assert.Equal(t, clientID, c.Status().ClientID)

	require.NoError(t, c.Logout(ctx))
	require.NoError(t, c.Close())

	c, err = client.New(ctx, cfg, testutil.NewTestLogger())
	require.NoError(t, err)
	defer c.Close()
	assert.False(t, c.IsAuthenticated())
}

func TestFallbackStorage(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	cfg := testutil.ClientConfig("http://127.0.0.1:1")
	cfg.Storage.Primary = config.BackendConfig{Backend: config.BackendFile, Path: filepath.Join(blocker, "store")}
	cfg.Storage.Fallback = config.BackendConfig{Backend: config.BackendMemory}

	c := newClient(t, cfg)
	assert.True(t, c.UsedFallback())

	_, err := c.Repo.CreateWord(context.Background(), models.WordInput{Headword: "apple", Meaning: "fruit"})
	assert.NoError(t, err)
}

func TestImportAndRestore(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, testutil.ClientConfig("http://127.0.0.1:1"))

	_, err := c.Repo.CreateWord(ctx, models.WordInput{Headword: "apple", Meaning: "fruit"})
	require.NoError(t, err)

	data, err := json.Marshal(testutil.VocabFile("xylophone", "yacht"))
	require.NoError(t, err)

	res, err := c.ImportFile(ctx, data, "replace")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"xylophone", "yacht"}, headwords(c))
	assert.True(t, c.Status().Dirty)

	backups, err := c.Backups.List(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	_, err = c.RestoreBackup(ctx, backups[0].Key)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple"}, headwords(c))

	backups, err = c.Backups.List(ctx)
	require.NoError(t, err)
	assert.Len(t, backups, 2)

	exported, name, err := c.Export()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "vocab-backup-"))
	assert.Contains(t, string(exported), `"apple"`)

	_, err = c.ImportFile(ctx, []byte("{"), "merge")
	assert.Error(t, err)
}

func TestWatchSyncsWhenOnline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := testutil.NewTestServer(t, nil)
	c := newClient(t, testutil.ClientConfig(ts.URL))
	_, err := c.Login(ctx, token)
	require.NoError(t, err)
	_, err = c.Repo.CreateWord(ctx, models.WordInput{Headword: "apple", Meaning: "fruit"})
	require.NoError(t, err)

	results := make(chan *sync.Result, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Watch(ctx, func(r *sync.Result) { results <- r })
	}()

	select {
	case r := <-results:
		assert.Equal(t, sync.StatusSuccess, r.Status)
		assert.Equal(t, int64(1), r.ServerRev)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not sync")
	}

	cancel()
	<-done
}
