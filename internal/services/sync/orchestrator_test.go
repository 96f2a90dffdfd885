package sync_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/models"
	"github.com/TheMichaelB/vocabsync/internal/services/sync"
	"github.com/TheMichaelB/vocabsync/internal/storage"
)

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) SyncToServer(ctx context.Context) *sync.Result {
	args := m.Called(ctx)
	return args.Get(0).(*sync.Result)
}

func (m *mockSyncer) ResolveConflict(ctx context.Context, strategy models.ConflictStrategy) *sync.Result {
	args := m.Called(ctx, strategy)
	return args.Get(0).(*sync.Result)
}

func newOrchestrator(t *testing.T) (*sync.Orchestrator, *mockSyncer, *storage.MemoryStore) {
	t.Helper()
	var buf bytes.Buffer
	syncer := &mockSyncer{}
	store := storage.NewMemoryStore()
	t.Cleanup(func() { syncer.AssertExpectations(t) })
	return sync.NewOrchestrator(syncer, store, events.NewTestLogger(events.DebugLevel, "json", &buf)), syncer, store
}

func TestRequestSyncBlockedOffline(t *testing.T) {
	o, syncer, store := newOrchestrator(t)

	for _, auth := range []bool{true, false} {
		result, err := o.RequestSync(context.Background(), sync.Context{IsAuthenticated: auth, IsOnline: false})
		require.NoError(t, err)
		assert.Equal(t, sync.StatusBlockedOffline, result.Status)
	}

	syncer.AssertNotCalled(t, "SyncToServer", mock.Anything)
	assert.Empty(t, store.Snapshot())
	assert.Zero(t, store.Calls(storage.OpSet))
	assert.Zero(t, store.Calls(storage.OpGet))
}

func TestRequestSyncRequiresAuth(t *testing.T) {
	ctx := context.Background()
	o, syncer, store := newOrchestrator(t)

	result, err := o.RequestSync(ctx, sync.Context{IsAuthenticated: false, IsOnline: true})
	require.NoError(t, err)
	assert.Equal(t, sync.StatusRequiresAuth, result.Status)
	syncer.AssertNotCalled(t, "SyncToServer", mock.Anything)

	value, err := store.Get(ctx, sync.PendingSyncKey)
	require.NoError(t, err)
	assert.Equal(t, "true", value)

	ready, err := o.ConsumePendingSyncIfReady(ctx, sync.Context{IsAuthenticated: true, IsOnline: true})
	require.NoError(t, err)
	assert.True(t, ready)

	_, err = store.Get(ctx, sync.PendingSyncKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	ready, err = o.ConsumePendingSyncIfReady(ctx, sync.Context{IsAuthenticated: true, IsOnline: true})
	require.NoError(t, err)
	assert.False(t, ready, "flag is consumed once")
}

func TestConsumePendingSyncNotReady(t *testing.T) {
	ctx := context.Background()
	o, _, store := newOrchestrator(t)
	require.NoError(t, store.Set(ctx, sync.PendingSyncKey, "true"))
	gets := store.Calls(storage.OpGet)

	for _, ec := range []sync.Context{
		{IsAuthenticated: false, IsOnline: true},
		{IsAuthenticated: true, IsOnline: false},
		{IsAuthenticated: false, IsOnline: false},
	} {
		ready, err := o.ConsumePendingSyncIfReady(ctx, ec)
		require.NoError(t, err)
		assert.False(t, ready)
	}

	assert.Equal(t, gets, store.Calls(storage.OpGet))
	pending, err := o.HasPendingSync(ctx)
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestRequestSyncDelegates(t *testing.T) {
	ctx := context.Background()

	results := []*sync.Result{
		{Status: sync.StatusSuccess, ServerRev: 3},
		{Status: sync.StatusConflict, LocalFile: models.NewVocabFile(t0), ServerData: &models.ServerData{ServerRev: 4}},
		{Status: sync.StatusError, Code: models.ErrCodeNetwork, Message: "dial tcp"},
	}

	for _, want := range results {
		t.Run(string(want.Status), func(t *testing.T) {
			o, syncer, _ := newOrchestrator(t)
			syncer.On("SyncToServer", mock.Anything).Return(want).Once()

			got, err := o.RequestSync(ctx, sync.Context{IsAuthenticated: true, IsOnline: true})
			require.NoError(t, err)
			assert.Same(t, want, got)
		})
	}
}

func TestRequestSyncPendingFlagWriteFails(t *testing.T) {
	o, _, store := newOrchestrator(t)
	store.FailOn(storage.OpSet, errors.New("storage unavailable"))

	_, err := o.RequestSync(context.Background(), sync.Context{IsAuthenticated: false, IsOnline: true})
	assert.ErrorContains(t, err, "storage unavailable")
}

func TestOrchestratorResolveConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("offline", func(t *testing.T) {
		o, syncer, _ := newOrchestrator(t)
		result := o.ResolveConflict(ctx, sync.Context{IsAuthenticated: true}, models.StrategyForceLocal)
		assert.Equal(t, sync.StatusBlockedOffline, result.Status)
		syncer.AssertNotCalled(t, "ResolveConflict", mock.Anything, mock.Anything)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		o, _, _ := newOrchestrator(t)
		result := o.ResolveConflict(ctx, sync.Context{IsOnline: true}, models.StrategyForceLocal)
		assert.Equal(t, sync.StatusError, result.Status)
		assert.Equal(t, models.ErrCodeUnauthorized, result.Code)
	})

	t.Run("delegates", func(t *testing.T) {
		o, syncer, _ := newOrchestrator(t)
		want := &sync.Result{Status: sync.StatusSuccess, ServerRev: 9}
		syncer.On("ResolveConflict", mock.Anything, models.StrategyFetchServer).Return(want).Once()

		got := o.ResolveConflict(ctx, sync.Context{IsAuthenticated: true, IsOnline: true}, models.StrategyFetchServer)
		assert.Same(t, want, got)
	})
}
