package sync

import (
	"context"
	"fmt"

	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/models"
	"github.com/TheMichaelB/vocabsync/internal/services/backup"
	"github.com/TheMichaelB/vocabsync/internal/transport"
	"github.com/TheMichaelB/vocabsync/internal/vocab"
)

// OnlineStatus reports connectivity. connectivity.Monitor satisfies it.
type OnlineStatus interface {
	Online() bool
}

// Engine implements the optimistic-concurrency push/pull protocol.
//
// Calls are not serialized: SyncToServer and ResolveConflict both read and
// then write sync metadata, so callers must not run them concurrently on the
// same repository.
type Engine struct {
	repo      *vocab.Repository
	transport transport.Transport
	retrier   *transport.Retrier
	backups   *backup.Service
	online    OnlineStatus
	logger    *events.Logger
}

// NewEngine creates a sync engine. backups and online may be nil.
func NewEngine(
	repo *vocab.Repository,
	transport transport.Transport,
	retrier *transport.Retrier,
	backups *backup.Service,
	online OnlineStatus,
	logger *events.Logger,
) *Engine {
	return &Engine{
		repo:      repo,
		transport: transport,
		retrier:   retrier,
		backups:   backups,
		online:    online,
		logger:    logger.WithField("component", "sync_engine"),
	}
}

// Status returns the current sync state without touching storage or network.
func (e *Engine) Status() SyncStatus {
	meta := e.repo.Metadata()
	return SyncStatus{
		Online:     e.online == nil || e.online.Online(),
		Dirty:      meta.Dirty,
		LastSyncAt: meta.LastSyncAt,
		ClientID:   meta.ClientID,
		ServerRev:  meta.ServerRev,
	}
}

// SyncToServer pushes the local file conditioned on the last known revision.
// A revision mismatch yields a conflict result carrying both versions and
// leaves local state untouched.
func (e *Engine) SyncToServer(ctx context.Context) *Result {
	meta := e.repo.Metadata()
	file := e.repo.Snapshot()
	rev := meta.ServerRev

	logger := e.logger.WithFields(map[string]interface{}{
		"client_id":  meta.ClientID,
		"server_rev": rev,
		"dirty":      meta.Dirty,
	})
	logger.Info("Starting sync")

	req := &models.SyncRequest{
		ServerRev: &rev,
		File:      file,
		ClientID:  meta.ClientID,
	}

	resp, err := transport.Do(ctx, e.retrier, func(ctx context.Context) (*models.SyncResponse, error) {
		return e.transport.PutVocab(ctx, req)
	})
	if err != nil {
		if models.IsConflict(err) {
			return e.conflict(ctx, file)
		}
		logger.WithError(err).Error("Sync failed")
		return errorResult(models.ErrorCodeOr(err, models.ErrCodeSync), &models.SyncError{
			Code:     models.ErrorCodeOr(err, models.ErrCodeSync),
			Phase:    models.PhasePush,
			ClientID: meta.ClientID,
			Err:      err,
		})
	}

	if err := e.repo.MarkSynced(ctx, resp.ServerRev, resp.UpdatedAt); err != nil {
		logger.WithError(err).Error("Failed to record sync")
		return errorResult(models.ErrCodeStorage, &models.SyncError{
			Code:  models.ErrCodeStorage,
			Phase: models.PhasePersist,
			Err:   err,
		})
	}

	logger.WithField("new_rev", resp.ServerRev).Info("Sync completed")
	return successResult(resp.ServerRev, resp.UpdatedAt)
}

// conflict fetches the server's current document once. The fetch has no
// retry budget of its own.
func (e *Engine) conflict(ctx context.Context, local *models.VocabFile) *Result {
	data, err := e.transport.GetVocab(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Failed to fetch server data after conflict")
		code := models.ErrorCodeOr(err, models.ErrCodeConflictResolution)
		return errorResult(code, &models.SyncError{Code: code, Phase: models.PhaseFetch, Err: err})
	}

	e.logger.WithFields(map[string]interface{}{
		"server_rev":  data.ServerRev,
		"updated_by":  data.UpdatedByClientID,
		"local_words": len(local.Words),
	}).Warn("Sync conflict")

	return conflictResult(local, data)
}

// ResolveConflict settles a conflict with the given strategy.
func (e *Engine) ResolveConflict(ctx context.Context, strategy models.ConflictStrategy) *Result {
	e.logger.WithField("strategy", string(strategy)).Info("Resolving conflict")

	switch strategy {
	case models.StrategyFetchServer:
		return e.acceptServer(ctx)
	case models.StrategyForceLocal:
		return e.forceLocal(ctx)
	default:
		return errorResult(models.ErrCodeBadRequest, fmt.Errorf("unknown conflict strategy %q", strategy))
	}
}

// acceptServer backs up the local file, then replaces it with the server copy.
func (e *Engine) acceptServer(ctx context.Context) *Result {
	e.backup(ctx, e.repo.Snapshot())

	data, err := transport.Do(ctx, e.retrier, func(ctx context.Context) (*models.ServerData, error) {
		return e.transport.GetVocab(ctx)
	})
	if err != nil {
		e.logger.WithError(err).Error("Failed to fetch server data")
		code := models.ErrorCodeOr(err, models.ErrCodeConflictResolution)
		return errorResult(code, &models.SyncError{Code: code, Phase: models.PhaseFetch, Err: err})
	}

	if err := e.repo.ReplaceFromServer(ctx, data.File, data.ServerRev, data.UpdatedAt); err != nil {
		e.logger.WithError(err).Error("Failed to store server data")
		return errorResult(models.ErrCodeStorage, &models.SyncError{
			Code:  models.ErrCodeStorage,
			Phase: models.PhasePersist,
			Err:   err,
		})
	}

	e.logger.WithField("server_rev", data.ServerRev).Info("Accepted server version")
	return successResult(data.ServerRev, data.UpdatedAt)
}

// forceLocal overwrites the server copy without a revision check.
func (e *Engine) forceLocal(ctx context.Context) *Result {
	meta := e.repo.Metadata()
	req := &models.ForceSyncRequest{
		File:     e.repo.Snapshot(),
		ClientID: meta.ClientID,
	}

	resp, err := transport.Do(ctx, e.retrier, func(ctx context.Context) (*models.SyncResponse, error) {
		return e.transport.ForcePutVocab(ctx, req)
	})
	if err != nil {
		e.logger.WithError(err).Error("Force push failed")
		code := models.ErrorCodeOr(err, models.ErrCodeConflictResolution)
		return errorResult(code, &models.SyncError{Code: code, Phase: models.PhasePush, ClientID: meta.ClientID, Err: err})
	}

	if err := e.repo.MarkSynced(ctx, resp.ServerRev, resp.UpdatedAt); err != nil {
		e.logger.WithError(err).Error("Failed to record forced sync")
		return errorResult(models.ErrCodeStorage, &models.SyncError{
			Code:  models.ErrCodeStorage,
			Phase: models.PhasePersist,
			Err:   err,
		})
	}

	e.logger.WithField("server_rev", resp.ServerRev).Info("Forced local version")
	return successResult(resp.ServerRev, resp.UpdatedAt)
}

// InitializeFromServer replaces local state with the server copy. It reports
// false, and changes nothing, when the server has no data yet.
func (e *Engine) InitializeFromServer(ctx context.Context) (bool, error) {
	data, err := transport.Do(ctx, e.retrier, func(ctx context.Context) (*models.ServerData, error) {
		return e.transport.GetVocab(ctx)
	})
	if err != nil {
		if models.IsNotFound(err) {
			e.logger.Info("Server has no data yet, keeping local data")
			return false, nil
		}
		return false, &models.SyncError{Code: models.ErrorCodeOr(err, models.ErrCodeSync), Phase: models.PhaseFetch, Err: err}
	}

	if local := e.repo.Snapshot(); len(local.Words) > 0 {
		e.backup(ctx, local)
	}

	if err := e.repo.ReplaceFromServer(ctx, data.File, data.ServerRev, data.UpdatedAt); err != nil {
		return false, &models.SyncError{Code: models.ErrCodeStorage, Phase: models.PhasePersist, Err: err}
	}

	e.logger.WithFields(map[string]interface{}{
		"server_rev": data.ServerRev,
		"words":      len(data.File.Words),
	}).Info("Initialized from server")
	return true, nil
}

// backup logs failures instead of returning them.
func (e *Engine) backup(ctx context.Context, file *models.VocabFile) {
	if e.backups == nil {
		return
	}
	if _, err := e.backups.Backup(ctx, file); err != nil {
		e.logger.WithError(err).Warn("Backup failed, continuing")
	}
}
