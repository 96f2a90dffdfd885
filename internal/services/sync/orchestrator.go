package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/models"
	"github.com/TheMichaelB/vocabsync/internal/storage"
)

// PendingSyncKey holds "true" while a sync waits for authentication.
const PendingSyncKey = "pendingSync"

const pendingSyncValue = "true"

// Context is the caller's view of authentication and connectivity.
type Context struct {
	IsAuthenticated bool
	IsOnline        bool
}

// Syncer runs sync cycles. *Engine satisfies it.
type Syncer interface {
	SyncToServer(ctx context.Context) *Result
	ResolveConflict(ctx context.Context, strategy models.ConflictStrategy) *Result
}

// Orchestrator decides whether a sync runs now, waits for login, or is refused.
type Orchestrator struct {
	syncer Syncer
	store  storage.Store
	logger *events.Logger
}

// NewOrchestrator creates an orchestrator. store keeps the pending-sync flag.
func NewOrchestrator(syncer Syncer, store storage.Store, logger *events.Logger) *Orchestrator {
	return &Orchestrator{
		syncer: syncer,
		store:  store,
		logger: logger.WithField("service", "sync"),
	}
}

// RequestSync runs a sync when online and authenticated. Offline requests are
// refused without side effects; unauthenticated ones are remembered.
func (o *Orchestrator) RequestSync(ctx context.Context, ec Context) (*Result, error) {
	if !ec.IsOnline {
		o.logger.Debug("Sync blocked: offline")
		return &Result{Status: StatusBlockedOffline}, nil
	}

	if !ec.IsAuthenticated {
		if err := o.store.Set(ctx, PendingSyncKey, pendingSyncValue); err != nil {
			return nil, fmt.Errorf("store pending sync: %w", err)
		}
		o.logger.Info("Sync queued until login")
		return &Result{Status: StatusRequiresAuth}, nil
	}

	return o.syncer.SyncToServer(ctx), nil
}

// ConsumePendingSyncIfReady clears the pending flag and reports true when a
// sync was queued and the caller is now online and authenticated.
func (o *Orchestrator) ConsumePendingSyncIfReady(ctx context.Context, ec Context) (bool, error) {
	if !ec.IsAuthenticated || !ec.IsOnline {
		return false, nil
	}

	pending, err := o.HasPendingSync(ctx)
	if err != nil || !pending {
		return false, err
	}

	if err := o.store.Remove(ctx, PendingSyncKey); err != nil {
		return false, fmt.Errorf("clear pending sync: %w", err)
	}
	o.logger.Debug("Consumed pending sync")
	return true, nil
}

// HasPendingSync reports whether a sync is queued.
func (o *Orchestrator) HasPendingSync(ctx context.Context) (bool, error) {
	value, err := o.store.Get(ctx, PendingSyncKey)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read pending sync: %w", err)
	}
	return value == pendingSyncValue, nil
}

// ResolveConflict applies strategy unless offline. The result is success,
// blocked-offline or error.
func (o *Orchestrator) ResolveConflict(ctx context.Context, ec Context, strategy models.ConflictStrategy) *Result {
	if !ec.IsOnline {
		return &Result{Status: StatusBlockedOffline}
	}
	if !ec.IsAuthenticated {
		return errorResult(models.ErrCodeUnauthorized, models.ErrNotAuthenticated)
	}
	return o.syncer.ResolveConflict(ctx, strategy)
}
