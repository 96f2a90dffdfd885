// Package client wires the local repository, sync engine and transport into
// the API used by the command line.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheMichaelB/vocabsync/internal/config"
	"github.com/TheMichaelB/vocabsync/internal/connectivity"
	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/models"
	"github.com/TheMichaelB/vocabsync/internal/services/backup"
	"github.com/TheMichaelB/vocabsync/internal/services/sync"
	"github.com/TheMichaelB/vocabsync/internal/storage"
	"github.com/TheMichaelB/vocabsync/internal/transport"
	"github.com/TheMichaelB/vocabsync/internal/vocab"
)

// TokenKey holds the bearer token in the local store.
const TokenKey = "auth.token"

// Client provides the high-level API for vocabsync operations.
type Client struct {
	Repo         *vocab.Repository
	Backups      *backup.Service
	Engine       *sync.Engine
	Orchestrator *sync.Orchestrator
	Monitor      *connectivity.Monitor

	config       *config.Config
	logger       *events.Logger
	transport    transport.Transport
	store        storage.Store
	opened       []storage.Store
	usedFallback bool
}

// Option customizes New.
type Option func(*options)

type options struct {
	transport transport.Transport
	sleep     func(ctx context.Context, d time.Duration) error
	clock     func() time.Time
}

// WithTransport replaces the HTTP transport.
func WithTransport(t transport.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithRetrySleep replaces the sleep between retries.
func WithRetrySleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithClock overrides the time source for the repository and backups.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// New creates a new vocabsync client.
func New(ctx context.Context, cfg *config.Config, logger *events.Logger, opts ...Option) (*Client, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		config: cfg,
		logger: logger.WithField("component", "client"),
	}

	if err := c.openStorage(ctx, logger, o.clock); err != nil {
		c.closeStores()
		return nil, err
	}

	repo, err := vocab.Open(ctx, c.store, logger, vocab.WithClock(o.clock))
	if err != nil {
		c.closeStores()
		return nil, fmt.Errorf("open repository: %w", err)
	}
	c.Repo = repo

	c.transport = o.transport
	if c.transport == nil {
		c.transport = transport.NewTransport(&cfg.API, logger)
	}

	token, err := c.store.Get(ctx, TokenKey)
	switch {
	case err == nil:
		c.transport.SetToken(token)
	case !errors.Is(err, storage.ErrNotFound):
		c.logger.WithError(err).Warn("Failed to read stored token")
	}

	retrier := transport.NewRetrier(transport.PolicyFromConfig(&cfg.Sync), logger)
	if o.sleep != nil {
		retrier = retrier.WithSleep(o.sleep)
	}

	c.Backups = backup.NewService(c.store, logger,
		backup.WithMaxBackups(cfg.Sync.MaxBackups),
		backup.WithClock(o.clock))
	c.Monitor = connectivity.NewMonitor(c.transport, cfg.Sync.HealthCheckInterval, false, logger)
	c.Engine = sync.NewEngine(repo, c.transport, retrier, c.Backups, c.Monitor, logger)
	c.Orchestrator = sync.NewOrchestrator(c.Engine, c.store, logger)

	c.logger.WithFields(map[string]interface{}{
		"client_id":     repo.Metadata().ClientID,
		"used_fallback": c.usedFallback,
	}).Debug("Client ready")

	return c, nil
}

// openStorage opens the configured stores and brings one of them to the
// current schema version.
func (c *Client) openStorage(ctx context.Context, logger *events.Logger, now func() time.Time) error {
	primary, primaryErr := storage.Open(ctx, c.config.Storage.Primary, logger)
	if primary != nil {
		c.opened = append(c.opened, primary)
	}

	fallback, err := storage.Open(ctx, c.config.Storage.Fallback, logger)
	if err != nil {
		c.logger.WithError(err).Warn("Fallback storage unavailable")
		fallback = nil
	}
	if fallback != nil {
		c.opened = append(c.opened, fallback)
	}

	if primaryErr != nil {
		if fallback == nil {
			return fmt.Errorf("open primary storage: %w", primaryErr)
		}
		c.logger.WithError(primaryErr).Warn("Primary storage unavailable, using fallback")
		primary, fallback = fallback, nil
	}

	result, err := storage.Prepare(ctx, storage.PrepareOptions{
		Primary:       primary,
		Fallback:      fallback,
		DataKeys:      append(append([]string{}, vocab.DataKeys...), TokenKey),
		TargetVersion: c.config.Storage.SchemaVersion,
		Logger:        logger,
		Now:           now,
	})
	if err != nil {
		return fmt.Errorf("prepare storage: %w", err)
	}

	c.store = result.Store
	c.usedFallback = result.UsedFallback || primaryErr != nil
	return nil
}

// UsedFallback reports whether the client runs on the fallback store.
func (c *Client) UsedFallback() bool {
	return c.usedFallback
}

// IsAuthenticated reports whether a bearer token is set.
func (c *Client) IsAuthenticated() bool {
	return c.transport.GetToken() != ""
}

// Login stores token and runs a sync that was waiting for it. The result is
// nil when no sync was pending or the server is unreachable.
func (c *Client) Login(ctx context.Context, token string) (*sync.Result, error) {
	if token == "" {
		return nil, models.ErrNotAuthenticated
	}
	if err := c.store.Set(ctx, TokenKey, token); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	c.transport.SetToken(token)
	c.logger.Info("Logged in")

	ec := c.execContext(ctx)
	ready, err := c.Orchestrator.ConsumePendingSyncIfReady(ctx, ec)
	if err != nil || !ready {
		return nil, err
	}

	c.logger.Info("Running sync queued before login")
	return c.Orchestrator.RequestSync(ctx, ec)
}

// Logout forgets the stored token.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.store.Remove(ctx, TokenKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("remove token: %w", err)
	}
	c.transport.SetToken("")
	c.logger.Info("Logged out")
	return nil
}

// CheckConnectivity refreshes and returns the online state.
func (c *Client) CheckConnectivity(ctx context.Context) bool {
	return c.Monitor.Check(ctx)
}

func (c *Client) execContext(ctx context.Context) sync.Context {
	return sync.Context{
		IsAuthenticated: c.IsAuthenticated(),
		IsOnline:        c.Monitor.Check(ctx),
	}
}

// Sync requests a sync cycle.
func (c *Client) Sync(ctx context.Context) (*sync.Result, error) {
	return c.Orchestrator.RequestSync(ctx, c.execContext(ctx))
}

// Resolve settles a conflict with the given strategy.
func (c *Client) Resolve(ctx context.Context, strategy models.ConflictStrategy) *sync.Result {
	return c.Orchestrator.ResolveConflict(ctx, c.execContext(ctx), strategy)
}

// Pull replaces local data with the server copy. It reports false when the
// server has nothing stored.
func (c *Client) Pull(ctx context.Context) (bool, error) {
	ec := c.execContext(ctx)
	if !ec.IsOnline {
		return false, fmt.Errorf("pull: %w", &models.APIError{
			Code:    models.ErrCodeNetwork,
			Message: "server unreachable",
		})
	}
	if !ec.IsAuthenticated {
		return false, models.ErrNotAuthenticated
	}
	return c.Engine.InitializeFromServer(ctx)
}

// Status returns the local sync state without touching the network.
func (c *Client) Status() sync.SyncStatus {
	return c.Engine.Status()
}

// HasPendingSync reports whether a sync waits for login.
func (c *Client) HasPendingSync(ctx context.Context) (bool, error) {
	return c.Orchestrator.HasPendingSync(ctx)
}

// Watch re-checks connectivity until ctx ends and syncs whenever the server
// comes back while local changes are pending.
func (c *Client) Watch(ctx context.Context, onResult func(*sync.Result)) {
	online := make(chan struct{}, 1)
	unsubscribe := c.Monitor.Subscribe(func(up bool) {
		if !up {
			return
		}
		select {
		case online <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	go c.Monitor.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-online:
			if !c.Status().Dirty {
				continue
			}
			result, err := c.Orchestrator.RequestSync(ctx, sync.Context{
				IsAuthenticated: c.IsAuthenticated(),
				IsOnline:        c.Monitor.Online(),
			})
			if err != nil {
				c.logger.WithError(err).Warn("Background sync failed")
				continue
			}
			if onResult != nil {
				onResult(result)
			}
		}
	}
}

// ImportFile applies an exported file. Replacing imports back up the
// current data first.
func (c *Client) ImportFile(ctx context.Context, data []byte, mode vocab.ImportMode) (*vocab.ImportResult, error) {
	file, err := vocab.ParseVocabFile(data)
	if err != nil {
		return nil, err
	}

	if mode == vocab.ImportReplace {
		if _, err := c.Backups.Backup(ctx, c.Repo.Snapshot()); err != nil {
			return nil, fmt.Errorf("backup before import: %w", err)
		}
	}

	return c.Repo.Import(ctx, file, mode)
}

// Export returns the local file as JSON and a suggested file name.
func (c *Client) Export() ([]byte, string, error) {
	data, err := c.Repo.Export()
	if err != nil {
		return nil, "", err
	}
	return data, vocab.ExportFileName(time.Now()), nil
}

// RestoreBackup backs up the current data and replaces it with the backup
// stored under key.
func (c *Client) RestoreBackup(ctx context.Context, key string) (*vocab.ImportResult, error) {
	file, err := c.Backups.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load backup: %w", err)
	}

	if _, err := c.Backups.Backup(ctx, c.Repo.Snapshot()); err != nil {
		return nil, fmt.Errorf("backup before restore: %w", err)
	}

	return c.Repo.Import(ctx, file, vocab.ImportReplace)
}

// Close releases the transport and stores.
func (c *Client) Close() error {
	var errs []error
	if c.transport != nil {
		errs = append(errs, c.transport.Close())
	}
	errs = append(errs, c.closeStores())
	return errors.Join(errs...)
}

func (c *Client) closeStores() error {
	var errs []error
	for _, s := range c.opened {
		errs = append(errs, s.Close())
	}
	c.opened = nil
	return errors.Join(errs...)
}
