package transport

import (
	"context"

	"github.com/TheMichaelB/vocabsync/internal/config"
	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/models"
)

// Transport is the client side of the vocabulary sync wire protocol.
// Every call is a single attempt; callers wrap them with Do.
type Transport interface {
	// GetVocab fetches the server document. It fails with an error matching
	// models.ErrNoServerData when nothing has been stored yet.
	GetVocab(ctx context.Context) (*models.ServerData, error)

	// PutVocab stores a document if req.ServerRev is still current, and
	// fails with a 409 APIError otherwise.
	PutVocab(ctx context.Context, req *models.SyncRequest) (*models.SyncResponse, error)

	// ForcePutVocab stores a document without a revision check.
	ForcePutVocab(ctx context.Context, req *models.ForceSyncRequest) (*models.SyncResponse, error)

	// Health confirms the server is reachable.
	Health(ctx context.Context) error

	// Authentication
	SetToken(token string)
	GetToken() string

	// Lifecycle
	Close() error
}

// NewTransport creates the HTTP transport.
func NewTransport(cfg *config.APIConfig, logger *events.Logger) Transport {
	return NewHTTPClient(cfg, logger)
}
