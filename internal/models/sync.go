package models

import (
	"time"
)

// SyncMetadata is the client's local view of its sync progress. Never sent to the server.
type SyncMetadata struct {
	ClientID   string     `json:"clientId"`
	ServerRev  int64      `json:"serverRev"`
	Dirty      bool       `json:"dirty"`
	LastSyncAt *time.Time `json:"lastSyncAt"`
}

// NewSyncMetadata creates metadata for a fresh installation.
func NewSyncMetadata(clientID string) *SyncMetadata {
	return &SyncMetadata{
		ClientID: clientID,
	}
}

// MarkSynced records a verified reconciliation with the server.
func (m *SyncMetadata) MarkSynced(serverRev int64, at time.Time) {
	m.ServerRev = serverRev
	m.Dirty = false
	t := at.UTC()
	m.LastSyncAt = &t
}

// Clone returns a copy that shares no pointers.
func (m *SyncMetadata) Clone() *SyncMetadata {
	if m == nil {
		return nil
	}
	out := *m
	if m.LastSyncAt != nil {
		t := *m.LastSyncAt
		out.LastSyncAt = &t
	}
	return &out
}

// StorageVersionSnapshot is the schema version marker kept by the migration policy.
type StorageVersionSnapshot struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConflictStrategy selects how a revision conflict is resolved.
type ConflictStrategy string

const (
	// StrategyFetchServer discards local changes in favor of the server copy.
	StrategyFetchServer ConflictStrategy = "fetch-server"
	// StrategyForceLocal overwrites the server copy with the local one.
	StrategyForceLocal ConflictStrategy = "force-local"
)

// Valid reports whether s names a known strategy.
func (s ConflictStrategy) Valid() bool {
	return s == StrategyFetchServer || s == StrategyForceLocal
}

// ServerData is the server's current document as returned by GET /vocab.
type ServerData struct {
	ServerRev         int64      `json:"serverRev"`
	File              *VocabFile `json:"file"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	UpdatedByClientID string     `json:"updatedByClientId"`
}

// SyncRequest is the body of a revision-checked PUT /vocab.
type SyncRequest struct {
	ServerRev *int64     `json:"serverRev"`
	File      *VocabFile `json:"file"`
	ClientID  string     `json:"clientId"`
}

// ForceSyncRequest is the body of PUT /vocab?force=true.
type ForceSyncRequest struct {
	File     *VocabFile `json:"file"`
	ClientID string     `json:"clientId"`
}

// SyncResponse acknowledges an accepted write.
type SyncResponse struct {
	OK        bool      `json:"ok"`
	ServerRev int64     `json:"serverRev"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConflictBody is the error body returned with HTTP 409.
type ConflictBody struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	ExpectedRev int64  `json:"expectedRev"`
	CurrentRev  int64  `json:"currentRev"`
}
