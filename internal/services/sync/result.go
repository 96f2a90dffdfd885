package sync

import (
	"time"

	"github.com/TheMichaelB/vocabsync/internal/models"
)

// Status is the outcome of a sync cycle or orchestration request.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusConflict       Status = "conflict"
	StatusError          Status = "error"
	StatusBlockedOffline Status = "blocked-offline"
	StatusRequiresAuth   Status = "requires-auth"
)

// Result is returned by every sync operation. Protocol outcomes are values,
// not errors: only the fields relevant to Status are set.
type Result struct {
	Status Status `json:"status"`

	// success
	ServerRev int64      `json:"serverRev,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`

	// conflict
	LocalFile  *models.VocabFile  `json:"localFile,omitempty"`
	ServerData *models.ServerData `json:"serverData,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SyncStatus is a read-only projection of connectivity and sync metadata.
type SyncStatus struct {
	Online     bool       `json:"online"`
	Dirty      bool       `json:"dirty"`
	LastSyncAt *time.Time `json:"lastSyncAt"`
	ClientID   string     `json:"clientId"`
	ServerRev  int64      `json:"serverRev"`
}

func successResult(serverRev int64, updatedAt time.Time) *Result {
	t := updatedAt.UTC()
	return &Result{Status: StatusSuccess, ServerRev: serverRev, UpdatedAt: &t}
}

func conflictResult(local *models.VocabFile, server *models.ServerData) *Result {
	return &Result{Status: StatusConflict, LocalFile: local, ServerData: server}
}

func errorResult(code string, err error) *Result {
	return &Result{Status: StatusError, Code: code, Message: err.Error()}
}
