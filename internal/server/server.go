// Package server is the reference sync server: a single revisioned document
// per user behind GET/PUT /vocab.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/models"
	"github.com/TheMichaelB/vocabsync/internal/services/backup"
	"github.com/TheMichaelB/vocabsync/internal/storage"
)

// DefaultUser owns every request when no tokens are configured.
const DefaultUser = "local"

const maxBodyBytes = 10 << 20

// maxSwapAttempts bounds how often a forced write re-reads after losing a
// conditional write to another instance.
const maxSwapAttempts = 5

// Options configures a Server.
type Options struct {
	Tokens     map[string]string // bearer token -> user ID; empty disables auth
	MaxBackups int
	Now        func() time.Time
}

// document is the single stored record for one user. The file and its
// revision share one value so one conditional write covers both.
type document struct {
	ServerRev         int64             `json:"serverRev"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	UpdatedByClientID string            `json:"updatedByClientId"`
	File              *models.VocabFile `json:"file"`
}

// Server serves the sync protocol over any storage.Store.
type Server struct {
	store      storage.Store
	tokens     map[string]string
	maxBackups int
	now        func() time.Time
	logger     *events.Logger
	mux        *http.ServeMux

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a server.
func New(store storage.Store, opts Options, logger *events.Logger) *Server {
	s := &Server{
		store:      store,
		tokens:     opts.Tokens,
		maxBackups: opts.MaxBackups,
		now:        opts.Now,
		logger:     logger.WithField("component", "server"),
		mux:        http.NewServeMux(),
		locks:      make(map[string]*sync.Mutex),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxBackups <= 0 {
		s.maxBackups = backup.DefaultMaxBackups
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /vocab", s.authenticated(s.handleGet))
	s.mux.HandleFunc("PUT /vocab", s.authenticated(s.handlePut))

	return s
}

// ServeHTTP assigns a request ID and dispatches.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)

	logger := s.logger.WithFields(map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	ctx := events.WithRequestID(events.WithLogger(r.Context(), logger), requestID)

	start := time.Now()
	s.mux.ServeHTTP(w, r.WithContext(ctx))
	events.FromContext(ctx).WithField("duration", time.Since(start).String()).Debug("Handled request")
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Sync server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("Shutting down sync server")
		return srv.Shutdown(shutdownCtx)
	}
}

func userFrom(ctx context.Context) string {
	if id := events.GetUserID(ctx); id != "" {
		return id
	}
	return DefaultUser
}

// authenticated resolves the bearer token to a user.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := DefaultUser
		if len(s.tokens) > 0 {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			id, known := s.tokens[strings.TrimSpace(token)]
			if !ok || !known {
				s.writeError(w, r, http.StatusUnauthorized, models.ErrCodeUnauthorized, "missing or invalid bearer token")
				return
			}
			userID = id
		}

		next(w, r.WithContext(events.WithUserID(r.Context(), userID)))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFrom(ctx)

	unlock := s.lockUser(userID)
	defer unlock()

	doc, _, err := s.load(ctx, userID)
	if err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	if doc == nil {
		s.writeError(w, r, http.StatusNotFound, models.ErrCodeNotFound, "no vocabulary data found")
		return
	}

	events.FromContext(ctx).WithFields(map[string]interface{}{
		"server_rev": doc.ServerRev,
		"words":      len(doc.File.Words),
	}).Info("Vocab fetched")

	s.writeJSON(w, http.StatusOK, models.ServerData{
		ServerRev:         doc.ServerRev,
		File:              doc.File,
		UpdatedAt:         doc.UpdatedAt,
		UpdatedByClientID: doc.UpdatedByClientID,
	})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFrom(ctx)
	force := r.URL.Query().Get("force") == "true"

	var req models.SyncRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, models.ErrCodeBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.File == nil {
		s.writeError(w, r, http.StatusBadRequest, models.ErrCodeBadRequest, "file is required")
		return
	}
	if !force && req.ServerRev == nil {
		s.writeError(w, r, http.StatusBadRequest, models.ErrCodeBadRequest, "normal sync requires serverRev")
		return
	}
	req.File.Normalize()
	ctx = events.WithClientID(ctx, req.ClientID)

	// The user lock only orders requests within this process. Other
	// instances over the same store are excluded by the conditional write.
	unlock := s.lockUser(userID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		current, raw, err := s.load(ctx, userID)
		if err != nil {
			s.writeStorageError(w, r, err)
			return
		}
		var currentRev int64
		if current != nil {
			currentRev = current.ServerRev
		}

		logger := events.FromContext(ctx).WithFields(map[string]interface{}{
			"current_rev": currentRev,
			"force":       force,
			"attempt":     attempt,
		})

		if !force && *req.ServerRev != currentRev {
			logger.WithField("expected_rev", *req.ServerRev).Warn("Vocab sync conflict")
			s.writeConflict(w, *req.ServerRev, currentRev)
			return
		}
		if attempt > maxSwapAttempts {
			logger.Warn("Gave up write after repeated concurrent updates")
			s.writeError(w, r, http.StatusServiceUnavailable, models.ErrCodeServerError, "document is being updated concurrently, retry")
			return
		}

		if force && current != nil {
			svc := backup.NewService(s.store, s.logger,
				backup.WithPrefix(userPrefix(userID)+backup.DefaultPrefix),
				backup.WithMaxBackups(s.maxBackups))
			if _, err := svc.BackupRevision(ctx, current.File, current.ServerRev); err != nil {
				logger.WithError(err).Warn("Failed to back up before forced write")
			}
		}

		next := document{
			ServerRev:         currentRev + 1,
			UpdatedAt:         s.now().UTC(),
			UpdatedByClientID: req.ClientID,
			File:              req.File,
		}
		saved, err := s.save(ctx, userID, raw, next)
		if err != nil {
			s.writeStorageError(w, r, err)
			return
		}
		if !saved {
			logger.Debug("Document changed during write, re-reading")
			continue
		}

		logger.WithFields(map[string]interface{}{
			"server_rev": next.ServerRev,
			"words":      len(req.File.Words),
		}).Info("Vocab synced")

		s.writeJSON(w, http.StatusOK, models.SyncResponse{
			OK:        true,
			ServerRev: next.ServerRev,
			UpdatedAt: next.UpdatedAt,
		})
		return
	}
}

// lockUser serializes reads and writes of one user's document.
func (s *Server) lockUser(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func userPrefix(userID string) string {
	return "users/" + userID + "/"
}

func documentKey(userID string) string { return userPrefix(userID) + "vocab.json" }

// load returns a nil document when the user has none yet, along with the raw
// stored value that a later save must still find in place.
func (s *Server) load(ctx context.Context, userID string) (*document, string, error) {
	raw, err := s.store.Get(ctx, documentKey(userID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}

	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", documentKey(userID), err)
	}
	if doc.File == nil {
		return nil, "", fmt.Errorf("decode %s: document has no file", documentKey(userID))
	}
	doc.File.Normalize()
	if doc.UpdatedByClientID == "" {
		doc.UpdatedByClientID = "unknown"
	}

	return &doc, raw, nil
}

// save writes doc only if the stored value is still old ("" for absent) and
// reports whether it did. Stores without conditional writes fall back to a
// plain Set, which is safe only while a single Server owns the store.
func (s *Server) save(ctx context.Context, userID, old string, doc document) (bool, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode document: %w", err)
	}

	swapper, ok := s.store.(storage.Swapper)
	if !ok {
		return true, s.store.Set(ctx, documentKey(userID), string(data))
	}
	return swapper.CompareAndSwap(ctx, documentKey(userID), old, string(data))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	events.FromContext(r.Context()).WithFields(map[string]interface{}{
		"status": status,
		"code":   code,
	}).Debug(message)

	s.writeJSON(w, status, models.APIError{
		Code:       code,
		Message:    message,
		StatusCode: status,
		RequestID:  events.GetRequestID(r.Context()),
	})
}

func (s *Server) writeConflict(w http.ResponseWriter, expected, current int64) {
	s.writeJSON(w, http.StatusConflict, models.ConflictBody{
		Code:        models.ErrCodeConflict,
		Message:     "server data has changed since your last sync",
		ExpectedRev: expected,
		CurrentRev:  current,
	})
}

func (s *Server) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	events.FromContext(r.Context()).WithError(err).Error("Storage failure")
	s.writeError(w, r, http.StatusInternalServerError, models.ErrCodeStorage, "storage failure")
}
