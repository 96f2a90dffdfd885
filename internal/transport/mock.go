package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/TheMichaelB/vocabsync/internal/models"
)

// Mock operation names for QueueError and Calls.
const (
	OpGet    = "get"
	OpPut    = "put"
	OpForce  = "force"
	OpHealth = "health"
)

// MockTransport provides a mock implementation for testing.
type MockTransport struct {
	mu sync.Mutex

	// Response configuration
	ServerData    *models.ServerData
	PutResponse   *models.SyncResponse
	ForceResponse *models.SyncResponse

	// Error injection. Persistent errors apply to every call; queued errors
	// are consumed one per call before the persistent ones are checked.
	GetError    error
	PutError    error
	ForceError  error
	HealthError error
	queued      map[string][]error

	// Request tracking
	PutRequests   []models.SyncRequest
	ForceRequests []models.ForceSyncRequest
	calls         map[string]int

	// State
	token  string
	closed bool
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		queued: make(map[string][]error),
		calls:  make(map[string]int),
	}
}

// GetVocab returns ServerData or a 404 when none is configured.
func (m *MockTransport) GetVocab(ctx context.Context) (*models.ServerData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.next(OpGet, m.GetError); err != nil {
		return nil, err
	}
	if m.ServerData == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrNoServerData, &models.APIError{
			Code:       models.ErrCodeNotFound,
			Message:    "no vocabulary stored",
			StatusCode: 404,
		})
	}

	out := *m.ServerData
	out.File = m.ServerData.File.Clone()
	return &out, nil
}

// PutVocab records the request and returns PutResponse.
func (m *MockTransport) PutVocab(ctx context.Context, req *models.SyncRequest) (*models.SyncResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tracked := *req
	tracked.File = req.File.Clone()
	m.PutRequests = append(m.PutRequests, tracked)

	if err := m.next(OpPut, m.PutError); err != nil {
		return nil, err
	}
	if m.PutResponse == nil {
		return nil, fmt.Errorf("no mock response for %s", OpPut)
	}

	resp := *m.PutResponse
	return &resp, nil
}

// ForcePutVocab records the request and returns ForceResponse.
func (m *MockTransport) ForcePutVocab(ctx context.Context, req *models.ForceSyncRequest) (*models.SyncResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tracked := *req
	tracked.File = req.File.Clone()
	m.ForceRequests = append(m.ForceRequests, tracked)

	if err := m.next(OpForce, m.ForceError); err != nil {
		return nil, err
	}
	if m.ForceResponse == nil {
		return nil, fmt.Errorf("no mock response for %s", OpForce)
	}

	resp := *m.ForceResponse
	return &resp, nil
}

// Health mocks the health check.
func (m *MockTransport) Health(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next(OpHealth, m.HealthError)
}

// SetToken mocks token setting.
func (m *MockTransport) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// GetToken returns the current token.
func (m *MockTransport) GetToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Close mocks connection closing.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Helper methods for test setup

// QueueError makes the next call of op fail with err. Calls consume queued
// errors in order.
func (m *MockTransport) QueueError(op string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued[op] = append(m.queued[op], errs...)
}

// Calls returns how many times op was invoked.
func (m *MockTransport) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockTransport) next(op string, persistent error) error {
	m.calls[op]++
	if q := m.queued[op]; len(q) > 0 {
		m.queued[op] = q[1:]
		if q[0] != nil {
			return q[0]
		}
		return nil
	}
	return persistent
}
