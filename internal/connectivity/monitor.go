// Package connectivity tracks whether the sync server is reachable.
//
// The status is confirmed by a health request rather than assumed from the
// network interface state. A Monitor is owned by the composition root and
// handed to whatever needs to read or react to it.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/TheMichaelB/vocabsync/internal/events"
)

// DefaultInterval is how often Run re-checks while offline.
const DefaultInterval = 10 * time.Second

// HealthChecker is the part of the transport the monitor needs.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Monitor holds the current online state and notifies subscribers on change.
type Monitor struct {
	checker  HealthChecker
	interval time.Duration
	logger   *events.Logger

	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
}

// NewMonitor creates a monitor that starts in the given state.
func NewMonitor(checker HealthChecker, interval time.Duration, initial bool, logger *events.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		checker:  checker,
		interval: interval,
		online:   initial,
		subs:     make(map[int]func(bool)),
		logger:   logger.WithField("component", "connectivity"),
	}
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe calls fn with the current state now and again on every change.
// The returned function removes the subscription.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	current := m.online
	m.mu.Unlock()

	fn(current)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// SetOnline records a new state. Subscribers run only when it changes.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.logger.WithField("online", online).Info("Connectivity changed")

	for _, fn := range subs {
		fn(online)
	}
}

// Check asks the server and records the answer.
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.checker.Health(ctx)
	if err != nil {
		m.logger.WithError(err).Debug("Health check failed")
	}
	online := err == nil
	m.SetOnline(online)
	return online
}

// Run checks once, then re-checks every interval while offline, until ctx
// is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.Online() {
				m.Check(ctx)
			}
		}
	}
}
