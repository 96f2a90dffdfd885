package connectivity_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/vocabsync/internal/connectivity"
	"github.com/TheMichaelB/vocabsync/internal/events"
)

type fakeChecker struct {
	mu    sync.Mutex
	err   error
	calls int32
}

func (f *fakeChecker) Health(ctx context.Context) error {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeChecker) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func newMonitor(checker connectivity.HealthChecker, interval time.Duration, initial bool) *connectivity.Monitor {
	var buf bytes.Buffer
	return connectivity.NewMonitor(checker, interval, initial, events.NewTestLogger(events.DebugLevel, "json", &buf))
}

func TestSubscribeReceivesCurrentStateImmediately(t *testing.T) {
	m := newMonitor(&fakeChecker{}, 0, true)

	var got []bool
	unsubscribe := m.Subscribe(func(online bool) { got = append(got, online) })
	assert.Equal(t, []bool{true}, got)

	m.SetOnline(true)
	assert.Equal(t, []bool{true}, got, "no callback without a change")

	m.SetOnline(false)
	assert.Equal(t, []bool{true, false}, got)

	unsubscribe()
	m.SetOnline(true)
	assert.Equal(t, []bool{true, false}, got)
}

func TestCheckUsesHealthRequest(t *testing.T) {
	checker := &fakeChecker{err: errors.New("dial tcp: connection refused")}
	m := newMonitor(checker, 0, true)

	assert.False(t, m.Check(context.Background()))
	assert.False(t, m.Online())

	checker.setErr(nil)
	assert.True(t, m.Check(context.Background()))
	assert.True(t, m.Online())
}

func TestRunRechecksWhileOffline(t *testing.T) {
	checker := &fakeChecker{err: errors.New("offline")}
	m := newMonitor(checker, 10*time.Millisecond, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&checker.calls) >= 3 }, time.Second, 5*time.Millisecond)

	checker.setErr(nil)
	assert.Eventually(t, m.Online, time.Second, 5*time.Millisecond)

	// Online: no further checks.
	settled := atomic.LoadInt32(&checker.calls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, atomic.LoadInt32(&checker.calls))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
