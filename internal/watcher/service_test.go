package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/raine/console-session/internal/auth"
	"github.com/raine/console-session/internal/session"
	"github.com/raine/console-session/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockRefresher struct {
	mu    sync.Mutex
	calls int
}

func (m *mockRefresher) Refresh(ctx context.Context) (auth.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return auth.Renewed, nil
}

func (m *mockRefresher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestMonitor(interval time.Duration) (*Monitor, *session.Store, *mockRefresher, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := session.NewStore(storage.NewMemoryBackend(), session.WithClock(clock.Now))
	refresher := &mockRefresher{}
	return NewMonitor(store, refresher, interval), store, refresher, clock
}

func expiresIn(seconds int64) *int64 {
	return &seconds
}

func TestTick_RefreshesWhenExpiring(t *testing.T) {
	m, store, refresher, clock := newTestMonitor(time.Minute)
	require.NoError(t, store.Save(session.LoginPayload{AccessToken: "abc", ExpiresIn: expiresIn(300)}))

	clock.Advance(295 * time.Second)

	assert.True(t, m.Tick(context.Background()))
	assert.Equal(t, 1, refresher.Calls())
}

func TestTick_NoopOutsideWindow(t *testing.T) {
	tests := []struct {
		name    string
		payload *session.LoginPayload
		advance time.Duration
	}{
		{"logged out", nil, 0},
		{"no expiry", &session.LoginPayload{AccessToken: "abc"}, 24 * time.Hour},
		{"plenty of time", &session.LoginPayload{AccessToken: "abc", ExpiresIn: expiresIn(3600)}, 10 * time.Minute},
		{"already expired", &session.LoginPayload{AccessToken: "abc", ExpiresIn: expiresIn(300)}, 301 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store, refresher, clock := newTestMonitor(time.Minute)
			if tt.payload != nil {
				require.NoError(t, store.Save(*tt.payload))
			}
			clock.Advance(tt.advance)

			assert.False(t, m.Tick(context.Background()))
			assert.Equal(t, 0, refresher.Calls())
		})
	}
}

func TestTick_ExpiredCredentialIsCleared(t *testing.T) {
	m, store, _, clock := newTestMonitor(time.Minute)
	require.NoError(t, store.Save(session.LoginPayload{AccessToken: "abc", ExpiresIn: expiresIn(60)}))
	clock.Advance(2 * time.Minute)

	m.Tick(context.Background())

	_, ok := store.Token()
	assert.False(t, ok)
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	m, store, refresher, clock := newTestMonitor(5 * time.Millisecond)
	require.NoError(t, store.Save(session.LoginPayload{AccessToken: "abc", ExpiresIn: expiresIn(300)}))
	clock.Advance(4 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return refresher.Calls() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
}

func TestNewMonitor_DefaultInterval(t *testing.T) {
	m := NewMonitor(nil, nil, 0)
	assert.Equal(t, DefaultInterval, m.interval)
}
