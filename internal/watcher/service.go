// Package watcher runs the periodic expiry check that renews the credential
// before it runs out.
package watcher

import (
	"context"
	"time"

	"github.com/raine/console-session/internal/auth"
	"github.com/raine/console-session/internal/session"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the time between expiry checks.
const DefaultInterval = 60 * time.Second

// Refresher is the renewal the monitor triggers.
type Refresher interface {
	Refresh(ctx context.Context) (auth.Outcome, error)
}

// Monitor checks the stored credential on a fixed interval and renews it once
// it enters the Expiring state.
type Monitor struct {
	store     *session.Store
	refresher Refresher
	interval  time.Duration
}

// NewMonitor creates a monitor. A non-positive interval uses DefaultInterval.
func NewMonitor(store *session.Store, refresher Refresher, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		store:     store,
		refresher: refresher,
		interval:  interval,
	}
}

// Run starts the check loop. It blocks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	log.Info().Dur("interval", m.interval).Msg("starting expiry monitor")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("expiry monitor stopped")
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one check and reports whether a renewal was attempted.
// It is a no-op unless the session is authenticated with a tracked expiry
// that is within the renewal threshold.
func (m *Monitor) Tick(ctx context.Context) bool {
	if m.store.State() != session.Expiring {
		return false
	}

	remaining, _ := m.store.Remaining()
	log.Info().Dur("remaining", remaining).Msg("credential expiring soon")

	outcome, err := m.refresher.Refresh(ctx)
	if err != nil {
		log.Debug().Err(err).Str("outcome", outcome.String()).Msg("renewal from expiry monitor failed")
		return true
	}
	log.Debug().Str("outcome", outcome.String()).Msg("renewal from expiry monitor done")
	return true
}
