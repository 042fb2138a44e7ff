package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/raine/console-session/internal/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrRenewalRejected wraps the error of a renewal the server refused with 401.
var ErrRenewalRejected = errors.New("renewal rejected")

// Renewer performs the renewal call, authenticated with cred.
type Renewer interface {
	Renew(ctx context.Context, cred session.Credential) (*session.LoginPayload, error)
}

// Outcome is the result of one renewal attempt.
type Outcome int

const (
	// Skipped means there was no valid credential to renew.
	Skipped Outcome = iota
	Renewed
	// Transient failures leave the credential untouched.
	Transient
	// Terminal failures clear the credential.
	Terminal
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "Skipped"
	case Renewed:
		return "Renewed"
	case Transient:
		return "Transient"
	case Terminal:
		return "Terminal"
	default:
		return "Unknown"
	}
}

// RefresherOptions configures a Refresher.
type RefresherOptions struct {
	Paths Paths
	// MaxTransientFailures forces a logout after this many consecutive
	// transient failures. Zero disables it; the local expiry still applies.
	MaxTransientFailures int
}

// Refresher renews the stored credential. Concurrent calls share one
// in-flight renewal.
type Refresher struct {
	renewer Renewer
	store   *session.Store
	nav     Navigator
	opts    RefresherOptions

	group singleflight.Group

	mu                sync.Mutex
	transientFailures int
}

// NewRefresher creates a refresher. nav may be nil.
func NewRefresher(renewer Renewer, store *session.Store, nav Navigator, opts RefresherOptions) *Refresher {
	return &Refresher{
		renewer: renewer,
		store:   store,
		nav:     nav,
		opts:    opts,
	}
}

// Refresh renews the credential, or joins a renewal already in flight.
func (r *Refresher) Refresh(ctx context.Context) (Outcome, error) {
	v, err, shared := r.group.Do("refresh", func() (any, error) {
		return r.refresh(ctx)
	})
	if shared {
		log.Debug().Msg("joined in-flight renewal")
	}
	return v.(Outcome), err
}

func (r *Refresher) refresh(ctx context.Context) (Outcome, error) {
	cred, ok := r.store.Current()
	if !ok {
		log.Debug().Msg("no credential to renew")
		return Skipped, nil
	}

	log.Info().Time("expiresAt", cred.ExpiresAt).Msg("attempting credential renewal")

	payload, err := r.renewer.Renew(ctx, cred)
	if err != nil {
		if statusCode(err) == http.StatusUnauthorized {
			return r.terminal(fmt.Errorf("%w: %w", ErrRenewalRejected, err))
		}
		return r.transient(err)
	}
	if payload == nil {
		return r.transient(errors.New("empty renewal response"))
	}

	if err := r.store.Save(*payload); err != nil {
		return r.transient(fmt.Errorf("invalid renewal response: %w", err))
	}

	r.mu.Lock()
	r.transientFailures = 0
	r.mu.Unlock()

	log.Info().Msg("credential renewal successful")
	return Renewed, nil
}

// transient keeps the credential; the next monitor tick retries.
func (r *Refresher) transient(err error) (Outcome, error) {
	r.mu.Lock()
	r.transientFailures++
	failures := r.transientFailures
	r.mu.Unlock()

	if r.opts.MaxTransientFailures > 0 && failures >= r.opts.MaxTransientFailures {
		log.Error().Err(err).Int("failures", failures).Msg("too many failed renewals; ending session")
		return r.terminal(err)
	}

	log.Warn().Err(err).Int("failures", failures).Msg("credential renewal failed; will retry")
	return Transient, err
}

// terminal ends the session and sends the user to the login view.
func (r *Refresher) terminal(err error) (Outcome, error) {
	r.mu.Lock()
	r.transientFailures = 0
	r.mu.Unlock()

	log.Warn().Err(err).Msg("session cannot be renewed; logging out")

	if r.nav != nil {
		location := r.nav.Location()
		if r.opts.Paths.Interactive(location) {
			r.store.RememberReturn(location)
		}
		r.store.Clear()
		if !r.opts.Paths.IsAuthView(location) && r.opts.Paths.LoginView != "" {
			r.nav.Navigate(r.opts.Paths.LoginView)
		}
		return Terminal, err
	}

	r.store.Clear()
	return Terminal, err
}

type statusCoder interface {
	StatusCode() int
}

func statusCode(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}
