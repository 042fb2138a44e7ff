// Package app wires the session store, the authorizing HTTP client, the
// renewal machinery and the UI projection into one console session.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/raine/console-session/config"
	"github.com/raine/console-session/internal/auth"
	"github.com/raine/console-session/internal/console"
	"github.com/raine/console-session/internal/session"
	"github.com/raine/console-session/internal/storage"
	"github.com/raine/console-session/internal/ui"
	"github.com/raine/console-session/internal/watcher"
	"github.com/rs/zerolog/log"
)

type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	APIPaths       console.APIPaths
	Paths          auth.Paths

	CheckInterval      time.Duration
	ExpiringThreshold  time.Duration
	MaxRenewalFailures int

	// Transport is the network transport below the authorizer.
	Transport http.RoundTripper
	// Clock replaces time.Now in the store.
	Clock func() time.Time
	// Document is the page kept in sync with the session; nil uses the built-in shell.
	Document *ui.Document
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:        cfg.APIBaseURL,
		RequestTimeout: cfg.RequestTimeout,
		APIPaths: console.APIPaths{
			Token:    cfg.TokenPath,
			Register: cfg.RegisterAPIPath,
			Refresh:  cfg.RefreshPath,
		},
		Paths: auth.Paths{
			LoginView:    cfg.LoginView,
			RegisterView: cfg.RegisterView,
			UIPrefix:     cfg.UIPrefix,
			Bypass:       cfg.BypassPaths(),
		},
		CheckInterval:      cfg.CheckInterval,
		ExpiringThreshold:  cfg.ExpiringThreshold,
		MaxRenewalFailures: cfg.MaxRenewalFailures,
	}
}

// Manager is one console session.
type Manager struct {
	Store      *session.Store
	Authorizer *auth.Authorizer
	Client     *console.Client
	Refresher  *auth.Refresher
	Monitor    *watcher.Monitor
	Projector  *ui.Projector

	nav   auth.Navigator
	paths auth.Paths
}

// New builds a Manager over backend. nav may be nil for pure API use.
func New(backend storage.Backend, nav auth.Navigator, opts Options) *Manager {
	storeOpts := []session.Option{}
	if opts.Clock != nil {
		storeOpts = append(storeOpts, session.WithClock(opts.Clock))
	}
	if opts.ExpiringThreshold > 0 {
		storeOpts = append(storeOpts, session.WithExpiringThreshold(opts.ExpiringThreshold))
	}
	store := session.NewStore(backend, storeOpts...)

	doc := opts.Document
	if doc == nil {
		doc = ui.ShellDocument()
	}
	projector := ui.NewProjector(doc)
	store.OnChange(projector.Project)

	authorizer := auth.NewAuthorizer(opts.Transport, store, nav, opts.Paths)
	client := console.NewClient(console.ClientOpts{
		BaseURL:   opts.BaseURL,
		Transport: authorizer,
		Timeout:   opts.RequestTimeout,
		Paths:     opts.APIPaths,
	})
	refresher := auth.NewRefresher(client, store, nav, auth.RefresherOptions{
		Paths:                opts.Paths,
		MaxTransientFailures: opts.MaxRenewalFailures,
	})

	m := &Manager{
		Store:      store,
		Authorizer: authorizer,
		Client:     client,
		Refresher:  refresher,
		Monitor:    watcher.NewMonitor(store, refresher, opts.CheckInterval),
		Projector:  projector,
		nav:        nav,
		paths:      opts.Paths,
	}

	// Initial projection at startup
	m.Project()
	return m
}

// Project re-renders the UI from the current state.
func (m *Manager) Project() {
	cred, ok := m.Store.Current()
	m.Projector.Project(ok, cred.User)
}

// Login obtains and stores a credential, then returns to the location the
// user was sent away from, if any.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	payload, err := m.Client.Login(ctx, username, password)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("login failed")
		return err
	}

	if err := m.Store.Save(*payload); err != nil {
		return err
	}

	log.Info().Str("username", username).Msg("user logged in successfully")

	if location, ok := m.Store.TakeReturn(); ok && m.nav != nil {
		m.nav.Navigate(location)
	}
	return nil
}

// Logout is the logout control: it clears the credential and shows the login view.
func (m *Manager) Logout() {
	m.Store.Clear()
	if m.nav != nil && m.paths.LoginView != "" {
		m.nav.Navigate(m.paths.LoginView)
	}
	log.Info().Msg("user logged out")
}

// Run runs the expiry monitor until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.Monitor.Run(ctx)
	return nil
}
