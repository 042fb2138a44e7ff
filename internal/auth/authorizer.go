package auth

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	"github.com/raine/console-session/internal/session"
	"github.com/rs/zerolog/log"
)

// Authorizer is http.RoundTripper middleware around the console's single HTTP
// client. It injects the Authorization header and recovers from 401s.
type Authorizer struct {
	next  http.RoundTripper
	store *session.Store
	nav   Navigator
	paths Paths

	// serializes 401 recovery so concurrent rejections navigate once
	recoverMu sync.Mutex
}

var _ http.RoundTripper = (*Authorizer)(nil)

// NewAuthorizer wraps next. A nil next uses http.DefaultTransport; a nil nav
// means every call runs in API context.
func NewAuthorizer(next http.RoundTripper, store *session.Store, nav Navigator, paths Paths) *Authorizer {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Authorizer{
		next:  next,
		store: store,
		nav:   nav,
		paths: paths,
	}
}

func (a *Authorizer) RoundTrip(req *http.Request) (*http.Response, error) {
	if a.paths.Bypassed(req.URL.Path) {
		return a.next.RoundTrip(req)
	}

	if cred, ok := a.store.Current(); ok {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", cred.AuthorizationHeader())
	}

	resp, err := a.next.RoundTrip(req)
	if err != nil {
		log.Error().Err(err).Str("method", req.Method).Str("url", req.URL.Redacted()).Msg("request failed")
		return resp, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		bufferBody(resp)
		a.recover(req)
	}

	return resp, nil
}

// recover handles a rejected credential. In the interactive UI the user is
// sent to the login view and brought back afterwards; elsewhere the
// credential is only cleared.
func (a *Authorizer) recover(req *http.Request) {
	a.recoverMu.Lock()
	defer a.recoverMu.Unlock()

	location := ""
	if a.nav != nil {
		location = a.nav.Location()
	}

	if a.nav != nil && a.paths.Interactive(location) {
		log.Warn().
			Str("url", req.URL.Redacted()).
			Str("location", location).
			Msg("credential rejected; redirecting to login")
		a.store.RememberReturn(location)
		a.store.Clear()
		a.nav.Navigate(a.paths.LoginView)
		return
	}

	log.Warn().Str("url", req.URL.Redacted()).Msg("credential rejected; clearing")
	a.store.Clear()
}

// bufferBody reads the body up front so the caller gets an equivalent,
// still-readable response.
func bufferBody(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		log.Warn().Err(err).Msg("failed to read rejected response body")
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
}
