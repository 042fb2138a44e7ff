// Package session owns the persisted credential: saving it after login or
// renewal, clearing it, and deriving the session state from it.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raine/console-session/internal/storage"
	"github.com/rs/zerolog/log"
)

// Backend keys. Each is an independent entry; absence of KeyExpiresAt means
// the credential is valid until cleared or rejected by the server.
const (
	KeyToken     = "auth_token"
	KeyTokenType = "token_type"
	KeyUser      = "user"
	KeyExpiresAt = "token_expires_at"

	// KeyReturnTo holds the location to go back to after the next login.
	// It is not part of the credential and survives Clear.
	KeyReturnTo = "redirect_after_login"
)

// DefaultExpiringThreshold is the remaining lifetime below which a session is
// reported as Expiring.
const DefaultExpiringThreshold = 5 * time.Minute

// ErrMissingToken is returned by Save when the payload carries no access token.
var ErrMissingToken = errors.New("login payload has no access token")

// ChangeFunc is called after every mutation of the stored credential.
type ChangeFunc func(authenticated bool, user *UserRecord)

// Store is the single owner of the persisted credential for one storage scope.
// It is safe for concurrent use; every Save and Clear is a complete overwrite.
type Store struct {
	backend   storage.Backend
	now       func() time.Time
	threshold time.Duration

	mu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []ChangeFunc
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithExpiringThreshold sets the remaining lifetime below which State reports Expiring.
func WithExpiringThreshold(d time.Duration) Option {
	return func(s *Store) {
		s.threshold = d
	}
}

// NewStore creates a store over the given backend.
func NewStore(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		now:       time.Now,
		threshold: DefaultExpiringThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's notion of the current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// OnChange registers a listener for credential mutations.
func (s *Store) OnChange(fn ChangeFunc) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(authenticated bool, user *UserRecord) {
	s.listenersMu.RLock()
	listeners := make([]ChangeFunc, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(authenticated, user)
	}
}

// Save replaces the stored credential with the one in the payload.
// A payload without an access token is rejected and the prior state kept.
func (s *Store) Save(p LoginPayload) error {
	if strings.TrimSpace(p.AccessToken) == "" {
		log.Warn().Msg("refusing to save credential: missing access token")
		return ErrMissingToken
	}

	tokenType := p.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	}

	var userJSON []byte
	if p.User != nil {
		var err error
		userJSON, err = json.Marshal(p.User)
		if err != nil {
			return fmt.Errorf("failed to encode user: %w", err)
		}
	}

	now := s.now()
	var expiresAt time.Time
	if p.ExpiresIn != nil {
		expiresAt = now.Add(time.Duration(*p.ExpiresIn) * time.Second)
	}

	s.mu.Lock()
	err := s.writeLocked(p.AccessToken, tokenType, userJSON, expiresAt)
	if err != nil {
		// Never leave a mix of old and new entries behind
		s.clearLocked()
	}
	s.mu.Unlock()

	if err != nil {
		s.notify(false, nil)
		return fmt.Errorf("failed to save credential: %w", err)
	}

	authenticated := expiresAt.IsZero() || now.Before(expiresAt)
	ev := log.Info().Str("tokenType", tokenType)
	if !expiresAt.IsZero() {
		ev = ev.Time("expiresAt", expiresAt)
	}
	if p.User != nil {
		ev = ev.Str("username", p.User.Username)
	}
	ev.Msg("credential saved")

	s.notify(authenticated, p.User)
	return nil
}

// writeLocked writes the token last so that a reader in another process never
// sees a token paired with stale metadata.
func (s *Store) writeLocked(token, tokenType string, userJSON []byte, expiresAt time.Time) error {
	if err := s.backend.Set(KeyTokenType, tokenType); err != nil {
		return err
	}

	if userJSON != nil {
		if err := s.backend.Set(KeyUser, string(userJSON)); err != nil {
			return err
		}
	} else if err := s.backend.Remove(KeyUser); err != nil {
		return err
	}

	if !expiresAt.IsZero() {
		if err := s.backend.Set(KeyExpiresAt, expiresAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	} else if err := s.backend.Remove(KeyExpiresAt); err != nil {
		return err
	}

	return s.backend.Set(KeyToken, token)
}

// Clear removes every credential entry. It is idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()

	log.Info().Msg("credential cleared")
	s.notify(false, nil)
}

// clearLocked removes the token first so a partial clear never leaves a usable token.
func (s *Store) clearLocked() {
	for _, key := range []string{KeyToken, KeyTokenType, KeyUser, KeyExpiresAt} {
		if err := s.backend.Remove(key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to remove credential entry")
		}
	}
}

// Token returns the stored access token, without checking expiry.
func (s *Store) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(KeyToken)
}

// TokenType returns the stored token type, defaulting to "Bearer".
func (s *Store) TokenType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenTypeLocked()
}

// User returns the cached user record. A corrupt record is logged and
// reported as absent.
func (s *Store) User() *UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userLocked()
}

// ExpiresAt returns the tracked expiry, if any.
func (s *Store) ExpiresAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, ok, _ := s.expiresAtLocked()
	return expiresAt, ok
}

// IsAuthenticated reports whether a token is stored and not locally expired.
// Detecting expiry clears the stored credential.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Current()
	return ok
}

// Current returns the valid credential. Like IsAuthenticated, it deletes a
// credential whose local expiry has passed.
func (s *Store) Current() (Credential, bool) {
	now := s.now()

	s.mu.Lock()
	token, ok := s.getLocked(KeyToken)
	if !ok || token == "" {
		s.mu.Unlock()
		return Credential{}, false
	}

	expiresAt, hasExpiry, corrupt := s.expiresAtLocked()
	if corrupt || (hasExpiry && !now.Before(expiresAt)) {
		s.clearLocked()
		s.mu.Unlock()

		log.Info().Time("expiresAt", expiresAt).Bool("corruptExpiry", corrupt).Msg("credential expired locally")
		s.notify(false, nil)
		return Credential{}, false
	}

	cred := Credential{
		AccessToken: token,
		TokenType:   s.tokenTypeLocked(),
		ExpiresAt:   expiresAt,
		User:        s.userLocked(),
	}
	s.mu.Unlock()

	return cred, true
}

// State derives the session state. It is the only place the expiry
// comparison is made.
func (s *Store) State() State {
	cred, ok := s.Current()
	if !ok {
		return Unauthenticated
	}
	if cred.HasExpiry() && cred.ExpiresAt.Sub(s.now()) < s.threshold {
		return Expiring
	}
	return Authenticated
}

// Remaining returns the time left until the tracked expiry of a valid credential.
func (s *Store) Remaining() (time.Duration, bool) {
	cred, ok := s.Current()
	if !ok || !cred.HasExpiry() {
		return 0, false
	}
	return cred.ExpiresAt.Sub(s.now()), true
}

// RememberReturn records where to go back to after the next login.
func (s *Store) RememberReturn(location string) {
	if err := s.backend.Set(KeyReturnTo, location); err != nil {
		log.Error().Err(err).Str("location", location).Msg("failed to remember return location")
	}
}

// TakeReturn returns and forgets the remembered location.
func (s *Store) TakeReturn() (string, bool) {
	location, ok, err := s.backend.Get(KeyReturnTo)
	if err != nil {
		log.Error().Err(err).Msg("failed to read return location")
		return "", false
	}
	if !ok {
		return "", false
	}
	if err := s.backend.Remove(KeyReturnTo); err != nil {
		log.Error().Err(err).Msg("failed to remove return location")
	}
	return location, location != ""
}

func (s *Store) getLocked(key string) (string, bool) {
	v, ok, err := s.backend.Get(key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to read credential entry")
		return "", false
	}
	return v, ok
}

func (s *Store) tokenTypeLocked() string {
	v, ok := s.getLocked(KeyTokenType)
	if !ok || v == "" {
		return DefaultTokenType
	}
	return v
}

func (s *Store) userLocked() *UserRecord {
	raw, ok := s.getLocked(KeyUser)
	if !ok || raw == "" {
		return nil
	}
	var u UserRecord
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		log.Warn().Err(err).Msg("cached user record is corrupt")
		return nil
	}
	return &u
}

// expiresAtLocked reports corrupt=true for an unparsable entry, which callers
// treat as expired.
func (s *Store) expiresAtLocked() (expiresAt time.Time, ok bool, corrupt bool) {
	raw, ok := s.getLocked(KeyExpiresAt)
	if !ok || raw == "" {
		return time.Time{}, false, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		log.Warn().Err(err).Str("value", raw).Msg("stored expiry is corrupt")
		return time.Time{}, false, true
	}
	return t, true, false
}
