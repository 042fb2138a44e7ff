// Package auth attaches the stored credential to outgoing API calls, recovers
// from server-side rejection and renews the credential before it expires.
package auth

import (
	"net/url"
	"strings"
	"sync"
)

// Navigator is the console's view of "where the user is". Navigate replaces
// the current location.
type Navigator interface {
	Location() string
	Navigate(location string)
}

// Paths describes the console's routing contract.
type Paths struct {
	LoginView    string
	RegisterView string
	// UIPrefix marks the interactive, human-facing part of the console.
	// Locations outside it are treated as API context.
	UIPrefix string
	// Bypass lists API paths that are never gated: login, registration,
	// token issuance and renewal.
	Bypass []string
}

// DefaultPaths returns the routing used by the console frontend.
func DefaultPaths() Paths {
	return Paths{
		LoginView:    "/ui/login",
		RegisterView: "/ui/register",
		UIPrefix:     "/ui",
		Bypass: []string{
			"/api/auth/login",
			"/api/auth/register",
			"/api/auth/token",
			"/api/auth/refresh",
		},
	}
}

// Bypassed reports whether calls to the API path skip authorization.
func (p Paths) Bypassed(path string) bool {
	path = strings.TrimRight(path, "/")
	for _, b := range p.Bypass {
		b = strings.TrimRight(b, "/")
		if b != "" && strings.HasSuffix(path, b) {
			return true
		}
	}
	return false
}

// Interactive reports whether location is inside the UI area and not itself
// the login or registration view.
func (p Paths) Interactive(location string) bool {
	path := locationPath(location)
	if p.UIPrefix == "" || !hasPathPrefix(path, p.UIPrefix) {
		return false
	}
	return !p.IsAuthView(path)
}

// IsAuthView reports whether location is the login or registration view.
func (p Paths) IsAuthView(location string) bool {
	path := strings.TrimRight(locationPath(location), "/")
	for _, view := range []string{p.LoginView, p.RegisterView} {
		if view != "" && path == strings.TrimRight(view, "/") {
			return true
		}
	}
	return false
}

func locationPath(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return location
	}
	return u.Path
}

func hasPathPrefix(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// History is an in-memory Navigator that records every navigation.
type History struct {
	mu      sync.Mutex
	current string
	visited []string
}

// NewHistory creates a History positioned at location.
func NewHistory(location string) *History {
	return &History{current: location}
}

func (h *History) Location() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *History) Navigate(location string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = location
	h.visited = append(h.visited, location)
}

// Visited returns the locations navigated to, oldest first.
func (h *History) Visited() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.visited))
	copy(out, h.visited)
	return out
}
