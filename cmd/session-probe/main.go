// session-probe checks a stored console session against a live API: it prints
// the session state and the claims of the token, then calls a few endpoints
// through the authorizing client and reports what came back.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/raine/console-session/config"
	"github.com/raine/console-session/internal/app"
	"github.com/raine/console-session/internal/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Read-only endpoints of the console API
var endpoints = []string{
	"/api/devices",
	"/api/videos",
	"/api/playlists",
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fmt.Println("=== Probing console session ===")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	backend, closeBackend, err := app.OpenBackend(cfg)
	if err != nil {
		fmt.Printf("Failed to open session store: %v\n", err)
		os.Exit(1)
	}
	defer closeBackend()

	// No navigator: a rejection only clears the credential
	m := app.New(backend, nil, app.OptionsFromConfig(cfg))

	state := m.Store.State()
	fmt.Printf("API:   %s\n", cfg.APIBaseURL)
	fmt.Printf("State: %s\n", state)
	if !state.IsAuthenticated() {
		fmt.Println("\nRun consolectl login first")
		os.Exit(1)
	}

	cred, _ := m.Store.Current()
	fmt.Printf("User:  %s\n", cred.User.DisplayName())
	if remaining, ok := m.Store.Remaining(); ok {
		fmt.Printf("Left:  %s\n", remaining.Round(time.Second))
	}
	fmt.Printf("Token: %s...\n", cred.AccessToken[:min(20, len(cred.AccessToken))])

	printClaims(cred.AccessToken)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	for _, path := range endpoints {
		fmt.Printf("\n--- GET %s ---\n", path)
		probe(ctx, m, path)
		if !m.Store.IsAuthenticated() {
			fmt.Println("\nCredential was rejected and has been cleared")
			os.Exit(1)
		}
	}
}

func printClaims(token string) {
	claims, err := session.PeekClaims(token)
	if err != nil {
		// Opaque tokens are fine
		fmt.Println("Token is not a JWT")
		return
	}

	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println("\nClaims:")
	for _, k := range keys {
		fmt.Printf("  %s: %v\n", k, claims[k])
	}
}

func probe(ctx context.Context, m *app.Manager, path string) {
	res, err := m.Client.Get(ctx, path, nil)
	if res == nil {
		fmt.Printf("Request failed: %v\n", err)
		return
	}

	fmt.Printf("Status: %d\n", res.StatusCode())
	fmt.Printf("Request-Id: %s\n", res.Request.Header.Get("X-Request-Id"))

	body := res.Body()
	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		body = pretty.Bytes()
	}
	if len(body) > 500 {
		fmt.Printf("Body: %s...\n", body[:500])
	} else {
		fmt.Printf("Body: %s\n", body)
	}
}
