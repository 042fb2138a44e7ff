package console

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/raine/console-session/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientOpts{BaseURL: server.URL})
}

func TestLogin(t *testing.T) {
	var got map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/token", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"abc","token_type":"bearer","expires_in":1800,"user":{"username":"ops","is_admin":true}}`)
	})

	payload, err := c.Login(context.Background(), "ops", "hunter2")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"username": "ops", "password": "hunter2"}, got)
	assert.Equal(t, "abc", payload.AccessToken)
	assert.Equal(t, "bearer", payload.TokenType)
	require.NotNil(t, payload.ExpiresIn)
	assert.Equal(t, int64(1800), *payload.ExpiresIn)
	assert.True(t, payload.User.IsAdmin)
}

func TestLogin_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Incorrect username or password"}`)
	})

	payload, err := c.Login(context.Background(), "ops", "wrong")
	assert.Nil(t, payload)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode())
	assert.Contains(t, statusErr.Body, "Incorrect username")
}

func TestRenew(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/refresh", r.URL.Path)
		assert.Equal(t, "JWT old", r.Header.Get("Authorization"))
		io.WriteString(w, `{"access_token":"new","expires_in":3600}`)
	})

	payload, err := c.Renew(context.Background(), session.Credential{AccessToken: "old", TokenType: "JWT"})
	require.NoError(t, err)
	assert.Equal(t, "new", payload.AccessToken)
	assert.Empty(t, payload.TokenType)
}

func TestRenew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   int
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, http.StatusUnauthorized},
		{"unsupported", http.StatusNotFound, `{"detail":"Not Found"}`, http.StatusNotFound},
		{"server error", http.StatusBadGateway, `bad gateway`, http.StatusBadGateway},
		{"malformed body", http.StatusOK, `<html>`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			payload, err := c.Renew(context.Background(), session.Credential{AccessToken: "old"})
			assert.Nil(t, payload)
			require.Error(t, err)

			var statusErr *StatusError
			if tt.code == 0 {
				assert.False(t, errors.As(err, &statusErr))
				return
			}
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.code, statusErr.Code)
		})
	}
}

func TestRegister(t *testing.T) {
	var got RegisterRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/register", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	err := c.Register(context.Background(), RegisterRequest{Username: "new", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, RegisterRequest{Username: "new", Password: "pw"}, got)
}

func TestDo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/devices":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `[{"id":1,"name":"lobby"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	var devices []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	res, err := c.Get(context.Background(), "/api/devices", &devices)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode())
	require.Len(t, devices, 1)
	assert.Equal(t, "lobby", devices[0].Name)

	res, err = c.Do(context.Background(), http.MethodDelete, "/api/devices/9", nil, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusNotFound, res.StatusCode())
}

func TestRequestID(t *testing.T) {
	seen := map[string]bool{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		seen[id] = true
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
	})

	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), "/api/health", nil)
		require.NoError(t, err)
	}
	assert.Len(t, seen, 3)
}

type headerTransport struct {
	header string
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("X-Wrapped", t.header)
	return http.DefaultTransport.RoundTrip(req)
}

func TestTransportIsInjected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Wrapped"))
	}))
	defer server.Close()

	c := NewClient(ClientOpts{BaseURL: server.URL, Transport: headerTransport{"yes"}})
	_, err := c.Get(context.Background(), "/api/devices", nil)
	require.NoError(t, err)
	assert.Same(t, c.HTTPClient(), c.HTTPClient())
}
