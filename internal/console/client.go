// Package console is the client for the fleet console REST API. Every call the
// console makes goes through one resty client whose transport is supplied by
// the caller, so authorization is an injected concern.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/raine/console-session/internal/session"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
	userAgent      = "consolectl/1.0"
)

// APIPaths are the authentication endpoints of the API.
type APIPaths struct {
	Token    string
	Register string
	Refresh  string
}

// DefaultAPIPaths returns the endpoints served by the console backend.
func DefaultAPIPaths() APIPaths {
	return APIPaths{
		Token:    "/api/auth/token",
		Register: "/api/auth/register",
		Refresh:  "/api/auth/refresh",
	}
}

type ClientOpts struct {
	BaseURL string
	// Transport is the RoundTripper all calls go through, normally an
	// auth.Authorizer. Nil uses http.DefaultTransport.
	Transport http.RoundTripper
	Timeout   time.Duration
	Paths     APIPaths
}

type Client struct {
	httpClient *resty.Client
	baseURL    string
	paths      APIPaths
}

func NewClient(opts ClientOpts) *Client {
	c := Client{baseURL: DefaultBaseURL, paths: DefaultAPIPaths()}
	if opts.BaseURL != "" {
		c.baseURL = opts.BaseURL
	}
	if opts.Paths != (APIPaths{}) {
		c.paths = opts.Paths
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	c.httpClient = resty.NewWithClient(&http.Client{Transport: transport, Timeout: timeout}).
		SetDebug(false).
		SetBaseURL(c.baseURL).
		SetHeaders(
			map[string]string{
				"Accept":     "application/json",
				"User-Agent": userAgent,
			},
		).
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			r.SetHeader("X-Request-Id", uuid.New().String())
			return nil
		})

	return &c
}

// HTTPClient returns the underlying client, for callers that need the raw
// net/http contract (for example file downloads).
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient.GetClient()
}

func (c *Client) req(ctx context.Context) *resty.Request {
	return c.httpClient.
		NewRequest().
		SetContext(ctx)
}

// Login exchanges username and password for a credential at the token
// endpoint. Any non-2xx response is a login failure.
func (c *Client) Login(ctx context.Context, username, password string) (*session.LoginPayload, error) {
	res, err := handleError(c.req(ctx).
		SetBody(map[string]string{
			"username": username,
			"password": password,
		}).
		Post(c.paths.Token))
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return decodePayload(res)
}

// Renew asks the API for a fresh credential, authenticated with cred.
// A 401 means the credential cannot be renewed.
func (c *Client) Renew(ctx context.Context, cred session.Credential) (*session.LoginPayload, error) {
	res, err := handleError(c.req(ctx).
		SetHeader("Authorization", cred.AuthorizationHeader()).
		Post(c.paths.Refresh))
	if err != nil {
		return nil, fmt.Errorf("renewal failed: %w", err)
	}
	return decodePayload(res)
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, r RegisterRequest) error {
	_, err := handleError(c.req(ctx).SetBody(r).Post(c.paths.Register))
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	return nil
}

// Do performs an API call. body may be nil; when result is non-nil a
// successful JSON response is decoded into it. The response is returned for
// non-2xx statuses as well, together with a *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, body, result any) (*resty.Response, error) {
	r := c.req(ctx)
	if body != nil {
		r.SetBody(body)
	}

	res, err := handleError(r.Execute(method, path))
	if err != nil {
		return res, err
	}

	if result != nil && len(res.Body()) > 0 {
		if err := json.Unmarshal(res.Body(), result); err != nil {
			return res, fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
		}
	}
	return res, nil
}

// Get is Do for GET requests.
func (c *Client) Get(ctx context.Context, path string, result any) (*resty.Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, result)
}

func decodePayload(res *resty.Response) (*session.LoginPayload, error) {
	var p session.LoginPayload
	if err := json.Unmarshal(res.Body(), &p); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	return &p, nil
}
