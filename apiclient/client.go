package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/ugate-admin/internal/errors"
	"github.com/jrsteele09/ugate-admin/token"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the production application-data API
const DefaultBaseURL = "https://ugate.pynfi.com"

// maxBodySize bounds every response read
const maxBodySize = 4 << 20

// RequestIDHeader carries a per-request correlation id
const RequestIDHeader = "X-Request-ID"

// TokenStore is the credential store view the wrapper needs
type TokenStore interface {
	AccessToken(ctx context.Context) (string, bool)
	Clear(ctx context.Context) error
}

// ExpiryOracle reports whether the stored access token must be refreshed
type ExpiryOracle interface {
	IsExpired(ctx context.Context) bool
}

// Refresher performs a (shared) refresh
type Refresher interface {
	Refresh(ctx context.Context) (token.Pair, error)
}

// Request describes one API call. Path is relative to the client base URL
// unless it is an absolute URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// NoSessionRecovery sends the request with the current token as is. It is
	// never refreshed, a 401 comes back as *APIError and the session is left
	// untouched.
	NoSessionRecovery bool
}

// Response is a successful (2xx) answer
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the body into out. Empty bodies decode to nothing.
func (r *Response) Decode(out any) error {
	if out == nil || r.Status == http.StatusNoContent || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

type hooks struct {
	mu        sync.RWMutex
	terminate func(reason error)
	expired   func()
}

// Client wraps outgoing API calls with token refresh and a single retry on 401
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      TokenStore
	oracle     ExpiryOracle
	refresher  Refresher
	hooks      *hooks
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithTerminateHook sets the hook called when a retried request is still
// unauthorized
func WithTerminateHook(fn func(reason error)) Option {
	return func(c *Client) {
		c.hooks.terminate = fn
	}
}

// WithSessionExpiredHook sets the hook called whenever a call fails with
// ErrSessionExpired (the "back to the login screen" effect)
func WithSessionExpiredHook(fn func()) Option {
	return func(c *Client) {
		c.hooks.expired = fn
	}
}

// New creates a Client
func New(baseURL string, store TokenStore, oracle ExpiryOracle, refresher Refresher, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.New("[apiclient.New] token store is required")
	}
	if oracle == nil {
		return nil, errors.New("[apiclient.New] expiry oracle is required")
	}
	if refresher == nil {
		return nil, errors.New("[apiclient.New] refresher is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
		store:      store,
		oracle:     oracle,
		refresher:  refresher,
		hooks:      &hooks{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithBaseURL returns a client for another base URL sharing this client's
// session, HTTP client and hooks
func (c *Client) WithBaseURL(baseURL string) *Client {
	cp := *c
	cp.baseURL = strings.TrimRight(baseURL, "/")
	return &cp
}

// BaseURL returns the base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetHooks replaces both hooks. nil leaves a hook unchanged.
func (c *Client) SetHooks(terminate func(reason error), expired func()) {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	if terminate != nil {
		c.hooks.terminate = terminate
	}
	if expired != nil {
		c.hooks.expired = expired
	}
}

// Do issues req with the stored access token.
//
//  1. An expired token is refreshed first; failure ends with ErrSessionExpired.
//  2. A 401 triggers one refresh and one retry; a second 401 ends the session.
//  3. Any other non-2xx answer is returned as *APIError.
//
// Steps 1 and 2 are skipped for a NoSessionRecovery request.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	recoverSession := !req.NoSessionRecovery

	if recoverSession && c.oracle.IsExpired(ctx) {
		log.Debug().Str("path", req.Path).Msg("access token expired, refreshing before request")
		if _, err := c.refresher.Refresh(ctx); err != nil {
			return nil, c.refreshFailed(ctx, err)
		}
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	if recoverSession && resp.Status == http.StatusUnauthorized {
		log.Warn().Str("method", req.Method).Str("path", req.Path).Msg("request unauthorized, refreshing and retrying once")
		if _, err := c.refresher.Refresh(ctx); err != nil {
			return nil, c.refreshFailed(ctx, err)
		}
		if resp, err = c.send(ctx, req); err != nil {
			return nil, err
		}
		if resp.Status == http.StatusUnauthorized {
			cause := apperrors.FromResponse(resp.Status, resp.Body, "")
			c.terminate(ctx, cause)
			return nil, c.expired(cause)
		}
	}

	if resp.Status < 200 || resp.Status >= 300 {
		apiErr := apperrors.FromResponse(resp.Status, resp.Body, "")
		log.Warn().Int("status", resp.Status).Str("method", req.Method).Str("path", req.Path).Str("message", apiErr.Message).Msg("api error")
		return nil, apiErr
	}
	return resp, nil
}

// Get issues a GET and decodes the answer into out
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST with a JSON body
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, in, out)
}

// Put issues a PUT with a JSON body
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, nil, in, out)
}

// Patch issues a PATCH with an optional JSON body
func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPatch, path, nil, in, out)
}

// Delete issues a DELETE
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, out)
}

// PostBestEffort issues a NoSessionRecovery POST with a JSON body. Its failures
// never end the session.
func (c *Client) PostBestEffort(ctx context.Context, path string, in any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("[Client.PostBestEffort] marshal %s: %w", path, err)
	}
	_, err = c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, NoSessionRecovery: true})
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	req := Request{Method: method, Path: path, Query: query}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("[Client.%s] marshal %s: %w", method, path, err)
		}
		req.Body = body
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	accessToken, ok := c.store.AccessToken(ctx)
	if !ok {
		if req.NoSessionRecovery {
			return nil, fmt.Errorf("[Client.Do] %s %s: %w", req.Method, req.Path, apperrors.ErrNoSession)
		}
		return nil, c.expired(apperrors.ErrNoSession)
	}

	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("[Client.Do] new request: %w", err)
	}

	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	httpReq.Header.Set("Authorization", token.BearerType+" "+accessToken)
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if httpReq.Header.Get(RequestIDHeader) == "" {
		httpReq.Header.Set(RequestIDHeader, uuid.NewString())
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Err(err).Str("method", req.Method).Str("url", target).Msg("request failed")
		return nil, fmt.Errorf("[Client.Do] %s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("[Client.Do] reading %s %s response: %w", req.Method, req.Path, err)
	}

	log.Debug().
		Str("method", req.Method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Str("request_id", httpReq.Header.Get(RequestIDHeader)).
		Dur("elapsed", time.Since(start)).
		Msg("api call")

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		target = c.baseURL + path
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("[Client.Do] invalid url %q: %w", target, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// refreshFailed maps a refresh error. The coordinator has already ended the
// session; a cancelled caller is not a session failure.
func (c *Client) refreshFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	return c.expired(err)
}

func (c *Client) terminate(ctx context.Context, reason error) {
	if err := c.store.Clear(ctx); err != nil {
		log.Err(err).Msg("clearing session store failed")
	}
	c.hooks.mu.RLock()
	hook := c.hooks.terminate
	c.hooks.mu.RUnlock()
	if hook != nil {
		hook(reason)
	}
}

func (c *Client) expired(cause error) error {
	c.hooks.mu.RLock()
	hook := c.hooks.expired
	c.hooks.mu.RUnlock()
	if hook != nil {
		hook()
	}
	if errors.Is(cause, apperrors.ErrSessionExpired) {
		return cause
	}
	return fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, cause)
}
