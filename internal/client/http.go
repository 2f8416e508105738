package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "wsmd-console/1.0"
)

// Navigator moves the operator to the login screen. The request client calls
// ToLogin once for every request answered with 401.
type Navigator interface {
	ToLogin(reason error)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(reason error)

func (f NavigatorFunc) ToLogin(reason error) { f(reason) }

// RequestOptions configures a single gated request.
type RequestOptions struct {
	Method string
	Body   io.Reader
	Header http.Header
}

// Requester is the gated request chokepoint.
type Requester interface {
	Request(ctx context.Context, target string, opts RequestOptions) (*http.Response, error)
}

// HTTPClient makes REST calls to the WSMD backend. The session cookie lives
// in its jar and is attached to every request automatically.
type HTTPClient struct {
	base      *url.URL
	client    *http.Client
	nav       Navigator
	log       *slog.Logger
	userAgent string
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithNavigator sets the session-expiry navigation target.
func WithNavigator(n Navigator) Option {
	return func(c *HTTPClient) { c.nav = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *HTTPClient) { c.log = l }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.client.Timeout = d }
}

// WithTransport overrides the round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *HTTPClient) { c.client.Transport = rt }
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8000").
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	c := &HTTPClient{
		base:      base,
		client:    &http.Client{Jar: jar, Timeout: defaultTimeout},
		nav:       NavigatorFunc(func(error) {}),
		log:       slog.New(slog.DiscardHandler),
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL resolves a path against the base URL.
func (c *HTTPClient) URL(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.base.String() + path
	}
	return c.base.ResolveReference(ref).String()
}

// Jar returns the cookie jar holding the session credential.
func (c *HTTPClient) Jar() http.CookieJar {
	return c.client.Jar
}

// StreamClient returns an http.Client sharing the session jar and transport
// but without an overall timeout, for long-lived push connections.
func (c *HTTPClient) StreamClient() *http.Client {
	return &http.Client{Jar: c.client.Jar, Transport: c.client.Transport}
}

// Request issues a request with the session credential attached. A 401
// response triggers navigation to the login screen and returns
// ErrSessionExpired; the response body is discarded. Any other response is
// returned as is for the caller to interpret and close.
func (c *HTTPClient) Request(ctx context.Context, target string, opts RequestOptions) (*http.Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(target), opts.Body)
	if err != nil {
		return nil, err
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("request failed",
			slog.String("method", method),
			slog.String("target", target),
			slog.String("request_id", reqID),
			slog.Any("error", err))
		return nil, &NetworkError{Method: method, Target: target, Err: err}
	}
	c.log.Debug("request",
		slog.String("method", method),
		slog.String("target", target),
		slog.String("request_id", reqID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)))

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		c.log.Info("session expired", slog.String("target", target))
		c.nav.ToLogin(ErrSessionExpired)
		return nil, ErrSessionExpired
	}
	return resp, nil
}

// LoadDevices fetches /admin/devices.
func (c *HTTPClient) LoadDevices(ctx context.Context) ([]Device, error) {
	var out []Device
	if err := c.get(ctx, PathDevices, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadUsers fetches /admin/users. Key users only.
func (c *HTTPClient) LoadUsers(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.get(ctx, PathUsers, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Logout sends POST /logout. The session cookie is cleared by the response.
func (c *HTTPClient) Logout(ctx context.Context) error {
	resp, err := c.Request(ctx, PathLogout, RequestOptions{Method: http.MethodPost})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return &SubmissionError{Status: resp.StatusCode}
	}
	return nil
}

// Login posts form-encoded credentials to /token. It does not go through
// Request: a 401 here means wrong credentials, not expiry.
func (c *HTTPClient) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	form := url.Values{"username": {username}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(PathLogin), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: http.MethodPost, Target: PathLogin, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body replyBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, &NetworkError{Method: http.MethodPost, Target: PathLogin, Err: err}
		}
		detail := body.Detail
		if detail == "" {
			detail = "Login failed. Please try again."
		}
		return nil, &SubmissionError{Status: resp.StatusCode, Detail: detail}
	}

	var out LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &NetworkError{Method: http.MethodPost, Target: PathLogin, Err: err}
	}
	c.log.Info("logged in", slog.String("username", username), slog.Bool("key_user", out.IsKeyUser))
	return &out, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	resp, err := c.Request(ctx, path, RequestOptions{
		Header: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var body replyBody
		json.NewDecoder(resp.Body).Decode(&body)
		return &SubmissionError{Status: resp.StatusCode, Detail: body.Detail}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Method: http.MethodGet, Target: path, Err: err}
	}
	return nil
}
