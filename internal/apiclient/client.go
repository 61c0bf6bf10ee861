// Package apiclient is the authenticated request pipeline in front of the
// storefront REST API. Every call carries the current bearer credential;
// a 401 triggers at most one coalesced token refresh and a single retry.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"storefront/internal/model"
	"storefront/internal/transport"
)

// =============================================================================
// REQUEST PIPELINE
// =============================================================================
//
// Outbound:  attach "Bearer <access>" unless the call targets an auth
//            endpoint or the caller already set Authorization.
// Success:   persist x-access-token / x-refresh-token headers, except on
//            login and refresh responses which hand tokens back explicitly.
// 401:       refresh once (shared by every concurrent 401), retry once.
//            No refresh token: the 401 is returned unchanged.
//            Refresh failure: clear credentials, navigate to login, return
//            the original 401.
//
// =============================================================================

// Auth endpoint paths, relative to the API base URL.
const (
	PathLogin        = "/auth/login"
	PathSignup       = "/auth/signup"
	PathRefreshToken = "/auth/refresh-token"
)

// Response headers the backend uses for cross-origin token rotation.
const (
	HeaderAccessToken  = "X-Access-Token"
	HeaderRefreshToken = "X-Refresh-Token"
	HeaderIdempotency  = "Idempotency-Key"
)

const (
	// DefaultTimeout bounds every request, retries included separately.
	DefaultTimeout = 10 * time.Second

	// maxRetries is the number of times a request is resubmitted after a
	// successful refresh.
	maxRetries = 1

	// refreshKey coalesces all refreshes onto one flight.
	refreshKey = "refresh"

	userAgent = "storefront-go/1.0"
)

// Tokens is the credential surface the pipeline needs.
// *tokenstore.Store implements it.
type Tokens interface {
	AccessToken(ctx context.Context) string
	RefreshToken(ctx context.Context) string
	SetCredentials(ctx context.Context, access, refresh string) error
	SetRefreshToken(ctx context.Context, refresh string) error
	Clear(ctx context.Context)
}

// Navigator moves the user between client-side routes. The pipeline uses it
// only to send the user to the login entry point after a failed refresh.
type Navigator interface {
	Current() string
	Navigate(path string)
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper // defaults to an instrumented transport
	Jar       http.CookieJar    // receives backend-set cookies
	Tokens    Tokens
	Navigator Navigator
	LoginPath string // defaults to "/login"
	Logger    *slog.Logger
}

// Client is the authenticated request pipeline.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     Tokens
	navigator  Navigator
	loginPath  string
	logger     *slog.Logger

	refreshes singleflight.Group
}

// New creates a Client. BaseURL and Tokens are required.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if opts.Tokens == nil {
		return nil, errors.New("token store is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Transport == nil {
		opts.Transport = transport.New(transport.Options{Timeout: opts.Timeout, Operation: "storefront"})
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
			Jar:       opts.Jar,
		},
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		tokens:    opts.Tokens,
		navigator: opts.Navigator,
		loginPath: opts.LoginPath,
		logger:    opts.Logger,
	}, nil
}

// Request describes one API call. Body is JSON-encoded when non-nil.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header

	// Idempotent attaches an Idempotency-Key that stays fixed across the
	// retry, so the backend can recognise a resubmission.
	Idempotent bool
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// attempt carries per-call retry state explicitly rather than as a flag on
// the request.
type attempt struct {
	retries        int
	token          string // overrides the stored access token when set
	idempotencyKey string
}

// Do sends req through the pipeline.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	a := attempt{}
	if req.Idempotent {
		key, err := newIdempotencyKey()
		if err != nil {
			return nil, err
		}
		a.idempotencyKey = key
	}
	return c.do(ctx, req, a)
}

func (c *Client) do(ctx context.Context, req *Request, a attempt) (*Response, error) {
	httpReq, sentToken, err := c.newRequest(ctx, req, a)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(httpReq)
	if err == nil {
		if !handlesOwnTokens(req.Path) {
			c.captureTokens(ctx, resp.Header)
		}
		return resp, nil
	}

	if !c.shouldRefresh(req, a, err) {
		return nil, err
	}

	refreshToken := c.tokens.RefreshToken(ctx)
	if refreshToken == "" {
		return nil, err
	}

	token, refreshErr := c.refreshShared(ctx, refreshToken, sentToken)
	if refreshErr != nil {
		return nil, err
	}

	c.logger.Debug("retrying after token refresh",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
	)
	return c.do(ctx, req, attempt{
		retries:        a.retries + 1,
		token:          token,
		idempotencyKey: a.idempotencyKey,
	})
}

// shouldRefresh reports whether err is a 401 this pipeline may recover.
func (c *Client) shouldRefresh(req *Request, a attempt, err error) bool {
	if model.StatusOf(err) != http.StatusUnauthorized {
		return false
	}
	if a.retries >= maxRetries || IsAuthEndpoint(req.Path) {
		return false
	}
	// A caller-supplied credential is not ours to replace.
	return req.Header.Get("Authorization") == ""
}

// refreshShared joins the in-flight refresh or starts one. A caller whose
// 401 was for a token that has since been replaced skips the network and
// retries with the stored token.
func (c *Client) refreshShared(ctx context.Context, refreshToken, staleToken string) (string, error) {
	v, err, shared := c.refreshes.Do(refreshKey, func() (any, error) {
		if current := c.tokens.AccessToken(ctx); current != "" && current != staleToken {
			return current, nil
		}

		// The refresh outlives any single caller's cancellation since other
		// callers are waiting on it.
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.httpClient.Timeout)
		defer cancel()

		token, err := c.refresh(refreshCtx, refreshToken)
		if err != nil {
			c.logger.Warn("token refresh failed, signing out", slog.String("error", err.Error()))
			c.tokens.Clear(ctx)
			c.redirectToLogin()
			return "", err
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.logger.Debug("joined in-flight token refresh")
	}
	return v.(string), nil
}

// refreshEnvelope covers the shapes the refresh endpoint has returned.
type refreshEnvelope struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Data         struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"data"`
}

// refresh exchanges the refresh token for a new access token and persists
// the result. It bypasses the pipeline so it can never recurse.
func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+PathRefreshToken, strings.NewReader("{}"))
	if err != nil {
		return "", fmt.Errorf("creating refresh request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Authorization", "Bearer "+refreshToken)

	resp, err := c.send(httpReq)
	if err != nil {
		return "", err
	}

	var env refreshEnvelope
	if err := resp.Decode(&env); err != nil {
		return "", err
	}
	if !env.Success {
		return "", model.NewUnauthorizedError(withDefault(env.Message, "token refresh rejected"))
	}

	access := firstNonEmpty(resp.Header.Get(HeaderAccessToken), env.AccessToken, env.Data.AccessToken)
	if access == "" {
		return "", model.NewUnauthorizedError("refresh response carried no access token")
	}
	rotated := firstNonEmpty(resp.Header.Get(HeaderRefreshToken), env.RefreshToken, env.Data.RefreshToken)

	if err := c.tokens.SetCredentials(ctx, access, rotated); err != nil {
		// The retry still carries the new token explicitly.
		c.logger.Warn("persisting refreshed token failed", slog.String("error", err.Error()))
	}
	return access, nil
}

func (c *Client) redirectToLogin() {
	if c.navigator == nil {
		return
	}
	if c.navigator.Current() == c.loginPath {
		return
	}
	c.navigator.Navigate(c.loginPath)
}

// captureTokens persists rotated credentials the backend put in headers.
func (c *Client) captureTokens(ctx context.Context, h http.Header) {
	access := h.Get(HeaderAccessToken)
	refresh := h.Get(HeaderRefreshToken)

	var err error
	switch {
	case access != "":
		err = c.tokens.SetCredentials(ctx, access, refresh)
	case refresh != "":
		err = c.tokens.SetRefreshToken(ctx, refresh)
	default:
		return
	}
	if err != nil {
		c.logger.Warn("persisting rotated tokens failed", slog.String("error", err.Error()))
	}
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// newRequest builds the outbound request and returns the bearer token it
// attached, if any.
func (c *Client) newRequest(ctx context.Context, req *Request, a attempt) (*http.Request, string, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		jsonBody, err := json.Marshal(req.Body)
		if err != nil {
			return nil, "", fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if a.idempotencyKey != "" {
		httpReq.Header.Set(HeaderIdempotency, a.idempotencyKey)
	}

	if IsAuthEndpoint(req.Path) || httpReq.Header.Get("Authorization") != "" {
		return httpReq, "", nil
	}

	token := a.token
	if token == "" {
		token = c.tokens.AccessToken(ctx)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, token, nil
}

// send executes req and maps non-2xx statuses to *model.APIError.
func (c *Client) send(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%s %s timed out: %w", req.Method, req.URL.Path, context.DeadlineExceeded)
		}
		return nil, model.NewUpstreamError("storefront API", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, parseError(resp.StatusCode, body)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// parseError extracts the backend's message from an error body.
func parseError(status int, body []byte) error {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(body, &env); err == nil {
		message = firstNonEmpty(env.Message, env.Error)
	}
	return model.NewStatusError(status, message)
}

// IsAuthEndpoint reports whether path is login, signup, or refresh. These
// never carry the stored bearer and are never retried.
func IsAuthEndpoint(path string) bool {
	switch stripQuery(path) {
	case PathLogin, PathSignup, PathRefreshToken:
		return true
	}
	return false
}

// handlesOwnTokens reports whether the endpoint's token headers are
// consumed by its caller rather than the pipeline.
func handlesOwnTokens(path string) bool {
	p := stripQuery(path)
	return p == PathLogin || p == PathRefreshToken
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

// newIdempotencyKey renders a fresh key as a structured-field string.
func newIdempotencyKey() (string, error) {
	key, err := httpsfv.Marshal(httpsfv.NewItem(uuid.NewString()))
	if err != nil {
		return "", fmt.Errorf("encoding idempotency key: %w", err)
	}
	return key, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}
