package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dunglas/httpsfv"

	"storefront/internal/model"
	"storefront/internal/tokenstore"
)

// fakeNavigator records navigations.
type fakeNavigator struct {
	mu      sync.Mutex
	current string
	visits  []string
}

func (n *fakeNavigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *fakeNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = path
	n.visits = append(n.visits, path)
}

func (n *fakeNavigator) Visits() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visits...)
}

var _ Navigator = (*fakeNavigator)(nil)
var _ Tokens = (*tokenstore.Store)(nil)

func newTestClient(t *testing.T, srv *httptest.Server, nav Navigator) (*Client, *tokenstore.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	store := tokenstore.New(logger, tokenstore.NewMemoryProvider(), tokenstore.NewMemoryProvider())
	c, err := New(Options{
		BaseURL:   srv.URL,
		Timeout:   2 * time.Second,
		Transport: http.DefaultTransport,
		Tokens:    store,
		Navigator: nav,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c, store
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestDo_AttachesBearer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, 200, map[string]any{"success": true})
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv, nil)
	store.SetCredentials(context.Background(), "at-1", "rt-1")

	if _, err := c.Do(context.Background(), &Request{Method: "GET", Path: "/cart/getCartProducts"}); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if gotAuth != "Bearer at-1" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer at-1")
	}
}

func TestDo_NoBearerOnAuthEndpointsOrExplicitHeader(t *testing.T) {
	seen := map[string]string{}
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Path] = r.Header.Get("Authorization")
		mu.Unlock()
		writeJSON(w, 200, map[string]any{"success": true})
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv, nil)
	store.SetCredentials(context.Background(), "at-1", "rt-1")
	ctx := context.Background()

	c.Do(ctx, &Request{Method: "POST", Path: PathLogin, Body: map[string]string{}})
	c.Do(ctx, &Request{Method: "POST", Path: PathSignup, Body: map[string]string{}})
	c.Do(ctx, &Request{
		Method: "GET",
		Path:   "/auth/confirm-email/abc",
		Header: http.Header{"Authorization": []string{"Bearer caller"}},
	})

	tests := []struct {
		path string
		want string
	}{
		{PathLogin, ""},
		{PathSignup, ""},
		{"/auth/confirm-email/abc", "Bearer caller"},
	}
	for _, tt := range tests {
		if got := seen[tt.path]; got != tt.want {
			t.Errorf("%s Authorization = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestDo_CapturesRotatedTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/profile":
			w.Header().Set(HeaderAccessToken, "at-rotated")
			w.Header().Set(HeaderRefreshToken, "rt-rotated")
		case PathLogin:
			w.Header().Set(HeaderAccessToken, "at-login")
		}
		writeJSON(w, 200, map[string]any{"success": true})
	}))
	defer srv.Close()

	ctx := context.Background()
	c, store := newTestClient(t, srv, nil)
	store.SetCredentials(ctx, "at-1", "rt-1")

	if _, err := c.Do(ctx, &Request{Path: "/auth/profile"}); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if got := store.AccessToken(ctx); got != "at-rotated" {
		t.Errorf("AccessToken() = %q, want at-rotated", got)
	}
	if got := store.RefreshToken(ctx); got != "rt-rotated" {
		t.Errorf("RefreshToken() = %q, want rt-rotated", got)
	}

	// Login responses are left to the login flow.
	if _, err := c.Do(ctx, &Request{Method: "POST", Path: PathLogin}); err != nil {
		t.Fatalf("Do(login) error: %v", err)
	}
	if got := store.AccessToken(ctx); got != "at-rotated" {
		t.Errorf("AccessToken() after login = %q, want unchanged at-rotated", got)
	}
}

func TestDo_401WithoutRefreshTokenPropagates(t *testing.T) {
	var refreshCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathRefreshToken {
			refreshCalls.Add(1)
		}
		writeJSON(w, 401, map[string]any{"success": false, "message": "jwt expired"})
	}))
	defer srv.Close()

	nav := &fakeNavigator{current: "/cart"}
	c, store := newTestClient(t, srv, nav)
	store.Put(context.Background(), tokenstore.KeyAccessToken, "at-expired")

	_, err := c.Do(context.Background(), &Request{Path: "/cart/getCartProducts"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Fatalf("Do() error = %v, want 401 APIError", err)
	}
	if apiErr.Message != "jwt expired" {
		t.Errorf("Message = %q, want original message", apiErr.Message)
	}
	if refreshCalls.Load() != 0 {
		t.Errorf("refresh calls = %d, want 0", refreshCalls.Load())
	}
	if len(nav.Visits()) != 0 {
		t.Errorf("navigations = %v, want none", nav.Visits())
	}
}

func TestDo_RefreshAndRetryOnce(t *testing.T) {
	var (
		refreshAuth  string
		protectedHit atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathRefreshToken:
			refreshAuth = r.Header.Get("Authorization")
			w.Header().Set(HeaderAccessToken, "at-new")
			writeJSON(w, 200, map[string]any{"success": true})
		default:
			protectedHit.Add(1)
			if r.Header.Get("Authorization") != "Bearer at-new" {
				writeJSON(w, 401, map[string]any{"message": "expired"})
				return
			}
			writeJSON(w, 200, map[string]any{"success": true, "data": []any{}})
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c, store := newTestClient(t, srv, nil)
	store.SetCredentials(ctx, "at-old", "rt-1")

	if _, err := c.Do(ctx, &Request{Path: "/wishlist/"}); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if refreshAuth != "Bearer rt-1" {
		t.Errorf("refresh Authorization = %q, want Bearer rt-1", refreshAuth)
	}
	if got := protectedHit.Load(); got != 2 {
		t.Errorf("protected calls = %d, want 2 (original + one retry)", got)
	}
	if got := store.AccessToken(ctx); got != "at-new" {
		t.Errorf("AccessToken() = %q, want at-new", got)
	}
	if got := store.RefreshToken(ctx); got != "rt-1" {
		t.Errorf("RefreshToken() = %q, want rt-1 kept", got)
	}
}

func TestDo_RetryStillUnauthorizedStops(t *testing.T) {
	var refreshCalls, protectedCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathRefreshToken {
			refreshCalls.Add(1)
			w.Header().Set(HeaderAccessToken, "at-new")
			writeJSON(w, 200, map[string]any{"success": true})
			return
		}
		protectedCalls.Add(1)
		writeJSON(w, 401, map[string]any{"message": "still no"})
	}))
	defer srv.Close()

	ctx := context.Background()
	c, store := newTestClient(t, srv, nil)
	store.SetCredentials(ctx, "at-old", "rt-1")

	_, err := c.Do(ctx, &Request{Path: "/auth/profile"})
	if model.StatusOf(err) != 401 {
		t.Fatalf("Do() error = %v, want 401", err)
	}
	if refreshCalls.Load() != 1 || protectedCalls.Load() != 2 {
		t.Errorf("refresh=%d protected=%d, want 1 and 2", refreshCalls.Load(), protectedCalls.Load())
	}
}

func TestDo_RefreshFailureSignsOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathRefreshToken {
			writeJSON(w, 403, map[string]any{"success": false, "message": "refresh token revoked"})
			return
		}
		writeJSON(w, 401, map[string]any{"message": "jwt expired"})
	}))
	defer srv.Close()

	ctx := context.Background()
	nav := &fakeNavigator{current: "/checkout"}
	c, store := newTestClient(t, srv, nav)
	store.SetCredentials(ctx, "at-old", "rt-revoked")

	cleared := 0
	store.OnClear(func() { cleared++ })

	_, err := c.Do(ctx, &Request{Path: "/cart/getCartProducts"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 || apiErr.Message != "jwt expired" {
		t.Fatalf("Do() error = %v, want the original 401", err)
	}
	if store.IsAuthenticated(ctx) || store.RefreshToken(ctx) != "" {
		t.Error("credentials should be cleared after refresh failure")
	}
	if cleared != 1 {
		t.Errorf("OnClear calls = %d, want 1", cleared)
	}
	if visits := nav.Visits(); len(visits) != 1 || visits[0] != "/login" {
		t.Errorf("navigations = %v, want [/login]", visits)
	}
}

func TestDo_RefreshFailureOnLoginPageDoesNotRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathRefreshToken {
			writeJSON(w, 200, map[string]any{"success": false})
			return
		}
		writeJSON(w, 401, map[string]any{"message": "expired"})
	}))
	defer srv.Close()

	ctx := context.Background()
	nav := &fakeNavigator{current: "/login"}
	c, store := newTestClient(t, srv, nav)
	store.SetCredentials(ctx, "at-old", "rt-1")

	c.Do(ctx, &Request{Path: "/auth/profile"})

	if len(nav.Visits()) != 0 {
		t.Errorf("navigations = %v, want none while already on /login", nav.Visits())
	}
	if store.IsAuthenticated(ctx) {
		t.Error("credentials should be cleared")
	}
}

func TestDo_NoRetryForAuthEndpoints(t *testing.T) {
	var refreshCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathRefreshToken {
			refreshCalls.Add(1)
		}
		writeJSON(w, 401, map[string]any{"message": "Invalid email or password"})
	}))
	defer srv.Close()

	ctx := context.Background()
	c, store := newTestClient(t, srv, nil)
	store.SetCredentials(ctx, "at", "rt")

	_, err := c.Do(ctx, &Request{Method: "POST", Path: PathLogin, Body: map[string]string{"email": "a@b.c"}})
	if model.StatusOf(err) != 401 {
		t.Fatalf("Do() error = %v, want 401", err)
	}
	if refreshCalls.Load() != 0 {
		t.Errorf("refresh calls = %d, want 0", refreshCalls.Load())
	}
}

// TestDo_ConcurrentRefreshIsSingleFlight releases N requests that all get a
// 401 at once and checks exactly one refresh is issued and every request is
// retried with its token.
func TestDo_ConcurrentRefreshIsSingleFlight(t *testing.T) {
	const n = 8

	var (
		refreshCalls atomic.Int32
		arrived      sync.WaitGroup
		retriedWith  sync.Map
	)
	arrived.Add(n)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathRefreshToken {
			refreshCalls.Add(1)
			time.Sleep(50 * time.Millisecond)
			w.Header().Set(HeaderAccessToken, "at-fresh")
			writeJSON(w, 200, map[string]any{"success": true})
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "Bearer at-stale" {
			arrived.Done()
			arrived.Wait() // every request holds a stale token at the same time
			writeJSON(w, 401, map[string]any{"message": "expired"})
			return
		}
		retriedWith.Store(r.URL.Query().Get("i"), auth)
		writeJSON(w, 200, map[string]any{"success": true})
	}))
	defer srv.Close()

	ctx := context.Background()
	c, store := newTestClient(t, srv, nil)
	store.SetCredentials(ctx, "at-stale", "rt-1")

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := map[string][]string{"i": {string(rune('a' + i))}}
			if _, err := c.Do(ctx, &Request{Path: "/cart/getCartProducts", Query: q}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Do() error: %v", err)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	count := 0
	retriedWith.Range(func(_, v any) bool {
		count++
		if v != "Bearer at-fresh" {
			t.Errorf("retry Authorization = %v, want Bearer at-fresh", v)
		}
		return true
	})
	if count != n {
		t.Errorf("retried requests = %d, want %d", count, n)
	}
}

func TestDo_IdempotencyKeyStableAcrossRetry(t *testing.T) {
	var keys []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathRefreshToken {
			w.Header().Set(HeaderAccessToken, "at-new")
			writeJSON(w, 200, map[string]any{"success": true})
			return
		}
		mu.Lock()
		keys = append(keys, r.Header.Get(HeaderIdempotency))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer at-new" {
			writeJSON(w, 401, nil)
			return
		}
		writeJSON(w, 200, map[string]any{"success": true})
	}))
	defer srv.Close()

	ctx := context.Background()
	c, store := newTestClient(t, srv, nil)
	store.SetCredentials(ctx, "at-old", "rt")

	if _, err := c.Do(ctx, &Request{Method: "POST", Path: "/payments/createPaymentIntent", Body: map[string]any{}, Idempotent: true}); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("calls = %d, want 2", len(keys))
	}
	if keys[0] == "" || keys[0] != keys[1] {
		t.Errorf("idempotency keys = %q, want one non-empty key reused", keys)
	}

	item, err := httpsfv.UnmarshalItem([]string{keys[0]})
	if err != nil {
		t.Fatalf("key is not a structured-field item: %v", err)
	}
	if s, ok := item.Value.(string); !ok || len(s) != 36 {
		t.Errorf("item value = %v, want a UUID string", item.Value)
	}
}

func TestCallData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			writeJSON(w, 200, map[string]any{"success": true, "data": map[string]string{"clientSecret": "pi_1_secret_2"}})
		case "/soft-fail":
			writeJSON(w, 200, map[string]any{"success": false, "message": "Stock changed"})
		case "/conflict":
			writeJSON(w, 409, map[string]any{"success": false, "message": "already used"})
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, nil)
	ctx := context.Background()

	var out model.PaymentIntent
	if err := c.Post(ctx, "/ok", map[string]any{}, &out); err != nil {
		t.Fatalf("Post(/ok) error: %v", err)
	}
	if out.ClientSecret != "pi_1_secret_2" {
		t.Errorf("ClientSecret = %q", out.ClientSecret)
	}

	err := c.Get(ctx, "/soft-fail", nil)
	if err == nil || model.Normalize(err).Message != "Stock changed" {
		t.Errorf("Get(/soft-fail) error = %v, want message Stock changed", err)
	}

	err = c.Post(ctx, "/conflict", nil, nil)
	if !errors.Is(err, model.ErrConflict) || !model.Normalize(err).Duplicate {
		t.Errorf("Post(/conflict) error = %v, want duplicate conflict", err)
	}
}

func TestDo_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	store := tokenstore.New(nil, tokenstore.NewMemoryProvider())
	c, err := New(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, Transport: http.DefaultTransport, Tokens: store})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = c.Do(context.Background(), &Request{Path: "/slow"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want DeadlineExceeded", err)
	}
}

func TestIsAuthEndpoint(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/auth/login", true},
		{"/auth/signup", true},
		{"/auth/refresh-token", true},
		{"/auth/refresh-token?x=1", true},
		{"/auth/logout", false},
		{"/auth/profile", false},
		{"/cart/addToCart", false},
	}
	for _, tt := range tests {
		if got := IsAuthEndpoint(tt.path); got != tt.want {
			t.Errorf("IsAuthEndpoint(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{Tokens: tokenstore.New(nil)}); err == nil {
		t.Error("New() without base URL should fail")
	}
	if _, err := New(Options{BaseURL: "https://api.example.com"}); err == nil {
		t.Error("New() without tokens should fail")
	}
}
