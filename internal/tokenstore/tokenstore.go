// Package tokenstore keeps credentials and checkout artifacts in an ordered
// set of storage providers. Reads probe providers in order and return the
// first non-empty value; writes go to every writable provider; deletes go
// everywhere.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Well-known keys shared with the backend and the checkout flow.
const (
	KeyAccessToken     = "accessToken"
	KeyRefreshToken    = "refreshToken"
	KeyClientSecret    = "clientSecret"
	KeyPaymentIntentID = "paymentIntentId"
)

// ErrReadOnly is returned by providers the client must never write to.
var ErrReadOnly = errors.New("provider is read-only")

// Provider is one physical storage location.
// Get returns "" with a nil error when the key is absent.
type Provider interface {
	Name() string
	Writable() bool
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store is the single source of truth for "is the user signed in",
// independent of which provider actually holds the value.
type Store struct {
	providers []Provider
	logger    *slog.Logger

	mu      sync.Mutex
	onClear []func()
}

// New creates a Store over providers, probed in the order given.
func New(logger *slog.Logger, providers ...Provider) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{providers: providers, logger: logger}
}

// Providers returns provider names in probe order.
func (s *Store) Providers() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// Lookup returns the first non-empty value for key. Provider failures are
// logged and the next provider is tried.
func (s *Store) Lookup(ctx context.Context, key string) string {
	for _, p := range s.providers {
		val, err := p.Get(ctx, key)
		if err != nil {
			s.logger.Warn("token store read failed",
				slog.String("provider", p.Name()),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		if val != "" {
			return val
		}
	}
	return ""
}

// Put writes key to every writable provider. It fails only when no
// writable provider accepted the value.
func (s *Store) Put(ctx context.Context, key, value string) error {
	var (
		written int
		errs    []error
	)
	for _, p := range s.providers {
		if !p.Writable() {
			continue
		}
		if err := p.Set(ctx, key, value); err != nil {
			s.logger.Warn("token store write failed",
				slog.String("provider", p.Name()),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		written++
	}
	if written == 0 && len(errs) > 0 {
		return fmt.Errorf("storing %s: %w", key, errors.Join(errs...))
	}
	return nil
}

// Purge removes keys from every provider, read-only ones included.
func (s *Store) Purge(ctx context.Context, keys ...string) {
	for _, p := range s.providers {
		for _, key := range keys {
			if err := p.Delete(ctx, key); err != nil {
				s.logger.Warn("token store delete failed",
					slog.String("provider", p.Name()),
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// AccessToken returns the current bearer credential, or "".
func (s *Store) AccessToken(ctx context.Context) string {
	return s.Lookup(ctx, KeyAccessToken)
}

// RefreshToken returns the current refresh credential, or "".
func (s *Store) RefreshToken(ctx context.Context) string {
	return s.Lookup(ctx, KeyRefreshToken)
}

// SetCredentials stores a credential pair. An empty refresh token keeps the
// one already stored, since refresh responses may rotate only the access
// token.
func (s *Store) SetCredentials(ctx context.Context, access, refresh string) error {
	if access == "" {
		return errors.New("access token is empty")
	}
	if err := s.Put(ctx, KeyAccessToken, access); err != nil {
		return err
	}
	if refresh == "" {
		return nil
	}
	return s.Put(ctx, KeyRefreshToken, refresh)
}

// SetRefreshToken replaces only the refresh credential.
func (s *Store) SetRefreshToken(ctx context.Context, refresh string) error {
	if refresh == "" {
		return errors.New("refresh token is empty")
	}
	return s.Put(ctx, KeyRefreshToken, refresh)
}

// IsAuthenticated reports whether an access token is present. Expiry is not
// checked; the request pipeline discovers it from a 401.
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	return s.AccessToken(ctx) != ""
}

// OnClear registers fn to run when Clear removes a stored credential.
func (s *Store) OnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClear = append(s.onClear, fn)
}

// Clear removes both tokens from every provider. The OnClear callbacks run
// only when some provider still held one, so repeated calls notify once.
func (s *Store) Clear(ctx context.Context) {
	held := s.Lookup(ctx, KeyAccessToken) != "" || s.Lookup(ctx, KeyRefreshToken) != ""
	s.Purge(ctx, KeyAccessToken, KeyRefreshToken)
	if !held {
		return
	}

	s.mu.Lock()
	callbacks := make([]func(), len(s.onClear))
	copy(callbacks, s.onClear)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}
