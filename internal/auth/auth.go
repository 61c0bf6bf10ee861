// Package auth manages the signed-in user and the credential lifecycle
// around login and logout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"storefront/internal/model"
	"storefront/internal/storeapi"
)

// Backend is the account surface of the storefront API.
type Backend interface {
	Login(ctx context.Context, creds storeapi.Credentials) (*storeapi.Session, error)
	Signup(ctx context.Context, form storeapi.Signup) (string, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*model.User, error)
	UpdateProfile(ctx context.Context, update storeapi.ProfileUpdate) (*model.User, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, reset storeapi.PasswordReset) (string, error)
	ConfirmEmail(ctx context.Context, token string) (string, error)
}

// Tokens is the credential store.
type Tokens interface {
	SetCredentials(ctx context.Context, access, refresh string) error
	IsAuthenticated(ctx context.Context) bool
	Clear(ctx context.Context)
}

// Service tracks the current user.
type Service struct {
	backend Backend
	tokens  Tokens
	logger  *slog.Logger

	mu   sync.RWMutex
	user *model.User
}

func New(backend Backend, tokens Tokens, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, tokens: tokens, logger: logger}
}

// User returns the signed-in user, or nil.
func (s *Service) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Service) setUser(u *model.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

// Login discards any existing credentials, then signs in and stores the
// new ones.
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, error) {
	errs := model.FieldErrors{}
	if strings.TrimSpace(email) == "" {
		errs["email"] = "Email is required"
	}
	if password == "" {
		errs["password"] = "Password is required"
	}
	if len(errs) > 0 {
		return nil, errs
	}

	s.tokens.Clear(ctx)
	s.setUser(nil)

	session, err := s.backend.Login(ctx, storeapi.Credentials{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return nil, err
	}

	if session.AccessToken != "" {
		if err := s.tokens.SetCredentials(ctx, session.AccessToken, session.RefreshToken); err != nil {
			return nil, fmt.Errorf("storing credentials: %w", err)
		}
	} else {
		s.logger.Warn("login response carried no access token")
	}

	s.setUser(session.User)
	s.logger.Info("logged in", slog.String("email", email))
	return s.User(), nil
}

// Logout ends the server session and always clears local state, even when
// the server call fails.
func (s *Service) Logout(ctx context.Context) {
	if err := s.backend.Logout(ctx); err != nil {
		s.logger.Warn("server logout failed", slog.String("error", err.Error()))
	}
	s.tokens.Clear(ctx)
	s.setUser(nil)
}

// CheckAuth refreshes the current user from the server. Without a stored
// credential it returns ErrLoginRequired without a network call.
func (s *Service) CheckAuth(ctx context.Context) (*model.User, error) {
	if !s.tokens.IsAuthenticated(ctx) {
		s.setUser(nil)
		return nil, model.ErrLoginRequired
	}
	user, err := s.backend.Profile(ctx)
	if err != nil {
		s.setUser(nil)
		return nil, err
	}
	s.setUser(user)
	return s.User(), nil
}

// Signup registers a new account. The user must confirm their email before
// logging in, so no session is created.
func (s *Service) Signup(ctx context.Context, form storeapi.Signup) (string, error) {
	errs := model.FieldErrors{}
	if strings.TrimSpace(form.Name) == "" {
		errs["name"] = "Name is required"
	}
	if strings.TrimSpace(form.Email) == "" {
		errs["email"] = "Email is required"
	}
	mergeFieldErrors(errs, form.PasswordChange.Validate())
	if len(errs) > 0 {
		return "", errs
	}
	return s.backend.Signup(ctx, form)
}

func (s *Service) UpdateProfile(ctx context.Context, update storeapi.ProfileUpdate) (*model.User, error) {
	user, err := s.backend.UpdateProfile(ctx, update)
	if err != nil {
		return nil, err
	}
	s.setUser(user)
	return s.User(), nil
}

func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", model.FieldErrors{"email": "Email is required"}
	}
	return s.backend.ForgotPassword(ctx, email)
}

// ResetPassword checks the new password locally before sending it.
func (s *Service) ResetPassword(ctx context.Context, reset storeapi.PasswordReset) (string, error) {
	errs := model.FieldErrors{}
	if strings.TrimSpace(reset.Code) == "" {
		errs["code"] = "Reset code is required"
	}
	pc := model.PasswordChange{Password: reset.NewPassword, ConfirmPassword: reset.ConfirmNewPassword}
	mergeFieldErrors(errs, pc.Validate())
	if len(errs) > 0 {
		return "", errs
	}
	return s.backend.ResetPassword(ctx, reset)
}

func (s *Service) ConfirmEmail(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", model.NewValidationError("token", "confirmation token is required")
	}
	return s.backend.ConfirmEmail(ctx, token)
}

func mergeFieldErrors(dst model.FieldErrors, err error) {
	var fe model.FieldErrors
	if errors.As(err, &fe) {
		for k, v := range fe {
			dst[k] = v
		}
	}
}
