package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"storefront/internal/adapter"
	"storefront/internal/model"
	"storefront/internal/storeapi"
	"storefront/internal/tokenstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore() *tokenstore.Store {
	return tokenstore.New(quietLogger(), tokenstore.NewMemoryProvider())
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	if err := store.SetCredentials(ctx, "stale-access", "stale-refresh"); err != nil {
		t.Fatal(err)
	}
	cleared := 0
	store.OnClear(func() { cleared++ })

	mock := &adapter.Mock{
		LoginFunc: func(ctx context.Context, creds storeapi.Credentials) (*storeapi.Session, error) {
			if creds.Email != "ada@example.com" {
				t.Errorf("Email = %q, want trimmed address", creds.Email)
			}
			if store.AccessToken(ctx) != "" {
				t.Error("stale token still present during login")
			}
			return &storeapi.Session{
				User:         &model.User{ID: "u1", Email: creds.Email},
				AccessToken:  "new-access",
				RefreshToken: "new-refresh",
			}, nil
		},
	}
	svc := New(mock, store, quietLogger())

	user, err := svc.Login(ctx, " ada@example.com ", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("user.ID = %q, want u1", user.ID)
	}
	if got := store.AccessToken(ctx); got != "new-access" {
		t.Errorf("AccessToken = %q, want new-access", got)
	}
	if got := store.RefreshToken(ctx); got != "new-refresh" {
		t.Errorf("RefreshToken = %q, want new-refresh", got)
	}
	if cleared != 1 {
		t.Errorf("OnClear fired %d times, want 1", cleared)
	}
}

func TestService_LoginValidation(t *testing.T) {
	mock := &adapter.Mock{
		LoginFunc: func(ctx context.Context, creds storeapi.Credentials) (*storeapi.Session, error) {
			t.Error("Login called with invalid form")
			return nil, nil
		},
	}
	svc := New(mock, newStore(), quietLogger())

	_, err := svc.Login(context.Background(), "", "")
	var fe model.FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("Login() error = %v, want FieldErrors", err)
	}
	if fe["email"] == "" || fe["password"] == "" {
		t.Errorf("FieldErrors = %v, want email and password", fe)
	}
}

func TestService_LoginRejected(t *testing.T) {
	svc := New(&adapter.Mock{}, newStore(), quietLogger())
	if _, err := svc.Login(context.Background(), "a@b.co", "bad"); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("Login() error = %v, want ErrUnauthorized", err)
	}
	if svc.User() != nil {
		t.Error("User() should be nil after failed login")
	}
}

func TestService_LogoutClearsEvenWhenServerFails(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	if err := store.SetCredentials(ctx, "a", "r"); err != nil {
		t.Fatal(err)
	}
	mock := &adapter.Mock{
		LogoutFunc: func(ctx context.Context) error {
			return model.NewStatusError(500, "")
		},
	}
	svc := New(mock, store, quietLogger())

	svc.Logout(ctx)

	if store.IsAuthenticated(ctx) {
		t.Error("credentials survived logout")
	}
	if store.RefreshToken(ctx) != "" {
		t.Error("refresh token survived logout")
	}
}

func TestService_CheckAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("no credential skips network", func(t *testing.T) {
		mock := &adapter.Mock{
			ProfileFunc: func(ctx context.Context) (*model.User, error) {
				t.Error("Profile called without a credential")
				return nil, nil
			},
		}
		svc := New(mock, newStore(), quietLogger())
		if _, err := svc.CheckAuth(ctx); !errors.Is(err, model.ErrLoginRequired) {
			t.Errorf("CheckAuth() error = %v, want ErrLoginRequired", err)
		}
	})

	t.Run("loads profile", func(t *testing.T) {
		store := newStore()
		if err := store.SetCredentials(ctx, "a", ""); err != nil {
			t.Fatal(err)
		}
		mock := &adapter.Mock{
			ProfileFunc: func(ctx context.Context) (*model.User, error) {
				return &model.User{ID: "u1", Name: "Ada"}, nil
			},
		}
		svc := New(mock, store, quietLogger())
		user, err := svc.CheckAuth(ctx)
		if err != nil {
			t.Fatalf("CheckAuth: %v", err)
		}
		if user.Name != "Ada" || svc.User().Name != "Ada" {
			t.Errorf("user = %+v, want Ada", user)
		}
	})
}

func TestService_PasswordForms(t *testing.T) {
	ctx := context.Background()
	called := 0
	mock := &adapter.Mock{
		SignupFunc: func(ctx context.Context, form storeapi.Signup) (string, error) {
			called++
			return "check your email", nil
		},
		ResetPasswordFunc: func(ctx context.Context, reset storeapi.PasswordReset) (string, error) {
			called++
			return "password reset", nil
		},
	}
	svc := New(mock, newStore(), quietLogger())

	tests := []struct {
		name      string
		run       func() (string, error)
		wantField string
	}{
		{
			name: "signup mismatch",
			run: func() (string, error) {
				return svc.Signup(ctx, storeapi.Signup{Name: "Ada", Email: "a@b.co", PasswordChange: model.PasswordChange{Password: "x", ConfirmPassword: "y"}})
			},
			wantField: "confirmPassword",
		},
		{
			name: "signup missing name",
			run: func() (string, error) {
				return svc.Signup(ctx, storeapi.Signup{Email: "a@b.co", PasswordChange: model.PasswordChange{Password: "x", ConfirmPassword: "x"}})
			},
			wantField: "name",
		},
		{
			name: "reset missing code",
			run: func() (string, error) {
				return svc.ResetPassword(ctx, storeapi.PasswordReset{NewPassword: "x", ConfirmNewPassword: "x"})
			},
			wantField: "code",
		},
		{
			name: "reset mismatch",
			run: func() (string, error) {
				return svc.ResetPassword(ctx, storeapi.PasswordReset{Code: "123", NewPassword: "x", ConfirmNewPassword: "z"})
			},
			wantField: "confirmPassword",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.run()
			var fe model.FieldErrors
			if !errors.As(err, &fe) {
				t.Fatalf("error = %v, want FieldErrors", err)
			}
			if fe[tt.wantField] == "" {
				t.Errorf("FieldErrors = %v, want %s", fe, tt.wantField)
			}
		})
	}
	if called != 0 {
		t.Errorf("backend called %d times for invalid forms, want 0", called)
	}

	msg, err := svc.Signup(ctx, storeapi.Signup{Name: "Ada", Email: "a@b.co", PasswordChange: model.PasswordChange{Password: "x", ConfirmPassword: "x"}})
	if err != nil || msg != "check your email" {
		t.Errorf("Signup() = %q, %v", msg, err)
	}
}
