package storeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"storefront/internal/apiclient"
	"storefront/internal/model"
)

// Credentials are the login form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup is the registration form.
type Signup struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	model.PasswordChange
}

// PasswordReset completes a forgot-password flow.
type PasswordReset struct {
	Code               string `json:"code"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Session is the result of a successful login. Tokens come from the body
// when present and from the rotation headers otherwise.
type Session struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
}

type loginData struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

// Login exchanges credentials for a session. The pipeline does not persist
// login tokens; the caller does.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Session, error) {
	resp, err := c.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   apiclient.PathLogin,
		Body:   creds,
	})
	if err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}

	var env apiclient.Envelope
	if err := resp.Decode(&env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, model.NewUnauthorizedError(withDefault(env.Message, "Login failed"))
	}

	var data loginData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("decoding login response: %w", err)
		}
	}
	// Older responses put the user fields directly in data.
	if data.User == nil && len(env.Data) > 0 {
		var user model.User
		if json.Unmarshal(env.Data, &user) == nil && user.Email != "" {
			data.User = &user
		}
	}

	return &Session{
		User:         data.User,
		AccessToken:  firstNonEmpty(resp.Header.Get(apiclient.HeaderAccessToken), data.AccessToken),
		RefreshToken: firstNonEmpty(resp.Header.Get(apiclient.HeaderRefreshToken), data.RefreshToken),
	}, nil
}

// Signup registers an account. The user confirms their email before logging in.
func (c *Client) Signup(ctx context.Context, form Signup) (string, error) {
	env, err := c.api.CallData(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   apiclient.PathSignup,
		Body:   form,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("signing up: %w", err)
	}
	return env.Message, nil
}

// Logout ends the server session.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.api.Do(ctx, &apiclient.Request{Method: http.MethodPost, Path: pathLogout}); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

// Profile returns the signed-in user.
func (c *Client) Profile(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.api.Get(ctx, pathProfile, &user); err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return &user, nil
}

// UpdateProfile saves profile changes and returns the updated user.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*model.User, error) {
	var user model.User
	if err := c.api.Put(ctx, pathUpdateProfile, update, &user); err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return &user, nil
}

// ForgotPassword asks the backend to email a reset code.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	env, err := c.api.CallData(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   pathForgotPassword,
		Body:   map[string]string{"email": email},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("requesting password reset: %w", err)
	}
	return env.Message, nil
}

// ResetPassword sets a new password using the emailed code.
func (c *Client) ResetPassword(ctx context.Context, reset PasswordReset) (string, error) {
	env, err := c.api.CallData(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   pathResetPassword,
		Body:   reset,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("resetting password: %w", err)
	}
	return env.Message, nil
}

// ConfirmEmail redeems an email confirmation token.
func (c *Client) ConfirmEmail(ctx context.Context, token string) (string, error) {
	env, err := c.api.CallData(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   pathConfirmEmail + url.PathEscape(token),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("confirming email: %w", err)
	}
	return env.Message, nil
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
