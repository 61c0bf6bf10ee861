package handler

import (
	"net/http"

	"storefront/internal/storeapi"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// handleLogin signs in and loads the user's cart and wishlist.
// POST /auth/login
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	user, err := h.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, user)
}

// handleLogout always succeeds; local state is cleared regardless of the
// server response.
// POST /auth/logout
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.app.Logout(r.Context())
	h.writeOK(w, nil)
}

// GET /auth/me
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.app.Auth.CheckAuth(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, user)
}

// POST /auth/signup
func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req storeapi.Signup
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	msg, err := h.app.Auth.Signup(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, messageResponse{Message: msg})
}

// POST /auth/forgot-password
func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	msg, err := h.app.Auth.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, messageResponse{Message: msg})
}

// POST /auth/reset-password
func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req storeapi.PasswordReset
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	msg, err := h.app.Auth.ResetPassword(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, messageResponse{Message: msg})
}
