// Package handler exposes the storefront client over HTTP for local tools
// and agents: a JSON REST surface and an MCP endpoint over the same
// operations.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/storefront"
	"storefront/internal/tokenstore"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	app    *storefront.App
	logger *slog.Logger
}

// New creates a new Handler over app.
func New(app *storefront.App, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		app:    app,
		logger: logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Session
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /auth/me", h.handleMe)
	mux.HandleFunc("POST /auth/signup", h.handleSignup)
	mux.HandleFunc("POST /auth/forgot-password", h.handleForgotPassword)
	mux.HandleFunc("POST /auth/reset-password", h.handleResetPassword)

	// Cart and wishlist
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("PUT /cart", h.handleReplaceCart)
	mux.HandleFunc("DELETE /cart", h.handleClearCart)
	mux.HandleFunc("POST /cart/toggle", h.handleToggleCart)
	mux.HandleFunc("PUT /cart/items/{id}", h.handleUpdateQuantity)
	mux.HandleFunc("DELETE /cart/items/{id}", h.handleRemoveItem)
	mux.HandleFunc("POST /cart/coupon", h.handleApplyCoupon)
	mux.HandleFunc("DELETE /cart/coupon", h.handleRemoveCoupon)
	mux.HandleFunc("GET /wishlist", h.handleGetWishlist)
	mux.HandleFunc("DELETE /wishlist", h.handleClearWishlist)
	mux.HandleFunc("POST /wishlist/toggle", h.handleToggleWishlist)

	// Checkout
	mux.HandleFunc("POST /checkout", h.handleCheckout)
	mux.HandleFunc("GET /checkout", h.handleGetCheckout)
	mux.HandleFunc("POST /checkout/pay", h.handlePay)
	mux.HandleFunc("DELETE /checkout", h.handleLeaveCheckout)
	mux.HandleFunc("POST /confirm/{kind}/{id}", h.handleConfirm)

	// Catalog and misc
	mux.HandleFunc("GET /products", h.handleProducts)
	mux.HandleFunc("GET /products/{id}", h.handleProduct)
	mux.HandleFunc("GET /orders", h.handleOrders)
	mux.HandleFunc("POST /contact", h.handleContact)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeOK wraps data in a successful result envelope.
func (h *Handler) writeOK(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, model.OK(data))
}

// writeError sends a failed result envelope. The body never carries
// transport details; unexpected errors are logged and reported generically.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}
	h.writeJSON(w, status, model.Normalize(err))
}

// statusFor maps an error to the HTTP status of its envelope.
func statusFor(err error) int {
	var fields model.FieldErrors
	switch {
	case errors.As(err, &fields):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrLoginRequired):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrEmptyCart):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payment.ErrSubmitInProgress), errors.Is(err, payment.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	if status := model.StatusOf(err); status != 0 {
		return status
	}
	return http.StatusInternalServerError
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns a validation error if decoding fails.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Authenticated: h.app.Tokens.IsAuthenticated(r.Context()),
		Route:         h.app.Router.Current(),
		Token:         h.app.TokenInfo(r.Context()),
	})
}

type healthResponse struct {
	Status        string                `json:"status"`
	Authenticated bool                  `json:"authenticated"`
	Route         string                `json:"route"`
	Token         *tokenstore.TokenInfo `json:"token,omitempty"`
}
