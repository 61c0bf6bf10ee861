package handler

import (
	"net/http"

	"storefront/internal/confirm"
	"storefront/internal/model"
	"storefront/internal/payment"
)

type checkoutRequest struct {
	Shipping model.ShippingDetails `json:"shipping"`
}

type payRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// payResponse carries the route the client moved to, which after a
// successful payment is the purchase success page.
type payResponse struct {
	Session payment.Session `json:"session"`
	Route   string          `json:"route"`
}

// handleCheckout opens a checkout and mints a payment session.
// POST /checkout
func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if _, err := h.app.Checkout(r.Context(), req.Shipping); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, h.app.CheckoutState())
}

// GET /checkout
func (h *Handler) handleGetCheckout(w http.ResponseWriter, r *http.Request) {
	view := h.app.CheckoutState()
	if view == nil {
		h.writeError(w, model.NewNotFoundError("checkout"))
		return
	}
	h.writeOK(w, view)
}

// handlePay submits the checkout's payment session. Declines and replaced
// sessions are not transport errors: the session state in the body says
// what happened and whether the user can retry.
// POST /checkout/pay
func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.PaymentMethod == "" {
		h.writeError(w, model.NewValidationError("payment_method", "required"))
		return
	}

	session, err := h.app.Pay(r.Context(), req.PaymentMethod)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, payResponse{Session: session, Route: h.app.Router.Current()})
}

// DELETE /checkout
func (h *Handler) handleLeaveCheckout(w http.ResponseWriter, r *http.Request) {
	h.app.LeaveCheckout(r.Context())
	h.writeOK(w, nil)
}

// handleConfirm reconciles a completed payment. Repeated calls for the same
// id report already_confirmed without contacting the backend again.
// POST /confirm/{kind}/{id}
func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	kind, err := confirm.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.app.Confirm(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, res)
}
