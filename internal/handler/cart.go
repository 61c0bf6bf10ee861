package handler

import (
	"net/http"

	"storefront/internal/cart"
	"storefront/internal/model"
	"storefront/internal/reconcile"
)

type productRequest struct {
	ProductID string `json:"product_id"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

type couponRequest struct {
	Code string `json:"code"`
}

// replaceCartRequest uses full PUT semantics: the body is the complete
// desired cart, and an empty coupon removes the applied one.
type replaceCartRequest struct {
	Items  []reconcile.Item `json:"items"`
	Coupon string           `json:"coupon"`
}

type toggleCartResponse struct {
	Action cart.Action   `json:"action"`
	Cart   cart.Snapshot `json:"cart"`
}

type toggleWishlistResponse struct {
	InWishlist bool            `json:"in_wishlist"`
	Items      []model.Product `json:"items"`
}

// handleGetCart reloads the cart from the server.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.app.Cart.Load(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, snap)
}

// PUT /cart
func (h *Handler) handleReplaceCart(w http.ResponseWriter, r *http.Request) {
	var req replaceCartRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Items == nil {
		h.writeError(w, model.NewValidationError("items", "required for PUT - send an empty array to empty the cart"))
		return
	}

	snap, err := h.app.ReplaceCart(r.Context(), req.Items, req.Coupon)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, snap)
}

// DELETE /cart
func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Cart.ClearRemote(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, h.app.Cart.Snapshot())
}

// POST /cart/toggle
func (h *Handler) handleToggleCart(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	action, err := h.app.ToggleCart(r.Context(), req.ProductID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, toggleCartResponse{Action: action, Cart: h.app.Cart.Snapshot()})
}

// PUT /cart/items/{id}
func (h *Handler) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity == nil {
		h.writeError(w, model.NewValidationError("quantity", "required"))
		return
	}

	if err := h.app.Cart.UpdateQuantity(r.Context(), r.PathValue("id"), *req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, h.app.Cart.Snapshot())
}

// DELETE /cart/items/{id}
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Cart.Remove(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, h.app.Cart.Snapshot())
}

// POST /cart/coupon
func (h *Handler) handleApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if _, err := h.app.Cart.ApplyCoupon(r.Context(), req.Code); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, h.app.Cart.Snapshot())
}

// DELETE /cart/coupon
func (h *Handler) handleRemoveCoupon(w http.ResponseWriter, r *http.Request) {
	h.app.Cart.RemoveCoupon()
	h.writeOK(w, h.app.Cart.Snapshot())
}

// GET /wishlist
func (h *Handler) handleGetWishlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.app.Wishlist.Load(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, items)
}

// DELETE /wishlist
func (h *Handler) handleClearWishlist(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Wishlist.ClearRemote(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, h.app.Wishlist.Items())
}

// POST /wishlist/toggle
func (h *Handler) handleToggleWishlist(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	in, err := h.app.ToggleWishlist(r.Context(), req.ProductID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, toggleWishlistResponse{InWishlist: in, Items: h.app.Wishlist.Items()})
}
