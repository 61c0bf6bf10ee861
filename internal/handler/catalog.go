package handler

import (
	"net/http"

	"storefront/internal/model"
)

// GET /products
func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.app.Products(r.Context(), r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, products)
}

// GET /products/{id}
func (h *Handler) handleProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.app.Product(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, product)
}

// GET /orders
func (h *Handler) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.app.Orders(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, orders)
}

// handleContact validates the form before anything is sent.
// POST /contact
func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	var form model.ContactForm
	if err := decodeJSON(r, &form); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.app.SubmitContact(r.Context(), form); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOK(w, messageResponse{Message: "Message sent"})
}
