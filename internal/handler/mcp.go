// MCP transport handler for the storefront client using the official MCP Go
// SDK. Exposes the same operations as the REST routes as MCP tools.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront/internal/confirm"
	"storefront/internal/model"
	"storefront/internal/reconcile"
)

// === MCP Tool Input Types ===
// Fields without omitempty are required by the generated input schema.

// NoInput is the input of tools that take no arguments.
type NoInput struct{}

// LoginInput is the input schema for the login tool.
type LoginInput struct {
	Email    string `json:"email" jsonschema:"account email"`
	Password string `json:"password" jsonschema:"account password"`
}

// ProductInput names one catalog product.
type ProductInput struct {
	ProductID string `json:"product_id" jsonschema:"catalog product ID"`
}

// UpdateQuantityInput is the input schema for update_quantity.
type UpdateQuantityInput struct {
	ProductID string `json:"product_id" jsonschema:"product ID in the cart"`
	Quantity  int    `json:"quantity" jsonschema:"new absolute quantity; 0 removes the item"`
}

// CouponInput is the input schema for apply_coupon.
type CouponInput struct {
	Code string `json:"code" jsonschema:"coupon code"`
}

// ReplaceCartInput uses full PUT semantics: items is the complete desired
// cart.
type ReplaceCartInput struct {
	Items  []reconcile.Item `json:"items" jsonschema:"complete desired cart contents"`
	Coupon string           `json:"coupon,omitempty" jsonschema:"coupon code; empty removes the applied coupon"`
}

// CheckoutInput is the input schema for start_checkout.
type CheckoutInput struct {
	Shipping model.ShippingDetails `json:"shipping" jsonschema:"shipping details"`
}

// PayInput is the input schema for pay.
type PayInput struct {
	PaymentMethod string `json:"payment_method" jsonschema:"payment method ID, e.g. pm_card_visa"`
}

// ConfirmInput is the input schema for confirm_order.
type ConfirmInput struct {
	Kind string `json:"kind" jsonschema:"session, payment-intent or intent-record"`
	ID   string `json:"id" jsonschema:"checkout session or payment intent ID"`
}

// SearchInput is the input schema for search_products.
type SearchInput struct {
	Category string `json:"category,omitempty" jsonschema:"category filter"`
	Search   string `json:"search,omitempty" jsonschema:"free text search"`
}

// NewMCPServer creates an MCP server with storefront tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront client. Log in, manage the cart and wishlist, " +
				"then start a checkout, pay, and confirm the order.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{Name: "login", Description: "Log in with email and password."}, h.mcpLogin)
	mcp.AddTool(server, &mcp.Tool{Name: "logout", Description: "Log out and clear local state."}, h.mcpLogout)
	mcp.AddTool(server, &mcp.Tool{Name: "whoami", Description: "Return the signed-in user."}, h.mcpWhoami)

	mcp.AddTool(server, &mcp.Tool{Name: "get_cart", Description: "Reload and return the cart with totals."}, h.mcpGetCart)
	mcp.AddTool(server, &mcp.Tool{Name: "toggle_cart", Description: "Add a product to the cart, or remove it when present."}, h.mcpToggleCart)
	mcp.AddTool(server, &mcp.Tool{Name: "update_quantity", Description: "Set the quantity of a cart item."}, h.mcpUpdateQuantity)
	mcp.AddTool(server, &mcp.Tool{Name: "apply_coupon", Description: "Validate and apply a coupon code."}, h.mcpApplyCoupon)
	mcp.AddTool(server, &mcp.Tool{Name: "remove_coupon", Description: "Remove the applied coupon."}, h.mcpRemoveCoupon)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "replace_cart",
		Description: "Make the cart match the given items and coupon. Requires full state.",
	}, h.mcpReplaceCart)
	mcp.AddTool(server, &mcp.Tool{Name: "get_wishlist", Description: "Reload and return the wishlist."}, h.mcpGetWishlist)
	mcp.AddTool(server, &mcp.Tool{Name: "toggle_wishlist", Description: "Add a product to the wishlist, or remove it when present."}, h.mcpToggleWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_checkout",
		Description: "Validate shipping details and create a payment session for the current cart.",
	}, h.mcpStartCheckout)
	mcp.AddTool(server, &mcp.Tool{Name: "get_checkout", Description: "Return the open checkout and its payment session."}, h.mcpGetCheckout)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "pay",
		Description: "Confirm the checkout's payment session with a payment method.",
	}, h.mcpPay)
	mcp.AddTool(server, &mcp.Tool{Name: "leave_checkout", Description: "Close the checkout."}, h.mcpLeaveCheckout)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "confirm_order",
		Description: "Record a completed payment as an order. Safe to repeat.",
	}, h.mcpConfirmOrder)

	mcp.AddTool(server, &mcp.Tool{Name: "search_products", Description: "List catalog products."}, h.mcpSearchProducts)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpLogin(ctx context.Context, req *mcp.CallToolRequest, input LoginInput) (*mcp.CallToolResult, any, error) {
	user, err := h.app.Login(ctx, input.Email, input.Password)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, user, nil
}

func (h *Handler) mcpLogout(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, any, error) {
	h.app.Logout(ctx)
	return nil, messageResponse{Message: "Logged out"}, nil
}

func (h *Handler) mcpWhoami(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, any, error) {
	user, err := h.app.Auth.CheckAuth(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, user, nil
}

func (h *Handler) mcpGetCart(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, any, error) {
	snap, err := h.app.Cart.Load(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, snap, nil
}

func (h *Handler) mcpToggleCart(ctx context.Context, req *mcp.CallToolRequest, input ProductInput) (*mcp.CallToolResult, any, error) {
	action, err := h.app.ToggleCart(ctx, input.ProductID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, toggleCartResponse{Action: action, Cart: h.app.Cart.Snapshot()}, nil
}

func (h *Handler) mcpUpdateQuantity(ctx context.Context, req *mcp.CallToolRequest, input UpdateQuantityInput) (*mcp.CallToolResult, any, error) {
	if err := h.app.Cart.UpdateQuantity(ctx, input.ProductID, input.Quantity); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.app.Cart.Snapshot(), nil
}

func (h *Handler) mcpApplyCoupon(ctx context.Context, req *mcp.CallToolRequest, input CouponInput) (*mcp.CallToolResult, any, error) {
	if _, err := h.app.Cart.ApplyCoupon(ctx, input.Code); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.app.Cart.Snapshot(), nil
}

func (h *Handler) mcpRemoveCoupon(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, any, error) {
	h.app.Cart.RemoveCoupon()
	return nil, h.app.Cart.Snapshot(), nil
}

func (h *Handler) mcpReplaceCart(ctx context.Context, req *mcp.CallToolRequest, input ReplaceCartInput) (*mcp.CallToolResult, any, error) {
	snap, err := h.app.ReplaceCart(ctx, input.Items, input.Coupon)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, snap, nil
}

func (h *Handler) mcpGetWishlist(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, any, error) {
	items, err := h.app.Wishlist.Load(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, productsResponse{Products: items}, nil
}

func (h *Handler) mcpToggleWishlist(ctx context.Context, req *mcp.CallToolRequest, input ProductInput) (*mcp.CallToolResult, any, error) {
	in, err := h.app.ToggleWishlist(ctx, input.ProductID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, toggleWishlistResponse{InWishlist: in, Items: h.app.Wishlist.Items()}, nil
}

func (h *Handler) mcpStartCheckout(ctx context.Context, req *mcp.CallToolRequest, input CheckoutInput) (*mcp.CallToolResult, any, error) {
	if _, err := h.app.Checkout(ctx, input.Shipping); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.app.CheckoutState(), nil
}

func (h *Handler) mcpGetCheckout(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, any, error) {
	view := h.app.CheckoutState()
	if view == nil {
		return nil, nil, h.mcpError(model.NewNotFoundError("checkout"))
	}
	return nil, view, nil
}

func (h *Handler) mcpPay(ctx context.Context, req *mcp.CallToolRequest, input PayInput) (*mcp.CallToolResult, any, error) {
	if input.PaymentMethod == "" {
		return nil, nil, h.mcpError(model.NewValidationError("payment_method", "required"))
	}
	session, err := h.app.Pay(ctx, input.PaymentMethod)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, payResponse{Session: session, Route: h.app.Router.Current()}, nil
}

func (h *Handler) mcpLeaveCheckout(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, any, error) {
	h.app.LeaveCheckout(ctx)
	return nil, messageResponse{Message: "Checkout closed"}, nil
}

func (h *Handler) mcpConfirmOrder(ctx context.Context, req *mcp.CallToolRequest, input ConfirmInput) (*mcp.CallToolResult, any, error) {
	kind, err := confirm.ParseKind(input.Kind)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	res, err := h.app.Confirm(ctx, kind, input.ID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, res, nil
}

func (h *Handler) mcpSearchProducts(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, any, error) {
	query := url.Values{}
	if input.Category != "" {
		query.Set("category", input.Category)
	}
	if input.Search != "" {
		query.Set("search", input.Search)
	}
	products, err := h.app.Products(ctx, query)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, productsResponse{Products: products}, nil
}

// productsResponse wraps the product list; tool output must be an object.
type productsResponse struct {
	Products []model.Product `json:"products"`
}

// mcpError converts storefront errors to MCP-friendly errors carrying the
// same user-facing message as the REST envelope.
func (h *Handler) mcpError(err error) error {
	if statusFor(err) >= http.StatusInternalServerError {
		// Don't leak internal error details
		h.logger.Error("mcp internal error", slog.String("error", err.Error()))
	}
	return errors.New(model.Normalize(err).Message)
}
