// Package storeapi binds the storefront REST endpoints to typed calls.
// Transport concerns (bearer, refresh, retry, timeouts) live in apiclient.
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

// API paths, relative to the versioned base URL.
const (
	pathCart           = "/cart/getCartProducts"
	pathCartAdd        = "/cart/addToCart"
	pathCartRemove     = "/cart/removeFromCart"
	pathCartQuantity   = "/cart/updateQuantity/"
	pathCouponMine     = "/coupons/getCoupon"
	pathCouponValidate = "/coupons/validateCoupon"

	pathPaymentIntent        = "/payments/createPaymentIntent"
	pathPaymentIntentSuccess = "/payments/paymentIntentSuccess"
	pathOrdersCheckout       = "/orders/checkout-success/"
	pathOrdersIntent         = "/orders/payment-intent-success/"
	pathOrdersMine           = "/orders/getUserOrders"

	pathWishlist       = "/wishlist/"
	pathWishlistAdd    = "/wishlist/add"
	pathWishlistRemove = "/wishlist/remove/"
	pathWishlistClear  = "/wishlist/clear"

	pathLogout         = "/auth/logout"
	pathProfile        = "/auth/profile"
	pathUpdateProfile  = "/auth/update-profile"
	pathForgotPassword = "/auth/forgot-password"
	pathResetPassword  = "/auth/reset-password"
	pathConfirmEmail   = "/auth/confirm-email/"

	pathProducts = "/products/getProducts"
	pathProduct  = "/products/getProduct/"
	pathFeatured = "/products/getFeaturedProducts"
	pathContact  = "/contact/submitContactForm"
)

// Client is the typed storefront API.
type Client struct {
	api *apiclient.Client
}

// New wraps an authenticated pipeline.
func New(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// =============================================================================
// CART & COUPONS
// =============================================================================

type productRef struct {
	ProductID string `json:"productId,omitempty"`
}

// GetCart returns the server's cart.
func (c *Client) GetCart(ctx context.Context) ([]model.LineItem, error) {
	var items []model.LineItem
	if err := c.api.Get(ctx, pathCart, &items); err != nil {
		return nil, fmt.Errorf("getting cart: %w", err)
	}
	return items, nil
}

// AddToCart adds one unit of productID.
func (c *Client) AddToCart(ctx context.Context, productID string) error {
	if err := c.api.Post(ctx, pathCartAdd, productRef{ProductID: productID}, nil); err != nil {
		return fmt.Errorf("adding %s to cart: %w", productID, err)
	}
	return nil
}

// RemoveFromCart removes productID entirely.
func (c *Client) RemoveFromCart(ctx context.Context, productID string) error {
	if err := c.api.Post(ctx, pathCartRemove, productRef{ProductID: productID}, nil); err != nil {
		return fmt.Errorf("removing %s from cart: %w", productID, err)
	}
	return nil
}

// ClearCart empties the server cart. The backend treats a remove without a
// product id as "remove everything".
func (c *Client) ClearCart(ctx context.Context) error {
	if err := c.api.Post(ctx, pathCartRemove, productRef{}, nil); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}

// UpdateQuantity sets the quantity of productID.
func (c *Client) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	body := map[string]int{"quantity": quantity}
	if err := c.api.Put(ctx, pathCartQuantity+url.PathEscape(productID), body, nil); err != nil {
		return fmt.Errorf("updating quantity of %s: %w", productID, err)
	}
	return nil
}

// ValidateCoupon checks code and returns the coupon it names. The endpoint
// answers with the bare coupon document rather than an envelope.
func (c *Client) ValidateCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	resp, err := c.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   pathCouponValidate,
		Body:   map[string]string{"code": code},
	})
	if err != nil {
		return nil, fmt.Errorf("validating coupon: %w", err)
	}
	coupon, err := decodeCoupon(resp.Body)
	if err != nil {
		return nil, err
	}
	if coupon.Code == "" {
		coupon.Code = code
	}
	return coupon, nil
}

// GetMyCoupon returns the coupon issued to the signed-in user, if any.
func (c *Client) GetMyCoupon(ctx context.Context) (*model.Coupon, error) {
	resp, err := c.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: pathCouponMine})
	if err != nil {
		return nil, fmt.Errorf("getting coupon: %w", err)
	}
	if len(resp.Body) == 0 || string(resp.Body) == "null" {
		return nil, nil
	}
	return decodeCoupon(resp.Body)
}

// decodeCoupon accepts either a bare coupon or {success, data: coupon}.
func decodeCoupon(body []byte) (*model.Coupon, error) {
	var wrapped struct {
		Data *model.Coupon `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}
	var coupon model.Coupon
	if err := json.Unmarshal(body, &coupon); err != nil {
		return nil, fmt.Errorf("decoding coupon: %w", err)
	}
	return &coupon, nil
}

// =============================================================================
// PAYMENTS & ORDERS
// =============================================================================

// CreatePaymentIntent requests a payment session for a cart snapshot.
func (c *Client) CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	_, err := c.api.CallData(ctx, &apiclient.Request{
		Method:     http.MethodPost,
		Path:       pathPaymentIntent,
		Body:       req,
		Idempotent: true,
	}, &intent)
	if err != nil {
		return nil, fmt.Errorf("creating payment intent: %w", err)
	}
	if intent.ClientSecret == "" {
		return nil, fmt.Errorf("creating payment intent: %w", model.NewUpstreamError("storefront API", fmt.Errorf("no client secret in response")))
	}
	return &intent, nil
}

// Confirmation is what the backend reports after reconciling a payment.
type Confirmation struct {
	Order   *model.Order `json:"order,omitempty"`
	User    *model.User  `json:"user,omitempty"`
	Message string       `json:"message,omitempty"`
}

// PaymentIntentSuccess tells the backend a payment intent succeeded so it
// can create the order. A 409 means the order already exists.
func (c *Client) PaymentIntentSuccess(ctx context.Context, paymentIntentID string) (*Confirmation, error) {
	return c.confirm(ctx, &apiclient.Request{
		Method:     http.MethodPost,
		Path:       pathPaymentIntentSuccess,
		Body:       map[string]string{"paymentIntentId": paymentIntentID},
		Idempotent: true,
	})
}

// CheckoutSuccess reconciles a hosted checkout session.
func (c *Client) CheckoutSuccess(ctx context.Context, sessionID string) (*Confirmation, error) {
	return c.confirm(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   pathOrdersCheckout + url.PathEscape(sessionID),
	})
}

// OrderForPaymentIntent reconciles a payment intent returned to the
// confirmation page.
func (c *Client) OrderForPaymentIntent(ctx context.Context, paymentIntentID string) (*Confirmation, error) {
	return c.confirm(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   pathOrdersIntent + url.PathEscape(paymentIntentID),
	})
}

func (c *Client) confirm(ctx context.Context, req *apiclient.Request) (*Confirmation, error) {
	var conf Confirmation
	env, err := c.api.CallData(ctx, req, &conf)
	if err != nil {
		return nil, fmt.Errorf("confirming payment: %w", err)
	}
	// Some deployments return the order itself as data.
	if conf.Order == nil && len(env.Data) > 0 {
		var order model.Order
		if json.Unmarshal(env.Data, &order) == nil && order.ID != "" {
			conf.Order = &order
		}
	}
	conf.Message = env.Message
	return &conf, nil
}

// MyOrders lists the signed-in user's orders.
func (c *Client) MyOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := c.api.Get(ctx, pathOrdersMine, &orders); err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

// =============================================================================
// WISHLIST
// =============================================================================

// GetWishlist returns the saved products.
func (c *Client) GetWishlist(ctx context.Context) ([]model.Product, error) {
	var items []model.Product
	if err := c.api.Get(ctx, pathWishlist, &items); err != nil {
		return nil, fmt.Errorf("getting wishlist: %w", err)
	}
	return items, nil
}

// AddToWishlist saves productID and returns the stored entry.
func (c *Client) AddToWishlist(ctx context.Context, productID string) (*model.Product, error) {
	var item model.Product
	if err := c.api.Post(ctx, pathWishlistAdd, productRef{ProductID: productID}, &item); err != nil {
		return nil, fmt.Errorf("adding %s to wishlist: %w", productID, err)
	}
	if item.ID == "" {
		item.ID = productID
	}
	return &item, nil
}

// RemoveFromWishlist drops productID.
func (c *Client) RemoveFromWishlist(ctx context.Context, productID string) error {
	if err := c.api.Delete(ctx, pathWishlistRemove+url.PathEscape(productID), nil); err != nil {
		return fmt.Errorf("removing %s from wishlist: %w", productID, err)
	}
	return nil
}

// ClearWishlist drops every saved product.
func (c *Client) ClearWishlist(ctx context.Context) error {
	if err := c.api.Delete(ctx, pathWishlistClear, nil); err != nil {
		return fmt.Errorf("clearing wishlist: %w", err)
	}
	return nil
}

// =============================================================================
// CATALOG & CONTACT
// =============================================================================

// Products lists catalog products. query may be nil.
func (c *Client) Products(ctx context.Context, query url.Values) ([]model.Product, error) {
	var products []model.Product
	_, err := c.api.CallData(ctx, &apiclient.Request{Method: http.MethodGet, Path: pathProducts, Query: query}, &products)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// Product fetches one product.
func (c *Client) Product(ctx context.Context, id string) (*model.Product, error) {
	var product model.Product
	if err := c.api.Get(ctx, pathProduct+url.PathEscape(id), &product); err != nil {
		return nil, fmt.Errorf("getting product %s: %w", id, err)
	}
	return &product, nil
}

// Featured lists featured products.
func (c *Client) Featured(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := c.api.Get(ctx, pathFeatured, &products); err != nil {
		return nil, fmt.Errorf("listing featured products: %w", err)
	}
	return products, nil
}

// SubmitContact sends the contact form. Callers validate first.
func (c *Client) SubmitContact(ctx context.Context, form model.ContactForm) error {
	if err := c.api.Post(ctx, pathContact, form, nil); err != nil {
		return fmt.Errorf("submitting contact form: %w", err)
	}
	return nil
}
