// Package adapter defines the storefront backend surface consumed by the
// domain packages, and a configurable mock of it for tests.
package adapter

import (
	"context"
	"net/url"

	"storefront/internal/model"
	"storefront/internal/storeapi"
)

// Storefront abstracts the remote storefront API. Domain packages depend on
// narrow subsets of it (cart.Backend, payment.Backend, ...); the full set is
// what a real backend client must provide.
//
// Errors are *model.APIError values carrying the HTTP status, so callers can
// branch on model.StatusOf or errors.Is against the model sentinels.
type Storefront interface {
	// GetCart returns the server cart.
	GetCart(ctx context.Context) ([]model.LineItem, error)
	AddToCart(ctx context.Context, productID string) error
	RemoveFromCart(ctx context.Context, productID string) error
	ClearCart(ctx context.Context) error
	// UpdateQuantity sets an absolute quantity.
	UpdateQuantity(ctx context.Context, productID string, quantity int) error

	// ValidateCoupon returns the coupon when code is currently valid.
	ValidateCoupon(ctx context.Context, code string) (*model.Coupon, error)
	GetMyCoupon(ctx context.Context) (*model.Coupon, error)

	// CreatePaymentIntent opens a payment session for the given cart.
	CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error)
	// PaymentIntentSuccess notifies the server of a confirmed payment.
	// A 409 means the intent was already recorded.
	PaymentIntentSuccess(ctx context.Context, paymentIntentID string) (*storeapi.Confirmation, error)
	CheckoutSuccess(ctx context.Context, sessionID string) (*storeapi.Confirmation, error)
	OrderForPaymentIntent(ctx context.Context, paymentIntentID string) (*storeapi.Confirmation, error)
	MyOrders(ctx context.Context) ([]model.Order, error)

	GetWishlist(ctx context.Context) ([]model.Product, error)
	AddToWishlist(ctx context.Context, productID string) (*model.Product, error)
	RemoveFromWishlist(ctx context.Context, productID string) error
	ClearWishlist(ctx context.Context) error

	// Login exchanges credentials for a session. It does not store tokens.
	Login(ctx context.Context, creds storeapi.Credentials) (*storeapi.Session, error)
	Signup(ctx context.Context, form storeapi.Signup) (string, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*model.User, error)
	UpdateProfile(ctx context.Context, update storeapi.ProfileUpdate) (*model.User, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, reset storeapi.PasswordReset) (string, error)
	ConfirmEmail(ctx context.Context, token string) (string, error)

	Products(ctx context.Context, query url.Values) ([]model.Product, error)
	Product(ctx context.Context, id string) (*model.Product, error)
	Featured(ctx context.Context) ([]model.Product, error)
	SubmitContact(ctx context.Context, form model.ContactForm) error
}

// Verify the HTTP client implements Storefront at compile time.
var _ Storefront = (*storeapi.Client)(nil)
