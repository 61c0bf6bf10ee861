package adapter

import (
	"context"
	"net/url"

	"storefront/internal/model"
	"storefront/internal/storeapi"
)

// Mock implements Storefront for testing.
// Each method can be configured via function fields.
type Mock struct {
	GetCartFunc               func(ctx context.Context) ([]model.LineItem, error)
	AddToCartFunc             func(ctx context.Context, productID string) error
	RemoveFromCartFunc        func(ctx context.Context, productID string) error
	ClearCartFunc             func(ctx context.Context) error
	UpdateQuantityFunc        func(ctx context.Context, productID string, quantity int) error
	ValidateCouponFunc        func(ctx context.Context, code string) (*model.Coupon, error)
	GetMyCouponFunc           func(ctx context.Context) (*model.Coupon, error)
	CreatePaymentIntentFunc   func(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error)
	PaymentIntentSuccessFunc  func(ctx context.Context, paymentIntentID string) (*storeapi.Confirmation, error)
	CheckoutSuccessFunc       func(ctx context.Context, sessionID string) (*storeapi.Confirmation, error)
	OrderForPaymentIntentFunc func(ctx context.Context, paymentIntentID string) (*storeapi.Confirmation, error)
	MyOrdersFunc              func(ctx context.Context) ([]model.Order, error)
	GetWishlistFunc           func(ctx context.Context) ([]model.Product, error)
	AddToWishlistFunc         func(ctx context.Context, productID string) (*model.Product, error)
	RemoveFromWishlistFunc    func(ctx context.Context, productID string) error
	ClearWishlistFunc         func(ctx context.Context) error
	LoginFunc                 func(ctx context.Context, creds storeapi.Credentials) (*storeapi.Session, error)
	SignupFunc                func(ctx context.Context, form storeapi.Signup) (string, error)
	LogoutFunc                func(ctx context.Context) error
	ProfileFunc               func(ctx context.Context) (*model.User, error)
	UpdateProfileFunc         func(ctx context.Context, update storeapi.ProfileUpdate) (*model.User, error)
	ForgotPasswordFunc        func(ctx context.Context, email string) (string, error)
	ResetPasswordFunc         func(ctx context.Context, reset storeapi.PasswordReset) (string, error)
	ConfirmEmailFunc          func(ctx context.Context, token string) (string, error)
	ProductsFunc              func(ctx context.Context, query url.Values) ([]model.Product, error)
	ProductFunc               func(ctx context.Context, id string) (*model.Product, error)
	FeaturedFunc              func(ctx context.Context) ([]model.Product, error)
	SubmitContactFunc         func(ctx context.Context, form model.ContactForm) error
}

// GetCart calls the configured GetCartFunc or returns an empty cart.
func (m *Mock) GetCart(ctx context.Context) ([]model.LineItem, error) {
	if m.GetCartFunc != nil {
		return m.GetCartFunc(ctx)
	}
	return nil, nil
}

// AddToCart calls the configured AddToCartFunc or succeeds.
func (m *Mock) AddToCart(ctx context.Context, productID string) error {
	if m.AddToCartFunc != nil {
		return m.AddToCartFunc(ctx, productID)
	}
	return nil
}

// RemoveFromCart calls the configured RemoveFromCartFunc or succeeds.
func (m *Mock) RemoveFromCart(ctx context.Context, productID string) error {
	if m.RemoveFromCartFunc != nil {
		return m.RemoveFromCartFunc(ctx, productID)
	}
	return nil
}

// ClearCart calls the configured ClearCartFunc or succeeds.
func (m *Mock) ClearCart(ctx context.Context) error {
	if m.ClearCartFunc != nil {
		return m.ClearCartFunc(ctx)
	}
	return nil
}

// UpdateQuantity calls the configured UpdateQuantityFunc or succeeds.
func (m *Mock) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	if m.UpdateQuantityFunc != nil {
		return m.UpdateQuantityFunc(ctx, productID, quantity)
	}
	return nil
}

// ValidateCoupon calls the configured ValidateCouponFunc or returns not found.
func (m *Mock) ValidateCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	if m.ValidateCouponFunc != nil {
		return m.ValidateCouponFunc(ctx, code)
	}
	return nil, model.NewNotFoundError("coupon")
}

// GetMyCoupon calls the configured GetMyCouponFunc or returns not found.
func (m *Mock) GetMyCoupon(ctx context.Context) (*model.Coupon, error) {
	if m.GetMyCouponFunc != nil {
		return m.GetMyCouponFunc(ctx)
	}
	return nil, model.NewNotFoundError("coupon")
}

// CreatePaymentIntent calls the configured CreatePaymentIntentFunc or returns an error.
func (m *Mock) CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
	if m.CreatePaymentIntentFunc != nil {
		return m.CreatePaymentIntentFunc(ctx, req)
	}
	return nil, model.NewInternalError(nil)
}

// PaymentIntentSuccess calls the configured PaymentIntentSuccessFunc or succeeds.
func (m *Mock) PaymentIntentSuccess(ctx context.Context, paymentIntentID string) (*storeapi.Confirmation, error) {
	if m.PaymentIntentSuccessFunc != nil {
		return m.PaymentIntentSuccessFunc(ctx, paymentIntentID)
	}
	return &storeapi.Confirmation{}, nil
}

// CheckoutSuccess calls the configured CheckoutSuccessFunc or succeeds.
func (m *Mock) CheckoutSuccess(ctx context.Context, sessionID string) (*storeapi.Confirmation, error) {
	if m.CheckoutSuccessFunc != nil {
		return m.CheckoutSuccessFunc(ctx, sessionID)
	}
	return &storeapi.Confirmation{}, nil
}

// OrderForPaymentIntent calls the configured OrderForPaymentIntentFunc or returns not found.
func (m *Mock) OrderForPaymentIntent(ctx context.Context, paymentIntentID string) (*storeapi.Confirmation, error) {
	if m.OrderForPaymentIntentFunc != nil {
		return m.OrderForPaymentIntentFunc(ctx, paymentIntentID)
	}
	return nil, model.NewNotFoundError("order")
}

// MyOrders calls the configured MyOrdersFunc or returns no orders.
func (m *Mock) MyOrders(ctx context.Context) ([]model.Order, error) {
	if m.MyOrdersFunc != nil {
		return m.MyOrdersFunc(ctx)
	}
	return nil, nil
}

// GetWishlist calls the configured GetWishlistFunc or returns an empty wishlist.
func (m *Mock) GetWishlist(ctx context.Context) ([]model.Product, error) {
	if m.GetWishlistFunc != nil {
		return m.GetWishlistFunc(ctx)
	}
	return nil, nil
}

// AddToWishlist calls the configured AddToWishlistFunc or echoes the product.
func (m *Mock) AddToWishlist(ctx context.Context, productID string) (*model.Product, error) {
	if m.AddToWishlistFunc != nil {
		return m.AddToWishlistFunc(ctx, productID)
	}
	return &model.Product{ID: productID}, nil
}

// RemoveFromWishlist calls the configured RemoveFromWishlistFunc or succeeds.
func (m *Mock) RemoveFromWishlist(ctx context.Context, productID string) error {
	if m.RemoveFromWishlistFunc != nil {
		return m.RemoveFromWishlistFunc(ctx, productID)
	}
	return nil
}

// ClearWishlist calls the configured ClearWishlistFunc or succeeds.
func (m *Mock) ClearWishlist(ctx context.Context) error {
	if m.ClearWishlistFunc != nil {
		return m.ClearWishlistFunc(ctx)
	}
	return nil
}

// Login calls the configured LoginFunc or rejects.
func (m *Mock) Login(ctx context.Context, creds storeapi.Credentials) (*storeapi.Session, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, creds)
	}
	return nil, model.NewUnauthorizedError("invalid credentials")
}

// Signup calls the configured SignupFunc or succeeds.
func (m *Mock) Signup(ctx context.Context, form storeapi.Signup) (string, error) {
	if m.SignupFunc != nil {
		return m.SignupFunc(ctx, form)
	}
	return "", nil
}

// Logout calls the configured LogoutFunc or succeeds.
func (m *Mock) Logout(ctx context.Context) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx)
	}
	return nil
}

// Profile calls the configured ProfileFunc or rejects.
func (m *Mock) Profile(ctx context.Context) (*model.User, error) {
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx)
	}
	return nil, model.NewUnauthorizedError("not logged in")
}

// UpdateProfile calls the configured UpdateProfileFunc or rejects.
func (m *Mock) UpdateProfile(ctx context.Context, update storeapi.ProfileUpdate) (*model.User, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, update)
	}
	return nil, model.NewUnauthorizedError("not logged in")
}

// ForgotPassword calls the configured ForgotPasswordFunc or succeeds.
func (m *Mock) ForgotPassword(ctx context.Context, email string) (string, error) {
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, email)
	}
	return "", nil
}

// ResetPassword calls the configured ResetPasswordFunc or succeeds.
func (m *Mock) ResetPassword(ctx context.Context, reset storeapi.PasswordReset) (string, error) {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, reset)
	}
	return "", nil
}

// ConfirmEmail calls the configured ConfirmEmailFunc or succeeds.
func (m *Mock) ConfirmEmail(ctx context.Context, token string) (string, error) {
	if m.ConfirmEmailFunc != nil {
		return m.ConfirmEmailFunc(ctx, token)
	}
	return "", nil
}

// Products calls the configured ProductsFunc or returns no products.
func (m *Mock) Products(ctx context.Context, query url.Values) ([]model.Product, error) {
	if m.ProductsFunc != nil {
		return m.ProductsFunc(ctx, query)
	}
	return nil, nil
}

// Product calls the configured ProductFunc or returns not found.
func (m *Mock) Product(ctx context.Context, id string) (*model.Product, error) {
	if m.ProductFunc != nil {
		return m.ProductFunc(ctx, id)
	}
	return nil, model.NewNotFoundError("product")
}

// Featured calls the configured FeaturedFunc or returns no products.
func (m *Mock) Featured(ctx context.Context) ([]model.Product, error) {
	if m.FeaturedFunc != nil {
		return m.FeaturedFunc(ctx)
	}
	return nil, nil
}

// SubmitContact calls the configured SubmitContactFunc or succeeds.
func (m *Mock) SubmitContact(ctx context.Context, form model.ContactForm) error {
	if m.SubmitContactFunc != nil {
		return m.SubmitContactFunc(ctx, form)
	}
	return nil
}

// Verify Mock implements Storefront interface at compile time.
var _ Storefront = (*Mock)(nil)
