package model

import "time"

// =============================================================================
// CATALOG & CART
// =============================================================================

// Product is the backend's product document. Prices are major units.
type Product struct {
	ID           string  `json:"_id"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	Price        float64 `json:"price"`
	Image        string  `json:"image,omitempty"`
	Category     string  `json:"category,omitempty"`
	CountInStock int     `json:"countInStock,omitempty"`
	IsFeatured   bool    `json:"isFeatured,omitempty"`
}

// LineItem is a product in the cart. The backend returns cart entries as
// the product document with a quantity field merged in.
type LineItem struct {
	Product
	Quantity int `json:"quantity"`
}

// UnitPrice returns the product price in cents.
func (li LineItem) UnitPrice() Cents {
	return FromFloat(li.Price)
}

// Coupon is a validated discount code.
type Coupon struct {
	Code               string     `json:"code"`
	DiscountPercentage float64    `json:"discountPercentage"`
	ExpirationDate     *time.Time `json:"expirationDate,omitempty"`
	IsActive           bool       `json:"isActive,omitempty"`
}

// Totals are always derived from line items and coupon, never set directly.
type Totals struct {
	Subtotal Cents `json:"subtotal"`
	Total    Cents `json:"total"`
}

// =============================================================================
// USERS & ORDERS
// =============================================================================

// User is the authenticated customer profile.
type User struct {
	ID              string `json:"_id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Role            string `json:"role,omitempty"`
	ProfileImage    string `json:"profileImage,omitempty"`
	IsEmailVerified bool   `json:"isEmailVerified,omitempty"`
}

// OrderLine is one purchased product within an order.
type OrderLine struct {
	Product     string  `json:"product"`
	ProductName string  `json:"productName,omitempty"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// Order is a confirmed purchase as reported by the backend.
type Order struct {
	ID              string      `json:"_id"`
	User            string      `json:"user,omitempty"`
	Products        []OrderLine `json:"products"`
	TotalAmount     float64     `json:"totalAmount"`
	Status          string      `json:"status,omitempty"`
	PaymentStatus   string      `json:"paymentStatus,omitempty"`
	StripeSessionID string      `json:"stripeSessionId,omitempty"`
	PaymentIntentID string      `json:"paymentIntentId,omitempty"`
	CreatedAt       *time.Time  `json:"createdAt,omitempty"`
}

// =============================================================================
// PAYMENT
// =============================================================================

// PaymentIntentProduct is the cart snapshot sent when requesting a payment
// session. Display fields let the backend build its order lines.
type PaymentIntentProduct struct {
	ID       string  `json:"_id"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Name     string  `json:"name"`
	Image    string  `json:"image,omitempty"`
}

// PaymentIntentRequest is the body of a payment session request.
type PaymentIntentRequest struct {
	Products   []PaymentIntentProduct `json:"products"`
	CouponCode string                 `json:"couponCode,omitempty"`
}

// NewPaymentIntentRequest snapshots line items and an optional coupon.
func NewPaymentIntentRequest(items []LineItem, coupon *Coupon) PaymentIntentRequest {
	req := PaymentIntentRequest{Products: make([]PaymentIntentProduct, 0, len(items))}
	for _, item := range items {
		req.Products = append(req.Products, PaymentIntentProduct{
			ID:       item.ID,
			Quantity: item.Quantity,
			Price:    item.Price,
			Name:     item.Name,
			Image:    item.Image,
		})
	}
	if coupon != nil {
		req.CouponCode = coupon.Code
	}
	return req
}

// PaymentIntent is the backend's answer to a payment session request.
type PaymentIntent struct {
	ClientSecret    string  `json:"clientSecret"`
	PaymentIntentID string  `json:"paymentIntentId,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
}
