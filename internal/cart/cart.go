// Package cart keeps a server-confirmed local mirror of the shopping cart
// and derives its totals.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"storefront/internal/model"
	"storefront/internal/reconcile"
)

// Backend is the server side of the cart.
type Backend interface {
	GetCart(ctx context.Context) ([]model.LineItem, error)
	AddToCart(ctx context.Context, productID string) error
	RemoveFromCart(ctx context.Context, productID string) error
	ClearCart(ctx context.Context) error
	UpdateQuantity(ctx context.Context, productID string, quantity int) error
	ValidateCoupon(ctx context.Context, code string) (*model.Coupon, error)
}

// Authenticator reports whether a credential is present.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
}

// Action is the effect of a toggle.
type Action string

const (
	Added   Action = "added"
	Removed Action = "removed"
)

// Snapshot is a consistent copy of the cart. Version increases whenever
// items or coupon change, so holders of derived state (a payment session)
// can tell the cart moved underneath them.
type Snapshot struct {
	Items   []model.LineItem `json:"items"`
	Coupon  *model.Coupon    `json:"coupon,omitempty"`
	Totals  model.Totals     `json:"totals"`
	Version uint64           `json:"version"`
}

// Empty reports whether the cart has no line items.
func (s Snapshot) Empty() bool {
	return len(s.Items) == 0
}

// Aggregate mirrors the server cart. Every mutation is confirmed by the
// backend before it is applied locally; the lock is never held across a
// backend call, so concurrent mutations resolve last-response-wins.
type Aggregate struct {
	backend Backend
	auth    Authenticator
	logger  *slog.Logger

	mu        sync.Mutex
	items     []model.LineItem
	coupon    *model.Coupon
	totals    model.Totals
	version   uint64
	listeners []func(Snapshot)
}

// New creates an empty cart. auth may be nil, in which case only backend
// 401s gate mutations.
func New(backend Backend, auth Authenticator, logger *slog.Logger) *Aggregate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregate{backend: backend, auth: auth, logger: logger}
}

// OnChange registers fn to receive a snapshot after every visible change.
func (a *Aggregate) OnChange(fn func(Snapshot)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Snapshot returns a copy of the current state.
func (a *Aggregate) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Version returns the current content version.
func (a *Aggregate) Version() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version
}

// Contains reports whether productID is in the cart.
func (a *Aggregate) Contains(productID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.indexLocked(productID) >= 0
}

// Load replaces the local cart with the server's.
func (a *Aggregate) Load(ctx context.Context) (Snapshot, error) {
	items, err := a.backend.GetCart(ctx)
	if err != nil {
		if isAuthError(err) {
			a.mutate(func() bool {
				changed := len(a.items) > 0
				a.items = nil
				return changed
			})
			return a.Snapshot(), model.ErrLoginRequired
		}
		return a.Snapshot(), fmt.Errorf("loading cart: %w", err)
	}

	snap := a.mutate(func() bool {
		a.items = dedupe(items)
		return true
	})
	return snap, nil
}

// Toggle removes product if present, otherwise adds one unit of it.
// Without a credential nothing changes and ErrLoginRequired is returned.
func (a *Aggregate) Toggle(ctx context.Context, product model.Product) (Action, error) {
	if err := a.requireAuth(ctx); err != nil {
		return "", err
	}

	if a.Contains(product.ID) {
		if err := a.remove(ctx, product.ID); err != nil {
			return "", err
		}
		return Removed, nil
	}

	if err := a.backend.AddToCart(ctx, product.ID); err != nil {
		return "", a.mutationError("adding to cart", err)
	}
	a.mutate(func() bool {
		if a.indexLocked(product.ID) >= 0 {
			return false
		}
		a.items = append(a.items, model.LineItem{Product: product, Quantity: 1})
		return true
	})
	return Added, nil
}

// Remove drops productID from the cart.
func (a *Aggregate) Remove(ctx context.Context, productID string) error {
	if err := a.requireAuth(ctx); err != nil {
		return err
	}
	return a.remove(ctx, productID)
}

func (a *Aggregate) remove(ctx context.Context, productID string) error {
	if err := a.backend.RemoveFromCart(ctx, productID); err != nil {
		return a.mutationError("removing from cart", err)
	}
	a.mutate(func() bool {
		i := a.indexLocked(productID)
		if i < 0 {
			return false
		}
		a.items = append(a.items[:i:i], a.items[i+1:]...)
		return true
	})
	return nil
}

// UpdateQuantity sets the quantity of productID. Zero removes the item.
func (a *Aggregate) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity < 0 {
		return model.NewValidationError("quantity", "must not be negative")
	}
	if quantity == 0 {
		return a.Remove(ctx, productID)
	}
	if err := a.requireAuth(ctx); err != nil {
		return err
	}

	if err := a.backend.UpdateQuantity(ctx, productID, quantity); err != nil {
		return a.mutationError("updating quantity", err)
	}
	a.mutate(func() bool {
		i := a.indexLocked(productID)
		if i < 0 || a.items[i].Quantity == quantity {
			return false
		}
		a.items[i].Quantity = quantity
		return true
	})
	return nil
}

// ApplyCoupon validates code with the backend and applies it.
func (a *Aggregate) ApplyCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.NewValidationError("code", "coupon code is required")
	}

	coupon, err := a.backend.ValidateCoupon(ctx, code)
	if err != nil {
		return nil, a.mutationError("applying coupon", err)
	}
	a.mutate(func() bool {
		c := *coupon
		a.coupon = &c
		return true
	})
	return coupon, nil
}

// RemoveCoupon drops the applied coupon locally.
func (a *Aggregate) RemoveCoupon() {
	a.mutate(func() bool {
		changed := a.coupon != nil
		a.coupon = nil
		return changed
	})
}

// Clear empties the local cart. Used after payment success and on logout.
func (a *Aggregate) Clear() {
	a.mutate(func() bool {
		changed := len(a.items) > 0 || a.coupon != nil
		a.items = nil
		a.coupon = nil
		return changed
	})
}

// ClearRemote empties the server cart, then the local one.
func (a *Aggregate) ClearRemote(ctx context.Context) error {
	if err := a.backend.ClearCart(ctx); err != nil {
		return a.mutationError("clearing cart", err)
	}
	a.Clear()
	return nil
}

// Replace makes the server cart match desired, issuing only the mutations
// the difference requires, then reloads it. An empty couponCode removes the
// applied coupon.
func (a *Aggregate) Replace(ctx context.Context, desired []reconcile.Item, couponCode string) (Snapshot, error) {
	if err := a.requireAuth(ctx); err != nil {
		return a.Snapshot(), err
	}
	snap, err := a.Load(ctx)
	if err != nil {
		return snap, err
	}

	current := make([]reconcile.Item, 0, len(snap.Items))
	for _, item := range snap.Items {
		current = append(current, reconcile.Item{ProductID: item.ID, Quantity: item.Quantity})
	}
	diff := reconcile.DiffCart(current, desired)

	for _, id := range diff.ToRemove {
		if err := a.backend.RemoveFromCart(ctx, id); err != nil {
			return a.Snapshot(), a.mutationError("removing from cart", err)
		}
	}
	for _, change := range diff.ToUpdate {
		if err := a.backend.UpdateQuantity(ctx, change.ProductID, change.NewQuantity); err != nil {
			return a.Snapshot(), a.mutationError("updating quantity", err)
		}
	}
	for _, item := range diff.ToAdd {
		if err := a.backend.AddToCart(ctx, item.ProductID); err != nil {
			return a.Snapshot(), a.mutationError("adding to cart", err)
		}
		if item.Quantity > 1 {
			if err := a.backend.UpdateQuantity(ctx, item.ProductID, item.Quantity); err != nil {
				return a.Snapshot(), a.mutationError("updating quantity", err)
			}
		}
	}
	if !diff.IsEmpty() {
		if _, err := a.Load(ctx); err != nil {
			return a.Snapshot(), err
		}
	}

	var applied string
	if snap.Coupon != nil {
		applied = snap.Coupon.Code
	}
	if reconcile.CouponChanged(applied, couponCode) {
		if strings.TrimSpace(couponCode) == "" {
			a.RemoveCoupon()
		} else if _, err := a.ApplyCoupon(ctx, couponCode); err != nil {
			return a.Snapshot(), err
		}
	}
	return a.Snapshot(), nil
}

// CalculateTotals derives subtotal and total from items and an optional
// coupon. total = subtotal × (1 − pct/100), rounded to the cent.
func CalculateTotals(items []model.LineItem, coupon *model.Coupon) model.Totals {
	var subtotal model.Cents
	for _, item := range items {
		subtotal += item.UnitPrice() * model.Cents(item.Quantity)
	}
	total := subtotal
	if coupon != nil {
		total = subtotal.Discount(coupon.DiscountPercentage)
	}
	return model.Totals{Subtotal: subtotal, Total: total}
}

// =============================================================================
// INTERNALS
// =============================================================================

// mutate applies fn under the lock. When fn reports a content change the
// version is bumped; totals are recomputed and listeners notified only when
// something visible changed.
func (a *Aggregate) mutate(fn func() bool) Snapshot {
	a.mu.Lock()
	contentChanged := fn()
	if contentChanged {
		a.version++
	}
	totalsChanged := a.recalculateLocked()
	snap := a.snapshotLocked()
	var listeners []func(Snapshot)
	if contentChanged || totalsChanged {
		listeners = append(listeners, a.listeners...)
	}
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return snap
}

// recalculateLocked refreshes cached totals and reports whether they moved.
func (a *Aggregate) recalculateLocked() bool {
	next := CalculateTotals(a.items, a.coupon)
	if next == a.totals {
		return false
	}
	a.totals = next
	return true
}

func (a *Aggregate) snapshotLocked() Snapshot {
	snap := Snapshot{
		Items:   append([]model.LineItem(nil), a.items...),
		Totals:  a.totals,
		Version: a.version,
	}
	if a.coupon != nil {
		c := *a.coupon
		snap.Coupon = &c
	}
	return snap
}

func (a *Aggregate) indexLocked(productID string) int {
	for i, item := range a.items {
		if item.ID == productID {
			return i
		}
	}
	return -1
}

func (a *Aggregate) requireAuth(ctx context.Context) error {
	if a.auth != nil && !a.auth.IsAuthenticated(ctx) {
		return model.ErrLoginRequired
	}
	return nil
}

func (a *Aggregate) mutationError(op string, err error) error {
	if isAuthError(err) {
		return model.ErrLoginRequired
	}
	a.logger.Warn("cart mutation failed", slog.String("op", op), slog.String("error", err.Error()))
	return fmt.Errorf("%s: %w", op, err)
}

func isAuthError(err error) bool {
	return model.StatusOf(err) == http.StatusUnauthorized
}

// dedupe keeps the first occurrence of each product.
func dedupe(items []model.LineItem) []model.LineItem {
	seen := make(map[string]bool, len(items))
	out := make([]model.LineItem, 0, len(items))
	for _, item := range items {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		out = append(out, item)
	}
	return out
}
