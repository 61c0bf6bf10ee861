// Package reconcile computes the delta between the server cart and a desired
// cart, so a whole-cart replacement issues only the necessary mutations.
package reconcile

import "strings"

// CartDiff describes the mutations needed to reconcile a cart.
// Apply in order: Remove → Update → Add, so an update never targets an item
// that is about to disappear.
type CartDiff struct {
	ToAdd    []Item   // Products in desired but not current
	ToRemove []string // Product IDs in current but not desired
	ToUpdate []Change // Products in both with different quantities
}

// Item is a product and quantity.
type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Change is a quantity change for an item already in the cart.
type Change struct {
	ProductID   string
	OldQuantity int // informational
	NewQuantity int
}

// IsEmpty returns true if no cart changes are needed.
func (d *CartDiff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 && len(d.ToUpdate) == 0
}

// DiffCart computes the delta between current and desired items, matched by
// product ID. Desired items with a non-positive quantity count as absent.
// Output follows input order: adds and updates in desired order, removes in
// current order.
func DiffCart(current, desired []Item) *CartDiff {
	diff := &CartDiff{}

	currentQty := make(map[string]int, len(current))
	for _, item := range current {
		currentQty[item.ProductID] = item.Quantity
	}

	wanted := make(map[string]bool, len(desired))
	for _, item := range desired {
		if item.Quantity <= 0 || wanted[item.ProductID] {
			continue
		}
		wanted[item.ProductID] = true

		qty, exists := currentQty[item.ProductID]
		switch {
		case !exists:
			diff.ToAdd = append(diff.ToAdd, item)
		case qty != item.Quantity:
			diff.ToUpdate = append(diff.ToUpdate, Change{
				ProductID:   item.ProductID,
				OldQuantity: qty,
				NewQuantity: item.Quantity,
			})
		}
	}

	seen := make(map[string]bool, len(current))
	for _, item := range current {
		if wanted[item.ProductID] || seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true
		diff.ToRemove = append(diff.ToRemove, item.ProductID)
	}

	return diff
}

// CouponChanged reports whether the applied coupon must change to reach
// desired. Codes compare case-insensitively.
func CouponChanged(current, desired string) bool {
	return !strings.EqualFold(strings.TrimSpace(current), strings.TrimSpace(desired))
}
