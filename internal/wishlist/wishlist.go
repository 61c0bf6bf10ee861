// Package wishlist mirrors the user's saved products.
package wishlist

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"storefront/internal/model"
)

// Backend is the server side of the wishlist.
type Backend interface {
	GetWishlist(ctx context.Context) ([]model.Product, error)
	AddToWishlist(ctx context.Context, productID string) (*model.Product, error)
	RemoveFromWishlist(ctx context.Context, productID string) error
	ClearWishlist(ctx context.Context) error
}

// List is a server-confirmed copy of the wishlist.
type List struct {
	backend Backend
	logger  *slog.Logger

	mu       sync.RWMutex
	products []model.Product
}

func New(backend Backend, logger *slog.Logger) *List {
	if logger == nil {
		logger = slog.Default()
	}
	return &List{backend: backend, logger: logger}
}

// Load replaces the local list with the server's. On failure the local
// list is emptied.
func (l *List) Load(ctx context.Context) ([]model.Product, error) {
	products, err := l.backend.GetWishlist(ctx)
	if err != nil {
		l.Clear()
		return nil, l.wrap("fetching wishlist", err)
	}
	l.mu.Lock()
	l.products = append([]model.Product(nil), products...)
	l.mu.Unlock()
	return products, nil
}

// Toggle adds product when absent and removes it otherwise. It reports
// whether the product is in the wishlist afterwards.
func (l *List) Toggle(ctx context.Context, product model.Product) (bool, error) {
	if l.Contains(product.ID) {
		return false, l.Remove(ctx, product.ID)
	}
	if err := l.Add(ctx, product); err != nil {
		return false, err
	}
	return true, nil
}

// Add saves product. The server's copy of the product is kept when it
// returns one.
func (l *List) Add(ctx context.Context, product model.Product) error {
	saved, err := l.backend.AddToWishlist(ctx, product.ID)
	if err != nil {
		return l.wrap("adding to wishlist", err)
	}
	if saved == nil || saved.ID == "" {
		saved = &product
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.indexLocked(saved.ID) < 0 {
		l.products = append(l.products, *saved)
	}
	return nil
}

func (l *List) Remove(ctx context.Context, productID string) error {
	if err := l.backend.RemoveFromWishlist(ctx, productID); err != nil {
		return l.wrap("removing from wishlist", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.indexLocked(productID); i >= 0 {
		l.products = append(l.products[:i:i], l.products[i+1:]...)
	}
	return nil
}

// ClearRemote empties the server wishlist, then the local one.
func (l *List) ClearRemote(ctx context.Context) error {
	if err := l.backend.ClearWishlist(ctx); err != nil {
		return l.wrap("clearing wishlist", err)
	}
	l.Clear()
	return nil
}

// Clear empties the local list only.
func (l *List) Clear() {
	l.mu.Lock()
	l.products = nil
	l.mu.Unlock()
}

func (l *List) Contains(productID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexLocked(productID) >= 0
}

// Items returns a copy of the wishlist.
func (l *List) Items() []model.Product {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.Product(nil), l.products...)
}

func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.products)
}

func (l *List) indexLocked(productID string) int {
	for i, p := range l.products {
		if p.ID == productID {
			return i
		}
	}
	return -1
}

func (l *List) wrap(op string, err error) error {
	if model.StatusOf(err) == http.StatusUnauthorized {
		return model.ErrLoginRequired
	}
	l.logger.Warn("wishlist operation failed", slog.String("op", op), slog.String("error", err.Error()))
	return fmt.Errorf("%s: %w", op, err)
}
