package storefront

import "sync"

// Client-side routes the app moves between.
const (
	HomePath           = "/"
	CartPath           = "/cart"
	CheckoutPath       = "/checkout"
	PurchaseSuccessURL = "/purchase-success"
)

const maxHistory = 50

// Router tracks the current client-side route. It implements
// apiclient.Navigator.
type Router struct {
	mu      sync.Mutex
	current string
	history []string
}

// NewRouter creates a Router positioned at start.
func NewRouter(start string) *Router {
	if start == "" {
		start = HomePath
	}
	return &Router{current: start, history: []string{start}}
}

// Current returns the current route.
func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Navigate moves to path. Navigating to the current route is a no-op.
func (r *Router) Navigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if path == "" || path == r.current {
		return
	}
	r.current = path
	r.history = append(r.history, path)
	if len(r.history) > maxHistory {
		r.history = r.history[len(r.history)-maxHistory:]
	}
}

// History returns visited routes, oldest first.
func (r *Router) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.history))
	copy(out, r.history)
	return out
}
