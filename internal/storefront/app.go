// Package storefront assembles the client application: the token store, the
// authenticated request pipeline, and the cart, wishlist, auth, payment and
// confirmation components that sit on top of them.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"

	"storefront/internal/adapter"
	"storefront/internal/apiclient"
	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/config"
	"storefront/internal/confirm"
	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/paymentui"
	"storefront/internal/reconcile"
	"storefront/internal/storeapi"
	"storefront/internal/tokenstore"
	"storefront/internal/transport"
	"storefront/internal/wishlist"
)

const (
	redisKeyPrefix = "storefront:"
	// credentialTTL bounds how long redis keeps credentials and markers.
	credentialTTL = 30 * 24 * time.Hour
)

// Deps are the collaborators an App is assembled from.
type Deps struct {
	Backend   adapter.Storefront
	Tokens    *tokenstore.Store
	Submitter paymentui.Submitter
	Router    *Router
	ReturnURL string
	LoginPath string
	Logger    *slog.Logger
}

// App is the storefront client.
type App struct {
	Backend    adapter.Storefront
	Tokens     *tokenstore.Store
	Router     *Router
	Cart       *cart.Aggregate
	Wishlist   *wishlist.List
	Auth       *auth.Service
	Payment    *payment.Coordinator
	Reconciler *confirm.Reconciler

	loginPath string
	logger    *slog.Logger
	closers   []io.Closer

	mu       sync.Mutex
	checkout *CheckoutView
}

// CheckoutView is the state of an open checkout.
type CheckoutView struct {
	Shipping model.ShippingDetails `json:"shipping"`
	Session  payment.Session       `json:"session"`
	Cart     cart.Snapshot         `json:"cart"`
}

// New builds an App from configuration. Credentials persist in redis when
// configured, otherwise in a file under the data directory; an in-memory
// session layer and the backend's cookies back them up.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	apiURL, err := url.Parse(cfg.APIURL())
	if err != nil {
		return nil, fmt.Errorf("parsing api url: %w", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	var (
		durable tokenstore.Provider
		closers []io.Closer
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		durable = tokenstore.NewRedisProvider(rdb, redisKeyPrefix, credentialTTL)
		closers = append(closers, rdb)
	} else {
		durable = tokenstore.NewFileProvider(cfg.TokenFile())
	}

	tokens := tokenstore.New(logger,
		durable,
		tokenstore.NewMemoryProvider(),
		tokenstore.NewCookieProvider(jar, apiURL),
	)
	router := NewRouter(HomePath)

	api, err := apiclient.New(apiclient.Options{
		BaseURL: cfg.APIURL(),
		Timeout: cfg.RequestTimeout,
		Transport: transport.New(transport.Options{
			Timeout:     cfg.RequestTimeout,
			Fingerprint: cfg.TLSFingerprint,
			Operation:   "storefront",
		}),
		Jar:       jar,
		Tokens:    tokens,
		Navigator: router,
		LoginPath: cfg.LoginPath,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	stripe := paymentui.NewStripeConfirmer(paymentui.StripeOptions{
		BaseURL:        cfg.StripeBaseURL,
		PublishableKey: cfg.StripePublishableKey,
		HTTPClient: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport.New(transport.Options{Timeout: cfg.RequestTimeout, Operation: "stripe"}),
		},
		Logger: logger,
	})

	app := Assemble(Deps{
		Backend:   storeapi.New(api),
		Tokens:    tokens,
		Submitter: stripe,
		Router:    router,
		ReturnURL: cfg.ReturnURL,
		LoginPath: cfg.LoginPath,
		Logger:    logger,
	})
	app.closers = closers

	logger.Info("storefront ready",
		slog.String("api_url", cfg.APIURL()),
		slog.Any("token_providers", tokens.Providers()),
	)
	return app, nil
}

// Assemble wires the domain components over deps.
func Assemble(d Deps) *App {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Router == nil {
		d.Router = NewRouter(HomePath)
	}
	if d.LoginPath == "" {
		d.LoginPath = config.DefaultLoginPath
	}

	a := &App{
		Backend:   d.Backend,
		Tokens:    d.Tokens,
		Router:    d.Router,
		loginPath: d.LoginPath,
		logger:    d.Logger,
	}
	a.Cart = cart.New(d.Backend, d.Tokens, d.Logger.With(slog.String("component", "cart")))
	a.Wishlist = wishlist.New(d.Backend, d.Logger.With(slog.String("component", "wishlist")))
	a.Auth = auth.New(d.Backend, d.Tokens, d.Logger.With(slog.String("component", "auth")))
	a.Payment = payment.New(payment.Options{
		Backend:   d.Backend,
		Cart:      a.Cart,
		Submitter: d.Submitter,
		Artifacts: d.Tokens,
		ReturnURL: d.ReturnURL,
		Logger:    d.Logger.With(slog.String("component", "payment")),
	})
	a.Reconciler = confirm.New(d.Backend, d.Tokens, a.Cart, d.Tokens,
		d.Logger.With(slog.String("component", "confirm")))

	// Signing out, explicitly or after a failed refresh, drops all user state.
	d.Tokens.OnClear(func() {
		a.Cart.Clear()
		a.Wishlist.Clear()
		a.Tokens.Purge(context.Background(), tokenstore.KeyClientSecret, tokenstore.KeyPaymentIntentID)
		a.setCheckout(nil)
	})
	a.Cart.OnChange(func(s cart.Snapshot) {
		if a.inCheckout() {
			a.logger.Debug("cart changed during checkout", slog.Uint64("cart_version", s.Version))
		}
	})
	return a
}

// Close releases connections held by durable storage.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// =============================================================================
// SESSION
// =============================================================================

// Restore resumes a stored session: the profile is fetched and the user's
// cart and wishlist are loaded. It returns nil without error when no
// credential is stored.
func (a *App) Restore(ctx context.Context) (*model.User, error) {
	if !a.Tokens.IsAuthenticated(ctx) {
		return nil, nil
	}
	if info := a.TokenInfo(ctx); info != nil && info.Expired(time.Now()) {
		a.logger.Debug("stored access token expired, expecting refresh",
			slog.Time("expired_at", info.ExpiresAt))
	}
	user, err := a.Auth.CheckAuth(ctx)
	if err != nil {
		return nil, err
	}
	a.loadUserData(ctx)
	return user, nil
}

// TokenInfo decodes the stored access token's claims, or returns nil when
// there is no token or it is not a JWT.
func (a *App) TokenInfo(ctx context.Context) *tokenstore.TokenInfo {
	token := a.Tokens.AccessToken(ctx)
	if token == "" {
		return nil
	}
	info, err := tokenstore.Inspect(token)
	if err != nil {
		return nil
	}
	return &info
}

// Login signs in and loads the user's cart and wishlist.
func (a *App) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := a.Auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.loadUserData(ctx)
	a.Router.Navigate(HomePath)
	return user, nil
}

// Logout signs out. Local state is cleared even when the server call fails.
func (a *App) Logout(ctx context.Context) {
	a.Auth.Logout(ctx)
	a.Router.Navigate(HomePath)
}

// loadUserData fetches cart and wishlist concurrently. Failures leave the
// affected collection empty.
func (a *App) loadUserData(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		_, err := a.Cart.Load(ctx)
		return err
	})
	g.Go(func() error {
		_, err := a.Wishlist.Load(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		a.logger.Warn("loading user data failed", slog.String("error", err.Error()))
	}
}

// =============================================================================
// CART
// =============================================================================

// ToggleCart adds productID to the cart, or removes it when present. The
// catalog entry is fetched for new items so totals carry its price.
func (a *App) ToggleCart(ctx context.Context, productID string) (cart.Action, error) {
	product, err := a.productFor(ctx, productID, a.Cart.Contains(productID))
	if err != nil {
		return "", err
	}
	return a.Cart.Toggle(ctx, product)
}

// ToggleWishlist adds productID to the wishlist, or removes it when present.
// It reports whether the product is in the wishlist afterwards.
func (a *App) ToggleWishlist(ctx context.Context, productID string) (bool, error) {
	product, err := a.productFor(ctx, productID, a.Wishlist.Contains(productID))
	if err != nil {
		return false, err
	}
	return a.Wishlist.Toggle(ctx, product)
}

// productFor resolves the product a toggle acts on. Removals need only the
// id; nothing is fetched without a credential.
func (a *App) productFor(ctx context.Context, productID string, present bool) (model.Product, error) {
	if productID == "" {
		return model.Product{}, model.NewValidationError("product_id", "required")
	}
	if !a.Tokens.IsAuthenticated(ctx) {
		return model.Product{}, model.ErrLoginRequired
	}
	if present {
		return model.Product{ID: productID}, nil
	}
	p, err := a.Backend.Product(ctx, productID)
	if err != nil {
		return model.Product{}, fmt.Errorf("looking up product: %w", err)
	}
	return *p, nil
}

// ReplaceCart makes the server cart match items and coupon.
func (a *App) ReplaceCart(ctx context.Context, items []reconcile.Item, couponCode string) (cart.Snapshot, error) {
	return a.Cart.Replace(ctx, items, couponCode)
}

// =============================================================================
// CHECKOUT
// =============================================================================

// Checkout opens the checkout route: shipping details are validated, cached
// artifacts from earlier flows are dropped, and a payment session is minted
// for the current cart. Any failure returns the user to the cart, except
// payment.ErrSubmitInProgress, which leaves the open checkout untouched.
func (a *App) Checkout(ctx context.Context, details model.ShippingDetails) (payment.Session, error) {
	if err := details.Validate(); err != nil {
		return payment.Session{}, err
	}
	if !a.Tokens.IsAuthenticated(ctx) {
		a.Router.Navigate(a.loginPath)
		return payment.Session{}, model.ErrLoginRequired
	}
	if s := a.Payment.Session(); s.State == payment.Submitting {
		return s, payment.ErrSubmitInProgress
	}
	if a.Cart.Snapshot().Empty() {
		if _, err := a.Cart.Load(ctx); err != nil {
			a.Router.Navigate(CartPath)
			return payment.Session{}, err
		}
	}

	if err := a.Payment.Mount(ctx); err != nil {
		return a.Payment.Session(), err
	}
	a.Router.Navigate(CheckoutPath)
	a.setCheckout(&CheckoutView{Shipping: details})

	s, err := a.Payment.Initialize(ctx)
	if err != nil {
		a.logger.Warn("checkout initialization failed", slog.String("error", err.Error()))
		a.Payment.Unmount(ctx)
		a.setCheckout(nil)
		a.Router.Navigate(CartPath)
		return s, err
	}
	return s, nil
}

// CheckoutState returns the open checkout, or nil.
func (a *App) CheckoutState() *CheckoutView {
	a.mu.Lock()
	if a.checkout == nil {
		a.mu.Unlock()
		return nil
	}
	view := *a.checkout
	a.mu.Unlock()

	view.Session = a.Payment.Session()
	view.Cart = a.Cart.Snapshot()
	return &view
}

// Pay confirms the checkout's payment session with paymentMethod. A cart
// change since the session was minted yields a fresh session first. On
// success the user moves to the purchase success route.
func (a *App) Pay(ctx context.Context, paymentMethod string) (payment.Session, error) {
	if !a.inCheckout() {
		return a.Payment.Session(), payment.ErrNoSession
	}
	if _, err := a.Payment.EnsureCurrent(ctx); err != nil {
		if errors.Is(err, model.ErrEmptyCart) {
			a.LeaveCheckout(ctx)
		}
		return a.Payment.Session(), err
	}

	s, err := a.Payment.Submit(ctx, paymentMethod)
	if err != nil {
		return s, err
	}
	if s.State == payment.Succeeded {
		a.setCheckout(nil)
		target := s.RedirectURL
		if target == "" {
			target = PurchaseSuccessURL + "?payment_intent=" + url.QueryEscape(s.IntentID)
		}
		a.Router.Navigate(target)
	}
	return s, nil
}

// LeaveCheckout closes the checkout route. Payment results that arrive
// afterwards are discarded.
func (a *App) LeaveCheckout(ctx context.Context) {
	a.Payment.Unmount(ctx)
	a.setCheckout(nil)
	a.Router.Navigate(CartPath)
}

// Confirm reconciles a completed payment with the backend on the purchase
// success route.
func (a *App) Confirm(ctx context.Context, kind confirm.Kind, id string) (*confirm.Result, error) {
	a.Router.Navigate(PurchaseSuccessURL)
	res, err := a.Reconciler.Reconcile(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	a.setCheckout(nil)
	return res, nil
}

func (a *App) setCheckout(v *CheckoutView) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkout = v
}

func (a *App) inCheckout() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.checkout != nil
}

// =============================================================================
// CATALOG & MISC
// =============================================================================

// SubmitContact validates form before sending it.
func (a *App) SubmitContact(ctx context.Context, form model.ContactForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	return a.Backend.SubmitContact(ctx, form)
}

// Products lists the catalog filtered by query.
func (a *App) Products(ctx context.Context, query url.Values) ([]model.Product, error) {
	return a.Backend.Products(ctx, query)
}

// Product returns one catalog entry.
func (a *App) Product(ctx context.Context, id string) (*model.Product, error) {
	if id == "" {
		return nil, model.NewValidationError("id", "required")
	}
	return a.Backend.Product(ctx, id)
}

// Orders lists the signed-in user's orders.
func (a *App) Orders(ctx context.Context) ([]model.Order, error) {
	if !a.Tokens.IsAuthenticated(ctx) {
		return nil, model.ErrLoginRequired
	}
	return a.Backend.MyOrders(ctx)
}
