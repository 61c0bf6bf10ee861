// Package payment owns the payment session lifecycle for a checkout:
// minting a session secret for the current cart, submitting it once, and
// recovering from consumed or expired sessions.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"storefront/internal/cart"
	"storefront/internal/model"
	"storefront/internal/paymentui"
	"storefront/internal/tokenstore"
)

// State is the payment session state.
type State int

const (
	Uninitialized State = iota
	Pending
	Submitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "uninitialized"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st := Uninitialized; st <= Failed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown payment state %q", text)
}

// Failure qualifies a Failed state. On a Pending session it records why the
// last attempt was refused or why the session replaced an earlier one.
type Failure string

const (
	NoFailure   Failure = ""
	Recoverable Failure = "recoverable"
	Duplicate   Failure = "duplicate"
	Unexpected  Failure = "unexpected"
)

// User-facing notices.
const (
	DuplicateNotice    = "Your previous payment session was already used or expired. We've created a new secure payment session for you. Please try again."
	ReinitFailedNotice = "Failed to generate a new payment session. Please refresh the page or try again later."
	InitFailedMessage  = "Failed to initialize payment"
)

var (
	// ErrSubmitInProgress rejects session requests while a submission is
	// unresolved.
	ErrSubmitInProgress = errors.New("payment submission in progress")
	// ErrNoSession is returned by Submit when there is no usable secret.
	ErrNoSession = errors.New("no usable payment session")
)

// Session is a snapshot of the coordinator state.
type Session struct {
	State        State       `json:"state"`
	ClientSecret string      `json:"client_secret,omitempty"`
	IntentID     string      `json:"payment_intent_id,omitempty"`
	Amount       model.Cents `json:"amount"`
	CartVersion  uint64      `json:"cart_version"`
	Failure      Failure     `json:"failure,omitempty"`
	LastError    string      `json:"last_error,omitempty"`
	Notice       string      `json:"notice,omitempty"`
	RedirectURL  string      `json:"redirect_url,omitempty"`
}

// CanSubmit reports whether the session holds a secret that may be
// confirmed.
func (s Session) CanSubmit() bool {
	if s.ClientSecret == "" {
		return false
	}
	return s.State == Pending || (s.State == Failed && s.Failure != Duplicate)
}

// Backend mints payment sessions.
type Backend interface {
	CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error)
}

// Cart is the view of the cart the coordinator needs.
type Cart interface {
	Snapshot() cart.Snapshot
	Clear()
}

// Artifacts caches session secrets for crash recovery.
type Artifacts interface {
	Put(ctx context.Context, key, value string) error
	Purge(ctx context.Context, keys ...string)
}

// Options configures a Coordinator.
type Options struct {
	Backend   Backend
	Cart      Cart
	Submitter paymentui.Submitter
	Artifacts Artifacts
	ReturnURL string
	Logger    *slog.Logger
}

// Coordinator drives one checkout's payment session. Results of network
// calls that complete after Unmount are discarded.
type Coordinator struct {
	backend   Backend
	cart      Cart
	submitter paymentui.Submitter
	artifacts Artifacts
	returnURL string
	logger    *slog.Logger

	mu         sync.Mutex
	session    Session
	generation uint64
}

func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		backend:   opts.Backend,
		cart:      opts.Cart,
		submitter: opts.Submitter,
		artifacts: opts.Artifacts,
		returnURL: opts.ReturnURL,
		logger:    opts.Logger,
	}
}

// Session returns the current session snapshot.
func (c *Coordinator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Mount starts a checkout flow. Stale cached artifacts from an earlier flow
// are purged. A flow whose submission is unresolved is kept and
// ErrSubmitInProgress returned.
func (c *Coordinator) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.session.State == Submitting {
		c.mu.Unlock()
		return ErrSubmitInProgress
	}
	c.generation++
	c.session = Session{}
	c.mu.Unlock()

	c.purgeArtifacts(ctx)
	return nil
}

// Unmount ends the checkout flow. In-flight results are ignored afterwards.
func (c *Coordinator) Unmount(ctx context.Context) {
	c.reset(ctx)
}

func (c *Coordinator) reset(ctx context.Context) {
	c.purgeArtifacts(ctx)
	c.mu.Lock()
	c.generation++
	c.session = Session{}
	c.mu.Unlock()
}

// Initialize requests a new session secret for the current cart. An empty
// cart yields model.ErrEmptyCart; callers navigate away on any error.
func (c *Coordinator) Initialize(ctx context.Context) (Session, error) {
	c.mu.Lock()
	if c.session.State == Submitting {
		c.mu.Unlock()
		return c.Session(), ErrSubmitInProgress
	}
	gen := c.generation
	c.mu.Unlock()

	return c.initialize(ctx, gen, "")
}

func (c *Coordinator) initialize(ctx context.Context, gen uint64, notice string) (Session, error) {
	snap := c.cart.Snapshot()
	if snap.Empty() {
		if _, err := c.replace(gen, func(s *Session) { *s = Session{} }); err != nil {
			return c.Session(), err
		}
		return c.Session(), model.ErrEmptyCart
	}

	intent, err := c.backend.CreatePaymentIntent(ctx, model.NewPaymentIntentRequest(snap.Items, snap.Coupon))
	if err != nil {
		c.logger.Warn("creating payment session failed", slog.String("error", err.Error()))
		if _, busy := c.replace(gen, func(s *Session) { *s = Session{LastError: InitFailedMessage} }); busy != nil {
			return c.Session(), busy
		}
		return c.Session(), fmt.Errorf("creating payment session: %w", err)
	}

	intentID := intent.PaymentIntentID
	if intentID == "" {
		intentID = paymentui.IntentID(intent.ClientSecret)
	}

	applied, err := c.replace(gen, func(s *Session) {
		*s = Session{
			State:        Pending,
			ClientSecret: intent.ClientSecret,
			IntentID:     intentID,
			Amount:       snap.Totals.Total,
			CartVersion:  snap.Version,
			Notice:       notice,
		}
		if notice != "" {
			s.Failure = Duplicate
		}
	})
	if err != nil {
		c.logger.Warn("discarding payment session minted during submission", slog.String("payment_intent_id", intentID))
		return c.Session(), err
	}
	if !applied {
		return c.Session(), nil
	}
	c.cacheArtifacts(ctx, intent.ClientSecret, intentID)
	c.logger.Info("payment session ready",
		slog.String("payment_intent_id", intentID),
		slog.Uint64("cart_version", snap.Version),
	)
	return c.Session(), nil
}

// EnsureCurrent requests a new session when none exists or the cart has
// changed since the current one was issued.
func (c *Coordinator) EnsureCurrent(ctx context.Context) (Session, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	switch {
	case s.State == Submitting:
		return s, ErrSubmitInProgress
	case s.CanSubmit() && s.CartVersion == c.cart.Snapshot().Version:
		return s, nil
	}
	return c.Initialize(ctx)
}

// Submit confirms the current session with the payment provider and applies
// the typed outcome. A given secret is never submitted concurrently.
func (c *Coordinator) Submit(ctx context.Context, paymentMethod string) (Session, error) {
	c.mu.Lock()
	if c.session.State == Submitting {
		c.mu.Unlock()
		return c.Session(), ErrSubmitInProgress
	}
	if !c.session.CanSubmit() {
		c.mu.Unlock()
		return c.Session(), ErrNoSession
	}
	c.session.State = Submitting
	c.session.LastError = ""
	c.session.Notice = ""
	secret := c.session.ClientSecret
	gen := c.generation
	c.mu.Unlock()

	res := c.submitter.Submit(ctx, paymentui.SubmitRequest{
		ClientSecret:  secret,
		PaymentMethod: paymentMethod,
		ReturnURL:     c.returnURL,
	})

	if res.Kind == paymentui.OK {
		return c.onSubmitSuccess(ctx, gen, res), nil
	}
	return c.onSubmitError(ctx, gen, res), nil
}

// OnSubmitSuccess records a confirmed payment: the cart is cleared and
// cached artifacts are purged. The buyer proceeds to the return URL.
func (c *Coordinator) OnSubmitSuccess(ctx context.Context, res paymentui.Result) Session {
	return c.onSubmitSuccess(ctx, c.currentGeneration(), res)
}

func (c *Coordinator) onSubmitSuccess(ctx context.Context, gen uint64, res paymentui.Result) Session {
	if !c.update(gen, func(s *Session) {
		s.State = Succeeded
		s.Failure = NoFailure
		s.LastError = ""
		s.RedirectURL = res.RedirectURL
		if res.PaymentIntentID != "" {
			s.IntentID = res.PaymentIntentID
		}
	}) {
		return c.Session()
	}
	c.cart.Clear()
	c.purgeArtifacts(ctx)
	c.logger.Info("payment submitted", slog.String("payment_intent_id", c.Session().IntentID))
	return c.Session()
}

// OnSubmitError applies a failed confirmation. A duplicate discards the
// session and mints exactly one replacement. A recoverable failure leaves the
// session pending on the same secret; an unexpected one fails it but keeps
// the secret for a manual retry.
func (c *Coordinator) OnSubmitError(ctx context.Context, res paymentui.Result) Session {
	return c.onSubmitError(ctx, c.currentGeneration(), res)
}

func (c *Coordinator) onSubmitError(ctx context.Context, gen uint64, res paymentui.Result) Session {
	switch {
	case res.Kind == paymentui.Conflict:
		c.logger.Info("payment session already used, replacing", slog.String("payment_intent_id", res.PaymentIntentID))
		c.purgeArtifacts(ctx)
		if !c.update(gen, func(s *Session) { *s = Session{} }) {
			return c.Session()
		}
		if _, err := c.initialize(ctx, gen, DuplicateNotice); err != nil {
			c.update(gen, func(s *Session) {
				*s = Session{State: Failed, Failure: Duplicate, LastError: ReinitFailedNotice}
			})
		}

	case res.Recoverable():
		c.update(gen, func(s *Session) {
			s.State = Pending
			s.Failure = Recoverable
			s.LastError = res.Message
		})

	default:
		c.logger.Error("payment confirmation failed",
			slog.String("kind", res.Kind.String()),
			slog.String("message", res.Message),
		)
		c.update(gen, func(s *Session) {
			s.State = Failed
			s.Failure = Unexpected
			s.LastError = model.UnexpectedErrorMessage
		})
	}
	return c.Session()
}

// =============================================================================
// INTERNALS
// =============================================================================

// update applies fn when gen is still current and reports whether it did.
func (c *Coordinator) update(gen uint64, fn func(*Session)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	fn(&c.session)
	return true
}

// replace is update for session requests: a submission that started after
// the request was issued wins, and ErrSubmitInProgress is returned instead.
func (c *Coordinator) replace(gen uint64, fn func(*Session)) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false, nil
	}
	if c.session.State == Submitting {
		return false, ErrSubmitInProgress
	}
	fn(&c.session)
	return true, nil
}

func (c *Coordinator) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Coordinator) cacheArtifacts(ctx context.Context, secret, intentID string) {
	if c.artifacts == nil {
		return
	}
	if err := c.artifacts.Put(ctx, tokenstore.KeyClientSecret, secret); err != nil {
		c.logger.Warn("caching client secret failed", slog.String("error", err.Error()))
	}
	if intentID == "" {
		return
	}
	if err := c.artifacts.Put(ctx, tokenstore.KeyPaymentIntentID, intentID); err != nil {
		c.logger.Warn("caching payment intent id failed", slog.String("error", err.Error()))
	}
}

func (c *Coordinator) purgeArtifacts(ctx context.Context) {
	if c.artifacts == nil {
		return
	}
	c.artifacts.Purge(ctx, tokenstore.KeyClientSecret, tokenstore.KeyPaymentIntentID)
}
