// Package confirm reconciles a completed payment with the backend exactly
// once per session identifier, guarded by a persisted marker.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"storefront/internal/model"
	"storefront/internal/storeapi"
	"storefront/internal/tokenstore"
)

// Kind selects the backend confirmation endpoint.
type Kind string

const (
	// CheckoutSession confirms a hosted checkout session id.
	CheckoutSession Kind = "session"
	// PaymentIntent looks up the order created for a payment intent.
	PaymentIntent Kind = "payment-intent"
	// IntentRecord asks the backend to record a succeeded payment intent.
	IntentRecord Kind = "intent-record"
)

// ParseKind validates a kind from a URL or flag.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case CheckoutSession, PaymentIntent, IntentRecord:
		return k, nil
	}
	return "", model.NewValidationError("kind", fmt.Sprintf("unknown confirmation kind %q", s))
}

// MarkerPrefix namespaces idempotency markers in the marker store.
const MarkerPrefix = "order_success_"

// MarkerKey returns the marker key for id.
func MarkerKey(id string) string {
	return MarkerPrefix + id
}

// Backend is the order confirmation surface of the storefront API.
type Backend interface {
	CheckoutSuccess(ctx context.Context, sessionID string) (*storeapi.Confirmation, error)
	OrderForPaymentIntent(ctx context.Context, paymentIntentID string) (*storeapi.Confirmation, error)
	PaymentIntentSuccess(ctx context.Context, paymentIntentID string) (*storeapi.Confirmation, error)
}

// MarkerStore persists idempotency markers across restarts.
type MarkerStore interface {
	Lookup(ctx context.Context, key string) string
	Put(ctx context.Context, key, value string) error
}

// Cart is cleared after a confirmed order.
type Cart interface {
	Clear()
}

// Artifacts holds cached payment session data to discard.
type Artifacts interface {
	Purge(ctx context.Context, keys ...string)
}

// Result describes a reconciliation.
type Result struct {
	Kind             Kind         `json:"kind"`
	ID               string       `json:"id"`
	Order            *model.Order `json:"order,omitempty"`
	User             *model.User  `json:"user,omitempty"`
	Message          string       `json:"message,omitempty"`
	AlreadyConfirmed bool         `json:"already_confirmed"`
}

// Reconciler confirms orders. Concurrent calls for the same id share one
// backend call.
type Reconciler struct {
	backend   Backend
	markers   MarkerStore
	cart      Cart
	artifacts Artifacts
	logger    *slog.Logger
	group     singleflight.Group
}

func New(backend Backend, markers MarkerStore, cart Cart, artifacts Artifacts, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		backend:   backend,
		markers:   markers,
		cart:      cart,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Confirmed reports whether id already carries a marker.
func (r *Reconciler) Confirmed(ctx context.Context, id string) bool {
	return r.markers.Lookup(ctx, MarkerKey(id)) != ""
}

// Reconcile confirms id with the backend unless a marker shows it was
// already confirmed. Cached payment artifacts are purged either way.
func (r *Reconciler) Reconcile(ctx context.Context, kind Kind, id string) (*Result, error) {
	if id == "" {
		return nil, model.NewValidationError("id", "confirmation id is required")
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}

	r.purge(ctx)
	defer r.purge(ctx)

	if r.Confirmed(ctx, id) {
		return &Result{Kind: kind, ID: id, AlreadyConfirmed: true}, nil
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		// A flight that finished just before this one started has already
		// written the marker.
		if r.Confirmed(ctx, id) {
			return &Result{Kind: kind, ID: id, AlreadyConfirmed: true}, nil
		}
		return r.confirm(ctx, kind, id)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*Result)
	return &res, nil
}

func (r *Reconciler) confirm(ctx context.Context, kind Kind, id string) (*Result, error) {
	var (
		conf *storeapi.Confirmation
		err  error
	)
	switch kind {
	case CheckoutSession:
		conf, err = r.backend.CheckoutSuccess(ctx, id)
	case PaymentIntent:
		conf, err = r.backend.OrderForPaymentIntent(ctx, id)
	case IntentRecord:
		conf, err = r.backend.PaymentIntentSuccess(ctx, id)
	}

	res := &Result{Kind: kind, ID: id}
	switch {
	case err == nil:
		res.Order = conf.Order
		res.User = conf.User
		res.Message = conf.Message
	case model.StatusOf(err) == http.StatusConflict:
		// The backend already holds an order for this id.
		res.AlreadyConfirmed = true
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			res.Message = apiErr.Message
		}
	default:
		r.logger.Warn("order confirmation failed",
			slog.String("kind", string(kind)),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("confirming order: %w", err)
	}

	if err := r.markers.Put(ctx, MarkerKey(id), "1"); err != nil {
		r.logger.Warn("writing confirmation marker failed", slog.String("id", id), slog.String("error", err.Error()))
	}
	if r.cart != nil {
		r.cart.Clear()
	}
	r.logger.Info("order confirmed",
		slog.String("kind", string(kind)),
		slog.String("id", id),
		slog.Bool("already_confirmed", res.AlreadyConfirmed),
	)
	return res, nil
}

func (r *Reconciler) purge(ctx context.Context) {
	if r.artifacts != nil {
		r.artifacts.Purge(ctx, tokenstore.KeyClientSecret, tokenstore.KeyPaymentIntentID)
	}
}
