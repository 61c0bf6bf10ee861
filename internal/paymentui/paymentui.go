// Package paymentui confirms payments against the hosted payment provider and
// reports the outcome as a typed Result.
package paymentui

import (
	"context"
	"strings"
)

// Kind classifies a payment confirmation outcome.
type Kind int

const (
	OK Kind = iota
	// CardError is a decline or card problem. The session stays usable.
	CardError
	// ValidationError is incomplete or malformed payment details.
	ValidationError
	// Conflict means the session was already consumed or has expired.
	Conflict
	Unknown
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case CardError:
		return "card_error"
	case ValidationError:
		return "validation_error"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Result is what a Submitter reports. Message is safe to show the user for
// CardError and ValidationError.
type Result struct {
	Kind            Kind   `json:"kind"`
	Message         string `json:"message,omitempty"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	Status          string `json:"status,omitempty"`
	// RedirectURL is set when the provider needs the buyer to complete an
	// extra step (3-D Secure) before the return URL is reached.
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Recoverable reports whether the same session can be retried.
func (r Result) Recoverable() bool {
	return r.Kind == CardError || r.Kind == ValidationError
}

// SubmitRequest carries what the hosted form would collect.
type SubmitRequest struct {
	ClientSecret  string
	PaymentMethod string
	ReturnURL     string
}

// Submitter confirms a payment session.
type Submitter interface {
	Submit(ctx context.Context, req SubmitRequest) Result
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, req SubmitRequest) Result

func (f SubmitFunc) Submit(ctx context.Context, req SubmitRequest) Result {
	return f(ctx, req)
}

// IntentID extracts "pi_123" from a client secret of the form
// "pi_123_secret_abc". It returns "" for anything else.
func IntentID(clientSecret string) string {
	i := strings.Index(clientSecret, "_secret_")
	if i <= 0 {
		return ""
	}
	return clientSecret[:i]
}
