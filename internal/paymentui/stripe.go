package paymentui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/model"
)

const (
	defaultStripeBaseURL = "https://api.stripe.com"
	defaultStripeTimeout = 30 * time.Second
)

// StripeOptions configures a StripeConfirmer.
type StripeOptions struct {
	BaseURL        string
	PublishableKey string
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// StripeConfirmer confirms PaymentIntents client-side with a publishable key,
// the same call the hosted payment element makes.
type StripeConfirmer struct {
	baseURL        string
	publishableKey string
	client         *http.Client
	logger         *slog.Logger
}

func NewStripeConfirmer(opts StripeOptions) *StripeConfirmer {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultStripeBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultStripeTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &StripeConfirmer{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		publishableKey: opts.PublishableKey,
		client:         opts.HTTPClient,
		logger:         opts.Logger,
	}
}

// stripeIntent is the subset of a PaymentIntent the confirm call returns.
type stripeIntent struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	LastPaymentError *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
	NextAction *struct {
		Type          string `json:"type"`
		RedirectToURL *struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
}

type stripeErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Submit calls POST /v1/payment_intents/{id}/confirm.
func (s *StripeConfirmer) Submit(ctx context.Context, req SubmitRequest) Result {
	intentID := IntentID(req.ClientSecret)
	if intentID == "" {
		return Result{Kind: ValidationError, Message: "Payment session is invalid. Please refresh the page."}
	}

	form := url.Values{}
	form.Set("client_secret", req.ClientSecret)
	form.Set("key", s.publishableKey)
	if req.PaymentMethod != "" {
		form.Set("payment_method", req.PaymentMethod)
	}
	if req.ReturnURL != "" {
		form.Set("return_url", req.ReturnURL)
	}

	endpoint := fmt.Sprintf("%s/v1/payment_intents/%s/confirm", s.baseURL, url.PathEscape(intentID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return s.unknown(intentID, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return s.unknown(intentID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return s.unknown(intentID, err)
	}

	if resp.StatusCode >= 400 {
		return s.classifyError(intentID, resp.StatusCode, body)
	}

	var pi stripeIntent
	if err := json.Unmarshal(body, &pi); err != nil {
		return s.unknown(intentID, fmt.Errorf("decoding payment intent: %w", err))
	}
	return intentResult(intentID, pi)
}

func intentResult(intentID string, pi stripeIntent) Result {
	res := Result{PaymentIntentID: intentID, Status: pi.Status}
	if pi.ID != "" {
		res.PaymentIntentID = pi.ID
	}

	switch pi.Status {
	case "succeeded", "processing", "requires_capture":
		res.Kind = OK
	case "requires_action":
		res.Kind = OK
		if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
			res.RedirectURL = pi.NextAction.RedirectToURL.URL
		}
	case "requires_payment_method":
		res.Kind = CardError
		res.Message = "Your payment method was declined."
		if pi.LastPaymentError != nil && pi.LastPaymentError.Message != "" {
			res.Message = pi.LastPaymentError.Message
		}
	case "canceled":
		res.Kind = Conflict
		res.Message = "This payment session is no longer valid."
	default:
		res.Kind = Unknown
		res.Message = model.UnexpectedErrorMessage
	}
	return res
}

func (s *StripeConfirmer) classifyError(intentID string, status int, body []byte) Result {
	var eb stripeErrorBody
	_ = json.Unmarshal(body, &eb)

	res := Result{PaymentIntentID: intentID, Message: eb.Error.Message}
	switch {
	case status == http.StatusConflict || eb.Error.Code == "payment_intent_unexpected_state":
		res.Kind = Conflict
	case eb.Error.Type == "card_error":
		res.Kind = CardError
	case eb.Error.Type == "validation_error":
		res.Kind = ValidationError
	default:
		s.logger.Warn("payment confirmation failed",
			slog.Int("status", status),
			slog.String("type", eb.Error.Type),
			slog.String("code", eb.Error.Code),
		)
		res.Kind = Unknown
		res.Message = model.UnexpectedErrorMessage
	}
	if res.Message == "" {
		res.Message = model.UnexpectedErrorMessage
	}
	return res
}

func (s *StripeConfirmer) unknown(intentID string, err error) Result {
	s.logger.Warn("payment confirmation request failed", slog.String("error", err.Error()))
	return Result{Kind: Unknown, Message: model.UnexpectedErrorMessage, PaymentIntentID: intentID}
}

// Verify StripeConfirmer implements Submitter at compile time.
var _ Submitter = (*StripeConfirmer)(nil)
