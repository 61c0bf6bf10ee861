package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrPaymentFailed  = errors.New("payment failed")
	ErrUpstreamError  = errors.New("upstream error")
	ErrRateLimited    = errors.New("rate limited")

	// ErrLoginRequired is returned by auth-gated mutations instead of a
	// generic 401 so callers can send the user to the login entry point.
	ErrLoginRequired = errors.New("login required")

	// ErrEmptyCart aborts checkout; the caller navigates away.
	ErrEmptyCart = errors.New("cart is empty")
)

// APIError is a backend or request failure with its HTTP status.
// The sentinel it wraps classifies it for errors.Is.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errorKind is the code and sentinel for a class of statuses.
type errorKind struct {
	code     string
	sentinel error
}

var (
	kindValidation   = errorKind{"VALIDATION_ERROR", ErrInvalidRequest}
	kindUnauthorized = errorKind{"UNAUTHORIZED", ErrUnauthorized}
	kindPayment      = errorKind{"PAYMENT_ERROR", ErrPaymentFailed}
	kindNotFound     = errorKind{"NOT_FOUND", ErrNotFound}
	kindConflict     = errorKind{"CONFLICT", ErrConflict}
	kindRateLimited  = errorKind{"RATE_LIMITED", ErrRateLimited}
	kindUpstream     = errorKind{"UPSTREAM_ERROR", ErrUpstreamError}
)

// statusKinds classifies backend statuses; anything else is upstream.
var statusKinds = map[int]errorKind{
	http.StatusBadRequest:          kindValidation,
	http.StatusUnprocessableEntity: kindValidation,
	http.StatusUnauthorized:        kindUnauthorized,
	http.StatusForbidden:           kindUnauthorized,
	http.StatusPaymentRequired:     kindPayment,
	http.StatusNotFound:            kindNotFound,
	http.StatusConflict:            kindConflict,
	http.StatusTooManyRequests:     kindRateLimited,
}

func newAPIError(kind errorKind, status int, message string) *APIError {
	return &APIError{Code: kind.code, Message: message, StatusCode: status, Err: kind.sentinel}
}

// NewStatusError maps a backend HTTP status and message onto the matching
// APIError. An empty message falls back to the status text.
func NewStatusError(status int, message string) *APIError {
	if message == "" {
		message = http.StatusText(status)
	}
	kind, ok := statusKinds[status]
	if !ok {
		kind = kindUpstream
	}
	return newAPIError(kind, status, message)
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return newAPIError(kindNotFound, http.StatusNotFound, resource+" not found")
}

// NewValidationError creates a 400 error for one invalid field.
func NewValidationError(field, reason string) *APIError {
	return newAPIError(kindValidation, http.StatusBadRequest, fmt.Sprintf("invalid %s: %s", field, reason))
}

func NewUnauthorizedError(reason string) *APIError {
	return newAPIError(kindUnauthorized, http.StatusUnauthorized, reason)
}

// NewConflictError creates a 409 error. The backend uses it for payment
// sessions that were already consumed or have expired.
func NewConflictError(reason string) *APIError {
	return newAPIError(kindConflict, http.StatusConflict, reason)
}

// NewUpstreamError creates a 502 error for a call that never produced a
// backend response (dial, TLS, timeout, unreadable body).
func NewUpstreamError(service string, err error) *APIError {
	e := newAPIError(kindUpstream, http.StatusBadGateway, service+" request failed")
	e.Err = fmt.Errorf("%w: %v", ErrUpstreamError, err)
	return e
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// StatusOf returns the HTTP status carried by err, or 0 when err does not
// wrap an APIError.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
