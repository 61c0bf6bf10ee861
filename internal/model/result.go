package model

import (
	"context"
	"errors"
)

// UnexpectedErrorMessage is shown for failures that carry no user-facing text.
const UnexpectedErrorMessage = "An unexpected error occurred."

// Result is the normalized outcome handed to presentation code. Call sites
// branch on these fields only, never on transport error types.
type Result struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Duplicate bool        `json:"duplicate,omitempty"`
	Errors    FieldErrors `json:"errors,omitempty"`
	Data      any         `json:"data,omitempty"`
}

// OK wraps data in a successful Result.
func OK(data any) Result {
	return Result{Success: true, Data: data}
}

// Normalize flattens err into a Result. A nil error is a success; a 409 sets
// Duplicate; field validation errors are carried per field.
func Normalize(err error) Result {
	if err == nil {
		return Result{Success: true}
	}

	var fields FieldErrors
	if errors.As(err, &fields) {
		return Result{Message: fields.Error(), Errors: fields}
	}

	switch {
	case errors.Is(err, ErrLoginRequired):
		return Result{Message: "Please log in to continue"}
	case errors.Is(err, ErrEmptyCart):
		return Result{Message: "Your cart is empty"}
	case errors.Is(err, context.DeadlineExceeded):
		return Result{Message: "The request timed out. Please try again."}
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		res := Result{Message: apiErr.Message, Duplicate: apiErr.StatusCode == 409}
		if apiErr.StatusCode >= 500 || res.Message == "" {
			res.Message = UnexpectedErrorMessage
		}
		return res
	}

	return Result{Message: UnexpectedErrorMessage}
}
