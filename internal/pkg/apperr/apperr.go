// Package apperr defines the error taxonomy of the payment-event pipeline and
// maps it to webhook responses.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	ErrSagaInProgress   = errors.New("fulfillment already in progress for payment")
)

// ConfigurationError reports missing or unusable configuration.
type ConfigurationError struct {
	Keys []string
}

func (e *ConfigurationError) Error() string {
	return "missing configuration: " + strings.Join(e.Keys, ", ")
}

// AuthenticationError wraps a rejected inbound delivery.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error { return ErrInvalidSignature }

// ValidationError lists required event metadata keys that were absent and
// keys whose values could not be used.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing metadata: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid metadata: "+strings.Join(e.Invalid, ", "))
	}
	if len(parts) == 0 {
		return "invalid metadata"
	}
	return strings.Join(parts, "; ")
}

// Code is the error string reported to the provider.
func (e *ValidationError) Code() string {
	if len(e.Missing) == 0 && len(e.Invalid) > 0 {
		return "invalid_metadata"
	}
	return "missing_metadata"
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	Ref    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Ref)
}

// ConflictError marks a recognized duplicate. It is not a failure.
type ConflictError struct {
	ExternalPaymentID string
}

func (e *ConflictError) Error() string {
	return "payment already processed: " + e.ExternalPaymentID
}

// CollaboratorError is a failed outbound call raised by a named saga step.
// Whether it aborts the saga is decided by the step, not the error.
type CollaboratorError struct {
	Step  string
	Fatal bool
	Err   error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// InvariantViolation signals a programming defect, e.g. a retry counter out of range.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Detail
}

// Kind returns a short machine-readable label for err.
func Kind(err error) string {
	var (
		cfgErr    *ConfigurationError
		authErr   *AuthenticationError
		valErr    *ValidationError
		nfErr     *NotFoundError
		conflict  *ConflictError
		collabErr *CollaboratorError
		invErr    *InvariantViolation
	)

	switch {
	case err == nil:
		return ""

	case errors.As(err, &authErr), errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"

	case errors.Is(err, ErrMalformedEvent):
		return "invalid_payload"

	case errors.As(err, &valErr):
		return valErr.Code()

	case errors.As(err, &conflict):
		return "duplicate"

	case errors.Is(err, ErrSagaInProgress):
		return "in_progress"

	case errors.As(err, &nfErr):
		return "not_found"

	case errors.As(err, &cfgErr):
		return "configuration"

	case errors.As(err, &invErr):
		return "invariant_violation"

	case errors.As(err, &collabErr):
		return "collaborator_failed"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

// HTTPStatus maps err to the status returned to the payment provider. Any
// non-2xx makes the provider redeliver the event.
func HTTPStatus(err error) int {
	var (
		authErr  *AuthenticationError
		valErr   *ValidationError
		conflict *ConflictError
	)

	switch {
	case err == nil:
		return http.StatusOK

	case errors.As(err, &authErr), errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrMalformedEvent):
		return http.StatusBadRequest

	case errors.As(err, &valErr), errors.As(err, &conflict):
		return http.StatusOK

	case errors.Is(err, ErrSagaInProgress):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}
