package apperrors

import (
	"errors"
	"fmt"
)

// ValidationError indicates bad or missing input, e.g. an empty cart at checkout.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NotFoundError indicates a missing tenant, session, order or config.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// AuthError indicates an expired or invalid outbound credential. Raising it
// degrades the tenant's messaging account to status "error".
type AuthError struct {
	TenantID string
	Code     string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credential rejected for tenant %s (code %s): %s", e.TenantID, e.Code, e.Message)
}

// WindowExpiredError means the provider's post-inbound messaging window has
// lapsed. The caller must fall back to a template message, not retry.
type WindowExpiredError struct {
	To string
}

func (e *WindowExpiredError) Error() string {
	return fmt.Sprintf("messaging window expired for %s", e.To)
}

// ProviderError carries an upstream payment/messaging provider failure.
type ProviderError struct {
	Provider   string
	Code       string
	Message    string
	HTTPStatus int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error %s (http %d): %s", e.Provider, e.Code, e.HTTPStatus, e.Message)
}

// OutOfRangeError means an amount falls outside a payment config's bounds.
type OutOfRangeError struct {
	Amount   float64
	Min      float64
	Max      float64
	Currency string
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("amount %.2f %s outside allowed range [%.2f, %.2f]",
		e.Amount, e.Currency, e.Min, e.Max)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

func IsWindowExpired(err error) bool {
	var we *WindowExpiredError
	return errors.As(err, &we)
}

func IsOutOfRange(err error) bool {
	var oe *OutOfRangeError
	return errors.As(err, &oe)
}
