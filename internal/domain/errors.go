package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrValidation          = errors.New("validation failed")
	ErrAlreadyNotified     = errors.New("post already sent to members")
	ErrNotifyInProgress    = errors.New("post notification already in progress")
	ErrProviderUnavailable = errors.New("email provider unavailable")
	ErrRecipientRejected   = errors.New("recipient rejected by email provider")

	ErrMissingHeaders   = errors.New("missing webhook signature headers")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrTimestampSkew    = errors.New("webhook timestamp outside tolerance")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
