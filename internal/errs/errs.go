package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrBadRequest       = errors.New("malformed request")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("resource not found")
	ErrConflict         = errors.New("resource conflict")
	ErrInternal         = errors.New("internal server error")
	ErrUnavailable      = errors.New("service unavailable")
	ErrMethodNotAllowed = errors.New("method not allowed")

	ErrInvalidField         = errors.New("invalid field")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrMaxBodySizeExceeded  = errors.New("max body size exceeded")
	ErrMissingRequiredField = errors.New("missing required field")
)

// ApiErr is an error carrying the HTTP status it should be reported with.
type ApiErr struct {
	StatusCode int
	err        error
	Details    string
	Field      string
	Cause      error
}

func NewApiErr(statusCode int, message string) *ApiErr {
	return &ApiErr{StatusCode: statusCode, err: errors.New(message)}
}

func (e *ApiErr) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.err.Error(), e.Details)
	}
	return e.err.Error()
}

// GetFullError returns the message followed by the chain of causes.
func (e *ApiErr) GetFullError() string {
	msg := e.Error()
	if e.Cause != nil {
		var inner *ApiErr
		if errors.As(e.Cause, &inner) {
			return fmt.Sprintf("%s -> %s", msg, inner.GetFullError())
		}
		return fmt.Sprintf("%s -> %s", msg, e.Cause.Error())
	}
	return msg
}

func (e *ApiErr) Unwrap() error {
	return e.err
}

func NewBadRequestError(message string) *ApiErr {
	return &ApiErr{StatusCode: http.StatusBadRequest, err: ErrBadRequest, Details: message}
}

func NewUnauthorizedError(message string) *ApiErr {
	return &ApiErr{StatusCode: http.StatusUnauthorized, err: ErrUnauthorized, Details: message}
}

func NewNotFoundError(message string) *ApiErr {
	return &ApiErr{StatusCode: http.StatusNotFound, err: ErrNotFound, Details: message}
}

func NewConflictError(message string) *ApiErr {
	return &ApiErr{StatusCode: http.StatusConflict, err: ErrConflict, Details: message}
}

func NewMethodNotAllowedError(method string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusMethodNotAllowed,
		err:        ErrMethodNotAllowed,
		Details:    fmt.Sprintf("method %s is not supported", method),
	}
}

func NewServiceUnavailableError(message string, cause error) *ApiErr {
	return &ApiErr{StatusCode: http.StatusServiceUnavailable, err: ErrUnavailable, Details: message, Cause: cause}
}

func NewInternalErrorWithCause(message string, cause error) *ApiErr {
	return &ApiErr{StatusCode: http.StatusInternalServerError, err: ErrInternal, Details: message, Cause: cause}
}

func NewInvalidFieldError(fieldName string, reason string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		err:        ErrInvalidField,
		Details:    fmt.Sprintf("Invalid field %s: %s", fieldName, reason),
		Field:      fieldName,
	}
}

func NewMissingRequiredFieldError(fieldName string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		err:        ErrMissingRequiredField,
		Details:    fmt.Sprintf("Missing required field: %s", fieldName),
		Field:      fieldName,
	}
}

func NewInvalidJSONError(cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		err:        ErrInvalidJSON,
		Details:    "Invalid JSON format",
		Cause:      cause,
		Field:      "json",
	}
}

func NewMaxBodySizeExceededError(maxSize int64) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusRequestEntityTooLarge,
		err:        ErrMaxBodySizeExceeded,
		Details:    fmt.Sprintf("Request body size exceeded maximum allowed size of %d bytes", maxSize),
		Field:      "body_size",
	}
}
