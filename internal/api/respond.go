package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/errs"
)

type Responder struct {
	logger zerolog.Logger
}

func NewResponder(logger zerolog.Logger) Responder {
	return Responder{logger}
}

func (r Responder) WriteJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		r.logger.Error().Err(err).Msg("error marshaling response data")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		r.logger.Error().Err(err).Msg("error writing response")
	}
}

func (r Responder) WriteError(w http.ResponseWriter, err error) {
	apiErr := toApiErr(err)

	if apiErr.StatusCode >= http.StatusInternalServerError {
		r.logger.Error().Str("error", apiErr.GetFullError()).Msg("request failed")
	}

	response := map[string]any{
		"success": false,
		"message": apiErr.Error(),
		"error":   apiErr.Error(),
	}
	if apiErr.Field != "" {
		response["field"] = apiErr.Field
	}

	r.WriteJSON(w, apiErr.StatusCode, response)
}

// toApiErr maps service errors onto HTTP errors. Unknown errors become 500s
// whose cause is logged but not returned to the client.
func toApiErr(err error) *errs.ApiErr {
	var apiErr *errs.ApiErr
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		if verr.Field == "" {
			return errs.NewBadRequestError(verr.Reason)
		}
		return errs.NewInvalidFieldError(verr.Field, verr.Reason)
	case errors.Is(err, domain.ErrNotFound):
		return errs.NewNotFoundError(err.Error())
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrAlreadyNotified),
		errors.Is(err, domain.ErrNotifyInProgress):
		return errs.NewConflictError(err.Error())
	case errors.Is(err, domain.ErrProviderUnavailable):
		return errs.NewServiceUnavailableError("email provider unavailable", err)
	case errors.Is(err, domain.ErrMissingHeaders):
		return errs.NewBadRequestError(err.Error())
	case errors.Is(err, domain.ErrInvalidSignature), errors.Is(err, domain.ErrTimestampSkew):
		return errs.NewUnauthorizedError(err.Error())
	}
	return errs.NewInternalErrorWithCause("unexpected error", err)
}

const maxJSONBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errs.NewMaxBodySizeExceededError(maxErr.Limit)
		}
		return errs.NewInvalidJSONError(err)
	}
	return nil
}
