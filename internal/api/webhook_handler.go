package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"newsroom/internal/errs"
)

const maxWebhookBody = 1 << 20

type webhookHandler struct {
	responder Responder
	logger    zerolog.Logger
	verifier  WebhookVerifier
	receiver  DeliveryReceiver
}

func newWebhookHandler(verifier WebhookVerifier, receiver DeliveryReceiver, logger zerolog.Logger) webhookHandler {
	logger = logger.With().Str("handlerName", "webhookHandler").Logger()
	return webhookHandler{
		responder: NewResponder(logger),
		logger:    logger,
		verifier:  verifier,
		receiver:  receiver,
	}
}

// receiveEmailEvent verifies the raw body before anything parses it.
// Verified events are acknowledged with 200 unless storing them failed, in
// which case the 500 asks the provider to redeliver.
func (h webhookHandler) receiveEmailEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				h.responder.WriteError(w, errs.NewMaxBodySizeExceededError(maxErr.Limit))
				return
			}
			h.responder.WriteError(w, errs.NewBadRequestError("unreadable body"))
			return
		}

		event, err := h.verifier.Verify(payload, r.Header)
		if err != nil {
			h.logger.Warn().Err(err).Msg("rejected webhook")
			h.responder.WriteError(w, err)
			return
		}

		outcome, err := h.receiver.Apply(r.Context(), *event)
		if err != nil {
			h.responder.WriteError(w, errs.NewInternalErrorWithCause("event not recorded", err))
			return
		}

		h.responder.WriteJSON(w, http.StatusOK, map[string]any{
			"received": true,
			"outcome":  outcome,
		})
	}
}
