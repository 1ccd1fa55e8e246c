package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type cronHandler struct {
	responder    Responder
	logger       zerolog.Logger
	publisher    Publisher
	notifier     Notifier
	autoDispatch bool
	now          func() time.Time
}

type cronResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

func newCronHandler(publisher Publisher, notifier Notifier, autoDispatch bool, logger zerolog.Logger) cronHandler {
	logger = logger.With().Str("handlerName", "cronHandler").Logger()
	return cronHandler{
		responder:    NewResponder(logger),
		logger:       logger,
		publisher:    publisher,
		notifier:     notifier,
		autoDispatch: autoDispatch,
		now:          time.Now,
	}
}

func (h cronHandler) publishScheduled() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := h.publisher.PublishDue(r.Context(), h.now())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		h.responder.WriteJSON(w, http.StatusOK, cronResponse{
			Success: true,
			Message: "scheduled posts published",
			Count:   result.Count,
		})
	}
}

func (h cronHandler) dispatchPending() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.autoDispatch {
			h.responder.WriteJSON(w, http.StatusOK, cronResponse{
				Success: true,
				Message: "automatic newsletter dispatch is disabled",
			})
			return
		}

		results, err := h.notifier.DispatchPending(r.Context())
		if err != nil {
			h.logger.Error().Err(err).Int("dispatched", len(results)).Msg("pending dispatch incomplete")
			h.responder.WriteJSON(w, http.StatusInternalServerError, map[string]any{
				"success": false,
				"message": "some newsletters could not be sent",
				"count":   len(results),
				"results": results,
			})
			return
		}

		h.responder.WriteJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "pending newsletters sent",
			"count":   len(results),
			"results": results,
		})
	}
}
