package api

import (
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"newsroom/internal/errs"
	"newsroom/internal/service"
)

const maxImportBody = 10 << 20

type adminHandler struct {
	responder Responder
	logger    zerolog.Logger
	posts     PostManager
	members   MemberManager
	notifier  Notifier
	now       func() time.Time
}

func newAdminHandler(posts PostManager, members MemberManager, notifier Notifier, logger zerolog.Logger) adminHandler {
	logger = logger.With().Str("handlerName", "adminHandler").Logger()
	return adminHandler{
		responder: NewResponder(logger),
		logger:    logger,
		posts:     posts,
		members:   members,
		notifier:  notifier,
		now:       time.Now,
	}
}

func (h adminHandler) createPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.PostInput
		if err := decodeJSON(w, r, &in); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		post, err := h.posts.Create(r.Context(), in, h.now())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, http.StatusCreated, post)
	}
}

func (h adminHandler) updatePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "postID")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var in service.PostInput
		if err := decodeJSON(w, r, &in); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		post, err := h.posts.Update(r.Context(), id, in, h.now())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, http.StatusOK, post)
	}
}

func (h adminHandler) deletePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "postID")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		if err := h.posts.Delete(r.Context(), id); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h adminHandler) sendNewsletter() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "postID")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		stats, err := h.notifier.Dispatch(r.Context(), id)
		if err != nil {
			if stats != nil {
				h.logger.Warn().Err(err).Int("sent", stats.Sent).Int("unavailable", stats.Unavailable).Msg("newsletter dispatch failed")
			}
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, http.StatusOK, stats)
	}
}

func (h adminHandler) createTag() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.TagInput
		if err := decodeJSON(w, r, &in); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		tag, err := h.posts.CreateTag(r.Context(), in)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, http.StatusCreated, tag)
	}
}

// importMembers accepts either a raw CSV body or a multipart form with the
// CSV in the "file" field.
func (h adminHandler) importMembers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)

		var body io.Reader = r.Body
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if strings.HasPrefix(mediaType, "multipart/") {
			file, _, err := r.FormFile("file")
			if err != nil {
				h.responder.WriteError(w, errs.NewMissingRequiredFieldError("file"))
				return
			}
			defer file.Close()
			body = file
		}

		result, err := h.members.Import(r.Context(), body)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, http.StatusOK, result)
	}
}

type subscriptionRequest struct {
	Unsubscribed *bool `json:"unsubscribed"`
}

func (h adminHandler) setSubscription() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "memberID")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var req subscriptionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if req.Unsubscribed == nil {
			h.responder.WriteError(w, errs.NewMissingRequiredFieldError("unsubscribed"))
			return
		}

		if err := h.members.SetUnsubscribed(r.Context(), id, *req.Unsubscribed); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, http.StatusOK, map[string]any{
			"id":           id,
			"unsubscribed": *req.Unsubscribed,
		})
	}
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.Nil, errs.NewMissingRequiredFieldError(name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.NewInvalidFieldError(name, "must be a UUID")
	}
	return id, nil
}
