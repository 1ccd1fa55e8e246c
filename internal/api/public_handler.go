package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"newsroom/internal/domain"
)

type publicHandler struct {
	responder Responder
	posts     PostManager
}

func newPublicHandler(posts PostManager, logger zerolog.Logger) publicHandler {
	logger = logger.With().Str("handlerName", "publicHandler").Logger()
	return publicHandler{
		responder: NewResponder(logger),
		posts:     posts,
	}
}

type postCollection struct {
	Posts []domain.Post `json:"posts"`
	Total int           `json:"total"`
}

func (h publicHandler) listPosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		posts, err := h.posts.ListPublished(r.Context(), r.URL.Query().Get("tag"))
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if posts == nil {
			posts = []domain.Post{}
		}
		h.responder.WriteJSON(w, http.StatusOK, postCollection{Posts: posts, Total: len(posts)})
	}
}

func (h publicHandler) getPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		post, err := h.posts.Get(r.Context(), chi.URLParam(r, "slug"))
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, http.StatusOK, post)
	}
}

func (h publicHandler) listTags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := h.posts.ListTags(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if tags == nil {
			tags = []domain.Tag{}
		}
		h.responder.WriteJSON(w, http.StatusOK, map[string]any{"tags": tags})
	}
}

func (h publicHandler) healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.responder.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
