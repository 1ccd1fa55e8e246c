package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"newsroom/internal/errs"
)

// Dependencies are the services and credentials the router is built from.
type Dependencies struct {
	Publisher Publisher
	Notifier  Notifier
	Receiver  DeliveryReceiver
	Verifier  WebhookVerifier
	Posts     PostManager
	Members   MemberManager

	TriggerSecret      string
	TrustedEnvironment bool
	AdminAPIKey        string
	AutoDispatch       bool

	Logger zerolog.Logger
}

func NewRouter(deps Dependencies) *chi.Mux {
	responder := NewResponder(deps.Logger)

	cron := newCronHandler(deps.Publisher, deps.Notifier, deps.AutoDispatch, deps.Logger)
	webhooks := newWebhookHandler(deps.Verifier, deps.Receiver, deps.Logger)
	admin := newAdminHandler(deps.Posts, deps.Members, deps.Notifier, deps.Logger)
	public := newPublicHandler(deps.Posts, deps.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(deps.Logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		responder.WriteError(w, errs.NewNotFoundError("no route for "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		responder.WriteError(w, errs.NewMethodNotAllowedError(r.Method))
	})

	r.Get("/healthz", public.healthz())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(triggerAuth(deps.TriggerSecret, deps.TrustedEnvironment, responder))
			r.Get("/cron/publish", cron.publishScheduled())
			r.Get("/cron/notify", cron.dispatchPending())
		})

		r.Post("/webhooks/email", webhooks.receiveEmailEvent())

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminAuth(deps.AdminAPIKey, responder))

			r.Post("/posts", admin.createPost())
			r.Put("/posts/{postID}", admin.updatePost())
			r.Delete("/posts/{postID}", admin.deletePost())
			r.Post("/posts/{postID}/newsletter", admin.sendNewsletter())
			r.Post("/tags", admin.createTag())
			r.Post("/members/import", admin.importMembers())
			r.Put("/members/{memberID}/subscription", admin.setSubscription())
		})

		r.Get("/posts", public.listPosts())
		r.Get("/posts/{slug}", public.getPost())
		r.Get("/tags", public.listTags())
	})

	return r
}
