package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authgate/internal/platform/middleware"
	"authgate/internal/ratelimit"
	"authgate/internal/session"
)

// NewRouter assembles the full route table. Middleware order matters: client
// metadata and request time must be in place before rate limiting and
// session validation, which key off both.
func NewRouter(h *Handler, sessions *session.Manager, limiter *ratelimit.Limiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.RequestTime)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logger(h.logger))

	sessionAuth := middleware.SessionAuth(sessions)

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware("login"))
			r.Post("/login", h.login)
			r.Post("/register", h.register)
		})

		r.With(limiter.Middleware("password-reset")).Post("/password/forgot", h.forgotPassword)

		r.Group(func(r chi.Router) {
			r.Use(sessionAuth)
			r.Post("/logout", h.logout)
			r.Post("/password/reset", h.resetPassword)
		})

		r.Route("/2fa", func(r chi.Router) {
			r.Use(sessionAuth)
			r.Use(limiter.Middleware("2fa"))
			r.Post("/enable", h.enableTwoFactor)
			r.Post("/verify", h.verifyTwoFactor)
			r.Post("/disable", h.disableTwoFactor)
			r.Get("/backup-codes", h.backupCodes)
			r.Post("/regenerate-backup-codes", h.regenerateBackupCodes)
		})
	})

	r.Route("/users/me", func(r chi.Router) {
		r.Use(sessionAuth)
		r.Use(limiter.Middleware("api"))
		r.Get("/", h.me)
		r.Put("/", h.updateMe)
		r.Put("/password", h.changePassword)
		r.Get("/sessions", h.listSessions)
		r.Delete("/sessions/{id}", h.terminateSession)
	})

	r.Route("/oauth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware("oauth-token"))
			r.Post("/token", h.token)
			r.Post("/token/revoke", h.revokeToken)
		})

		r.Group(func(r chi.Router) {
			r.Use(sessionAuth)
			r.Get("/authorize", h.authorize)
			r.Post("/authorize", h.approveAuthorize)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(h.engine))
			r.With(middleware.RequireScope("profile")).Get("/userinfo", h.userinfo)
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondMessage(w, http.StatusOK, "ok")
	})

	return r
}
