package http

import (
	"log/slog"
	"net/http"

	"authgate/internal/auth"
	"authgate/internal/oauth"
	"authgate/internal/password"
	"authgate/internal/session"
	"authgate/internal/twofactor"
	"authgate/internal/user"
	dErrors "authgate/pkg/domainerrors"
	"authgate/pkg/requestcontext"
)

// Handler carries the service dependencies for every route.
type Handler struct {
	auth          *auth.Service
	users         user.Store
	sessions      *session.Manager
	policy        *password.Policy
	twoFactor     *twofactor.Service
	engine        *oauth.Engine
	logger        *slog.Logger
	secureCookies bool
}

// NewHandler constructs the route handler set.
func NewHandler(
	authService *auth.Service,
	users user.Store,
	sessions *session.Manager,
	policy *password.Policy,
	twoFactor *twofactor.Service,
	engine *oauth.Engine,
	logger *slog.Logger,
	secureCookies bool,
) *Handler {
	return &Handler{
		auth:          authService,
		users:         users,
		sessions:      sessions,
		policy:        policy,
		twoFactor:     twoFactor,
		engine:        engine,
		logger:        logger,
		secureCookies: secureCookies,
	}
}

// currentUser loads the session-authenticated user.
func (h *Handler) currentUser(r *http.Request) (*user.User, error) {
	userID := requestcontext.UserID(r.Context())
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "Unauthenticated")
	}
	u, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "Unauthenticated")
	}
	return u, nil
}
