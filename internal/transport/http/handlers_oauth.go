package http

import (
	"net/http"

	"authgate/internal/oauth"
	"authgate/internal/platform/middleware"
	dErrors "authgate/pkg/domainerrors"
	"authgate/pkg/requestcontext"
)

// token handles the token endpoint. Parameters arrive form-encoded per the
// OAuth2 spec; JSON bodies are not accepted here.
func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, h.logger, &oauth.ProtocolError{
			Kind: oauth.ErrInvalidRequest, Description: "Malformed request body", Status: http.StatusBadRequest,
		})
		return
	}

	resp, err := h.engine.Token(r.Context(), oauth.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Scope:        r.PostFormValue("scope"),
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) revokeToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, h.logger, &oauth.ProtocolError{
			Kind: oauth.ErrInvalidRequest, Description: "Malformed request body", Status: http.StatusBadRequest,
		})
		return
	}

	err := h.engine.Revoke(r.Context(), oauth.RevokeRequest{
		Token:        r.PostFormValue("token"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondMessage(w, http.StatusOK, "Token revoked successfully")
}

func authorizeRequestFrom(r *http.Request) oauth.AuthorizeRequest {
	query := r.URL.Query()
	return oauth.AuthorizeRequest{
		ClientID:     query.Get("client_id"),
		RedirectURI:  query.Get("redirect_uri"),
		ResponseType: query.Get("response_type"),
		Scope:        query.Get("scope"),
		State:        query.Get("state"),
	}
}

// authorize renders the data behind the consent prompt.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	details, err := h.engine.Authorize(r.Context(), authorizeRequestFrom(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, details)
}

// userinfo returns the profile behind a bearer token carrying the profile
// scope. Client-credentials tokens have no subject and get 403.
func (h *Handler) userinfo(w http.ResponseWriter, r *http.Request) {
	record := middleware.AccessTokenFrom(r.Context())
	if record == nil || record.UserID == "" {
		respondError(w, h.logger, &oauth.ProtocolError{
			Kind:        oauth.ErrInsufficientScope,
			Description: "The token has no user subject",
			Status:      http.StatusForbidden,
		})
		return
	}

	u, err := h.users.FindByID(r.Context(), record.UserID)
	if err != nil {
		respondError(w, h.logger, dErrors.New(dErrors.CodeNotFound, "User not found"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sub":   u.ID,
		"email": u.Email,
		"scope": record.Scope,
	})
}

// approveAuthorize records consent and redirects the browser back to the
// client with either a code or an error, state echoed verbatim.
func (h *Handler) approveAuthorize(w http.ResponseWriter, r *http.Request) {
	userID := requestcontext.UserID(r.Context())
	if userID == "" {
		respondError(w, h.logger, dErrors.New(dErrors.CodeUnauthorized, "Unauthenticated"))
		return
	}

	redirect, err := h.engine.Approve(r.Context(), userID, authorizeRequestFrom(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}
