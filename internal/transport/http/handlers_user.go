package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	dErrors "authgate/pkg/domainerrors"
	"authgate/pkg/requestcontext"
	"authgate/pkg/sentinel"
)

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":                 u.ID,
			"email":              u.Email,
			"role":               u.Role,
			"two_factor_enabled": u.TwoFactorActive(),
			"last_login_at":      u.LastLoginAt,
			"created_at":         u.CreatedAt,
		},
		"password_status": h.policy.CheckStatus(r.Context(), u),
	})
}

type updateMeRequest struct {
	Email string `json:"email"`
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !govalidator.IsEmail(email) {
		respondError(w, h.logger, dErrors.New(dErrors.CodeValidation, "A valid email is required"))
		return
	}

	u.Email = email
	u.UpdatedAt = requestcontext.Now(r.Context())
	if err := h.users.Update(r.Context(), u); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			respondError(w, h.logger, dErrors.New(dErrors.CodeValidation, "The email has already been taken"))
			return
		}
		respondError(w, h.logger, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user"))
		return
	}
	respondMessage(w, http.StatusOK, "Profile updated successfully")
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.sessions.List(r.Context(), requestcontext.UserID(r.Context()))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

func (h *Handler) terminateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := h.sessions.Terminate(r.Context(), requestcontext.UserID(r.Context()), sessionID); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondMessage(w, http.StatusOK, "Session terminated")
}
