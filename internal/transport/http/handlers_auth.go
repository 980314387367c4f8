package http

import (
	"net/http"
	"time"

	"authgate/internal/platform/middleware"
	dErrors "authgate/pkg/domainerrors"
	"authgate/pkg/requestcontext"
)

const (
	sessionCookieTTL  = 24 * time.Hour
	rememberCookieTTL = 30 * 24 * time.Hour
)

func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string, remember bool) {
	ttl := sessionCookieTTL
	if remember {
		ttl = rememberCookieTTL
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

type loginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	RememberMe    bool   `json:"remember_me"`
	TwoFactorCode string `json:"2fa_code"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, h.logger, dErrors.New(dErrors.CodeValidation, "Email and password are required"))
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password, req.TwoFactorCode, req.RememberMe)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	if result.Requires2FA {
		respondJSON(w, http.StatusOK, map[string]any{
			"requires_2fa": true,
			"message":      result.Message,
		})
		return
	}

	h.setSessionCookie(w, result.Session.ID, req.RememberMe)
	respondJSON(w, http.StatusOK, map[string]any{
		"message":         result.Message,
		"session_id":      result.Session.ID,
		"password_status": result.PasswordStatus,
		"requires_2fa":    false,
	})
}

type registerRequest struct {
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, h.logger, dErrors.New(dErrors.CodeValidation, "Email and password are required"))
		return
	}
	if req.Password != req.PasswordConfirmation {
		respondError(w, h.logger, dErrors.New(dErrors.CodeValidation, "The password confirmation does not match"))
		return
	}

	_, sess, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	// Registration sessions always get the short cookie lifetime.
	h.setSessionCookie(w, sess.ID, false)
	respondJSON(w, http.StatusCreated, map[string]any{
		"message":    "User registered successfully",
		"session_id": sess.ID,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sessionID := requestcontext.SessionID(r.Context())
	if err := h.auth.Logout(r.Context(), sessionID); err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.clearSessionCookie(w)
	respondMessage(w, http.StatusOK, "Logged out successfully")
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondMessage(w, http.StatusOK, "If the email exists in our system, a password reset link will be sent")
}

type resetPasswordRequest struct {
	CurrentPassword      string `json:"current_password"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if req.Password != req.PasswordConfirmation {
		respondError(w, h.logger, dErrors.New(dErrors.CodeValidation, "The password confirmation does not match"))
		return
	}

	if err := h.auth.ResetPassword(r.Context(), u, req.CurrentPassword, req.Password); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondMessage(w, http.StatusOK, "Password has been reset")
}

type changePasswordRequest struct {
	CurrentPassword      string `json:"current_password"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if req.Password != req.PasswordConfirmation {
		respondError(w, h.logger, dErrors.New(dErrors.CodeValidation, "The password confirmation does not match"))
		return
	}

	if err := h.auth.ChangePassword(r.Context(), u, req.CurrentPassword, req.Password); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":         "Password updated successfully",
		"password_status": h.policy.CheckStatus(r.Context(), u),
	})
}
