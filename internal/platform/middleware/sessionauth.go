package middleware

import (
	"encoding/json"
	"net/http"

	"authgate/internal/session"
	dErrors "authgate/pkg/domainerrors"
	"authgate/pkg/requestcontext"
)

// SessionCookie is the name of the session cookie.
const SessionCookie = "session_id"

// SessionAuth resolves the session cookie to a user and rejects requests
// without a live session. Validation advances the session's activity clock,
// so every authenticated request extends the idle window.
func SessionAuth(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				writeAuthError(w, http.StatusUnauthorized, "Unauthenticated")
				return
			}

			sess, err := sessions.Validate(r.Context(), cookie.Value)
			if err != nil {
				writeAuthError(w, dErrors.ToHTTPStatus(dErrors.CodeOf(err)), dErrors.MessageOf(err))
				return
			}

			ctx := requestcontext.WithUserID(r.Context(), sess.UserID)
			ctx = requestcontext.WithSessionID(ctx, sess.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
