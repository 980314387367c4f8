package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"authgate/internal/oauth"
	"authgate/pkg/requestcontext"
)

type accessTokenKey struct{}

// AccessTokenFrom returns the validated access-token record stashed by
// BearerAuth, or nil outside a bearer-authenticated request.
func AccessTokenFrom(ctx context.Context) *oauth.AccessToken {
	record, _ := ctx.Value(accessTokenKey{}).(*oauth.AccessToken)
	return record
}

func contextWithAccessToken(ctx context.Context, record *oauth.AccessToken) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, record)
}

// BearerAuth validates a signed bearer token and its revocation record. A
// valid signature on a revoked or expired record is not enough; the record
// is the authority.
func BearerAuth(engine *oauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || bearer == "" {
				writeProtocolError(w, http.StatusUnauthorized, oauth.ErrInvalidToken, "Bearer token required")
				return
			}

			record, err := engine.ValidateBearer(r.Context(), bearer)
			if err != nil {
				if protoErr, isProto := err.(*oauth.ProtocolError); isProto {
					writeProtocolError(w, protoErr.Status, protoErr.Kind, protoErr.Description)
				} else {
					writeProtocolError(w, http.StatusUnauthorized, oauth.ErrInvalidToken, "The access token has been revoked or expired")
				}
				return
			}

			ctx := r.Context()
			if record.UserID != "" {
				ctx = requestcontext.WithUserID(ctx, record.UserID)
			}
			ctx = contextWithAccessToken(ctx, record)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects bearer requests whose token does not carry the scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			record := AccessTokenFrom(r.Context())
			if record == nil || !hasScope(record.Scope, scope) {
				writeProtocolError(w, http.StatusForbidden, oauth.ErrInsufficientScope, "The token does not have the required scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasScope(granted, wanted string) bool {
	for _, name := range strings.Fields(granted) {
		if name == wanted {
			return true
		}
	}
	return false
}

func writeProtocolError(w http.ResponseWriter, status int, kind, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             kind,
		"error_description": description,
	})
}
