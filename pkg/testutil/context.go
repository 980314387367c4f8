package testutil

import (
	"net/http"
	"time"

	"authgate/pkg/requestcontext"
)

// Authenticated stamps the request context the way the session middleware
// would for a logged-in user.
func Authenticated(req *http.Request, userID, sessionID string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithSessionID(ctx, sessionID)
	return req.WithContext(ctx)
}

// AtTime pins the request clock, matching the request-time middleware.
func AtTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// FromClient stamps client IP and User-Agent metadata on the request context.
func FromClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}
