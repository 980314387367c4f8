package oauth

import "net/http"

// Protocol error kinds. These travel on the wire as the "error" field of the
// OAuth2 error envelope, never through the application error taxonomy.
const (
	ErrInvalidRequest       = "invalid_request"
	ErrInvalidClient        = "invalid_client"
	ErrInvalidGrant         = "invalid_grant"
	ErrInvalidScope         = "invalid_scope"
	ErrUnsupportedGrantType = "unsupported_grant_type"
	ErrInvalidToken         = "invalid_token"
	ErrInsufficientScope    = "insufficient_scope"
)

// ProtocolError is an OAuth2 wire error. Status is the HTTP status the
// endpoint serves it with; the same kind can carry different statuses in
// different flows (invalid_client is 401 at the token endpoint but 400 at
// authorize, where no client authentication was attempted).
type ProtocolError struct {
	Kind        string `json:"error"`
	Description string `json:"error_description"`
	Status      int    `json:"-"`
}

func (e *ProtocolError) Error() string {
	return e.Kind + ": " + e.Description
}

func invalidRequest(description string) *ProtocolError {
	return &ProtocolError{Kind: ErrInvalidRequest, Description: description, Status: http.StatusBadRequest}
}

func invalidClient() *ProtocolError {
	return &ProtocolError{Kind: ErrInvalidClient, Description: "Client authentication failed", Status: http.StatusUnauthorized}
}

// invalidGrant is deliberately uniform: expired, revoked, replayed, and
// plain-wrong credentials must be indistinguishable to the caller.
func invalidGrant(description string) *ProtocolError {
	return &ProtocolError{Kind: ErrInvalidGrant, Description: description, Status: http.StatusBadRequest}
}

func invalidScope(description string) *ProtocolError {
	return &ProtocolError{Kind: ErrInvalidScope, Description: description, Status: http.StatusBadRequest}
}

func unsupportedGrantType() *ProtocolError {
	return &ProtocolError{Kind: ErrUnsupportedGrantType, Description: "The grant type is not supported", Status: http.StatusBadRequest}
}

func invalidToken() *ProtocolError {
	return &ProtocolError{Kind: ErrInvalidToken, Description: "Token not found", Status: http.StatusNotFound}
}
