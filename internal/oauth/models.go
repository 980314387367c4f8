// Package oauth implements the OAuth2 grant engine: client authentication,
// the three grant-type state machines, token issuance and revocation, and the
// user-facing authorize step.
package oauth

import "time"

// Grant types supported by the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
)

// Token and code lifetimes.
const (
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 14 * 24 * time.Hour
	AuthCodeTTL     = 10 * time.Minute

	// Identifier lengths. Refresh tokens are long-lived so they carry more
	// entropy than codes and access-token ids.
	CodeLength         = 40
	AccessTokenIDLen   = 40
	RefreshTokenLength = 100
)

// Client is a registered relying party. Immutable after creation; there is no
// client-management API.
type Client struct {
	ClientID string
	// SecretHash is the hex-encoded sha256 of the client secret. The raw
	// secret is never stored.
	SecretHash  string
	Name        string
	RedirectURI string
	GrantTypes  []string
	Scopes      []Scope
	CreatedAt   time.Time
}

// Scope is a named permission. GrantType restricts the scope to one grant
// type; empty means usable by any grant. Default scopes are auto-granted
// when a request names none.
type Scope struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	GrantType   string `json:"-"`
	IsDefault   bool   `json:"-"`
}

// ScopesFor returns the client's scopes usable with the given grant type.
func (c *Client) ScopesFor(grantType string) []Scope {
	var out []Scope
	for _, scope := range c.Scopes {
		if scope.GrantType == "" || scope.GrantType == grantType {
			out = append(out, scope)
		}
	}
	return out
}

// AllowsScope reports whether name is usable by this client under grantType.
func (c *Client) AllowsScope(name, grantType string) bool {
	for _, scope := range c.ScopesFor(grantType) {
		if scope.Name == name {
			return true
		}
	}
	return false
}

// DefaultScopeString joins the client's default scopes for a grant type into
// a space-delimited scope string.
func (c *Client) DefaultScopeString(grantType string) string {
	var names []string
	for _, scope := range c.ScopesFor(grantType) {
		if scope.IsDefault {
			names = append(names, scope.Name)
		}
	}
	return joinScopes(names)
}

// AuthorizationCode is a single-use credential minted at user approval and
// consumed exactly once at token exchange.
type AuthorizationCode struct {
	Code        string
	ClientID    string
	UserID      string
	Scope       string
	RedirectURI string
	Revoked     bool
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// AccessToken is the revocable database record behind a signed bearer token,
// keyed by the token's JTI. UserID is empty for client_credentials tokens.
type AccessToken struct {
	JTI       string
	ClientID  string
	UserID    string
	Scope     string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RefreshToken pairs 1:1 with the access token it was issued alongside.
// A nil expiry means the token never expires on its own.
type RefreshToken struct {
	ID             string
	AccessTokenJTI string
	Revoked        bool
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// TokenRequest carries the token endpoint's form parameters.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	RefreshToken string
	Scope        string
}

// TokenResponse is the token endpoint's success payload.
type TokenResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// RevokeRequest carries the revocation endpoint's parameters.
type RevokeRequest struct {
	Token        string
	ClientID     string
	ClientSecret string
}

// AuthorizeRequest carries the authorize step's query parameters.
type AuthorizeRequest struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scope        string
	State        string
}

// AuthorizeDetails is returned to render the approval prompt.
type AuthorizeDetails struct {
	Client struct {
		Name        string `json:"name"`
		RedirectURI string `json:"redirect_uri"`
	} `json:"client"`
	Scopes []Scope `json:"scopes"`
}
