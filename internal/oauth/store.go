package oauth

import (
	"context"
	"time"
)

// ClientStore persists registered OAuth2 clients.
type ClientStore interface {
	Create(ctx context.Context, client *Client) error
	FindByClientID(ctx context.Context, clientID string) (*Client, error)
	// FindByClientIDAndRedirect matches both identifiers exactly; a miss on
	// either returns sentinel.ErrNotFound.
	FindByClientIDAndRedirect(ctx context.Context, clientID, redirectURI string) (*Client, error)
}

// AuthCodeStore persists authorization codes.
type AuthCodeStore interface {
	Create(ctx context.Context, code *AuthorizationCode) error
	// Consume atomically validates and burns a code. The code must exist,
	// belong to clientID, carry exactly redirectURI, be unrevoked, and be
	// unexpired at now; any miss returns sentinel.ErrNotFound without
	// distinguishing the reason. On success the code is marked revoked so a
	// second Consume of the same code always fails.
	Consume(ctx context.Context, code, clientID, redirectURI string, now time.Time) (*AuthorizationCode, error)
}

// AccessTokenStore persists the revocable records behind signed bearer tokens.
type AccessTokenStore interface {
	Create(ctx context.Context, token *AccessToken) error
	// FindValid returns the record only if it is unrevoked and unexpired at
	// now; otherwise sentinel.ErrNotFound.
	FindValid(ctx context.Context, jti string, now time.Time) (*AccessToken, error)
	FindByJTIAndClient(ctx context.Context, jti, clientID string) (*AccessToken, error)
	Revoke(ctx context.Context, jti string) error
	// RevokeExpired marks all unrevoked records expired at now as revoked and
	// returns how many it touched.
	RevokeExpired(ctx context.Context, now time.Time) (int, error)
}

// RefreshTokenStore persists refresh tokens.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *RefreshToken) error
	// Consume atomically validates and revokes a refresh token. The token
	// must exist, be unrevoked, and be unexpired at now; any miss returns
	// sentinel.ErrNotFound. Marking it revoked in the same step is what makes
	// rotation race-safe: two concurrent refreshes with the same token can
	// never both succeed.
	Consume(ctx context.Context, id string, now time.Time) (*RefreshToken, error)
	FindByAccessTokenJTI(ctx context.Context, jti string) (*RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeExpired(ctx context.Context, now time.Time) (int, error)
}
