// Package token issues and validates the signed bearer tokens used as OAuth2
// access tokens.
package token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	dErrors "authgate/pkg/domainerrors"
)

// signingContext separates the access-token signing key from any other use of
// the master secret. Changing it invalidates all outstanding tokens.
const signingContext = "authgate/oauth-access-token"

// Claims are the token claims the codec produces and validates. The JTI keys
// the persisted access-token record; signature validity alone never makes a
// token usable.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and parses access tokens with an HS256 key derived from the
// deployment master secret.
type Codec struct {
	signingKey []byte
	issuer     string
}

// NewCodec derives the signing key from the master secret via HKDF so the
// master secret itself is never used as key material.
func NewCodec(masterSecret, issuer string) (*Codec, error) {
	reader := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte(signingContext))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return &Codec{signingKey: key, issuer: issuer}, nil
}

// Issue creates a signed token. The subject may be empty for
// client_credentials tokens; the audience is the OAuth client the token was
// issued to. Issued-at and not-before are both set to now.
func (c *Codec) Issue(jti, subject, audience, scope string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			Audience:  []string{audience},
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
	if err != nil {
		// Signing with a symmetric key only fails on encoding bugs.
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and structure of a token and returns its
// claims. It does not consult revocation state; the access-token record keyed
// by the JTI is the authority on whether the token is currently usable.
func (c *Codec) Parse(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return c.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if claims.ID == "" || len(claims.Audience) == 0 {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
