package oauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"authgate/internal/platform/metrics"
	"authgate/internal/token"
	"authgate/pkg/random"
	"authgate/pkg/requestcontext"
	"authgate/pkg/sentinel"
)

// Engine dispatches token-endpoint requests to the grant-type handlers and
// owns issuance, rotation, and revocation of token pairs.
type Engine struct {
	clients       ClientStore
	codes         AuthCodeStore
	accessTokens  AccessTokenStore
	refreshTokens RefreshTokenStore
	codec         *token.Codec
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// NewEngine constructs the grant engine.
func NewEngine(
	clients ClientStore,
	codes AuthCodeStore,
	accessTokens AccessTokenStore,
	refreshTokens RefreshTokenStore,
	codec *token.Codec,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		clients:       clients,
		codes:         codes,
		accessTokens:  accessTokens,
		refreshTokens: refreshTokens,
		codec:         codec,
		logger:        logger,
		metrics:       m,
	}
}

// HashClientSecret returns the stored form of a client secret.
func HashClientSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Token runs one token-endpoint exchange. Protocol failures come back as
// *ProtocolError; anything else is an internal error.
func (e *Engine) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType == "" || req.ClientID == "" || req.ClientSecret == "" {
		return nil, invalidRequest("grant_type, client_id and client_secret are required")
	}

	client, err := e.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(client.GrantTypes, req.GrantType) {
		return nil, unsupportedGrantType()
	}

	var resp *TokenResponse
	switch req.GrantType {
	case GrantAuthorizationCode:
		resp, err = e.exchangeAuthorizationCode(ctx, client, req)
	case GrantClientCredentials:
		resp, err = e.grantClientCredentials(ctx, client, req)
	case GrantRefreshToken:
		resp, err = e.rotateRefreshToken(ctx, client, req)
	default:
		return nil, unsupportedGrantType()
	}
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.TokensIssued.WithLabelValues(req.GrantType).Inc()
	}
	e.logger.InfoContext(ctx, "access token issued",
		"client_id", client.ClientID,
		"grant_type", req.GrantType,
	)
	return resp, nil
}

func (e *Engine) authenticateClient(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	client, err := e.clients.FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, invalidClient()
		}
		return nil, err
	}
	given := HashClientSecret(clientSecret)
	if subtle.ConstantTimeCompare([]byte(given), []byte(client.SecretHash)) != 1 {
		return nil, invalidClient()
	}
	return client, nil
}

func (e *Engine) exchangeAuthorizationCode(ctx context.Context, client *Client, req TokenRequest) (*TokenResponse, error) {
	if req.Code == "" || req.RedirectURI == "" {
		return nil, invalidRequest("code and redirect_uri are required")
	}
	now := requestcontext.Now(ctx)

	code, err := e.codes.Consume(ctx, req.Code, client.ClientID, req.RedirectURI, now)
	if err != nil {
		if isConsumeRejection(err) {
			// A replayed code is logged distinctly; it can indicate a stolen
			// code being raced against the legitimate client.
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				e.logger.WarnContext(ctx, "authorization code replay rejected", "client_id", client.ClientID)
			}
			return nil, invalidGrant("The authorization code is invalid or expired")
		}
		return nil, err
	}

	return e.issuePair(ctx, client, code.UserID, code.Scope, true)
}

func (e *Engine) grantClientCredentials(ctx context.Context, client *Client, req TokenRequest) (*TokenResponse, error) {
	scope := req.Scope
	if scope == "" {
		scope = client.DefaultScopeString(GrantClientCredentials)
	} else {
		for _, name := range splitScopes(scope) {
			if !client.AllowsScope(name, GrantClientCredentials) {
				return nil, invalidScope("The requested scope is invalid for this client")
			}
		}
	}
	// Machine tokens act for the client itself, so no user subject and no
	// refresh token.
	return e.issuePair(ctx, client, "", scope, false)
}

func (e *Engine) rotateRefreshToken(ctx context.Context, client *Client, req TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, invalidRequest("refresh_token is required")
	}
	now := requestcontext.Now(ctx)

	refresh, err := e.refreshTokens.Consume(ctx, req.RefreshToken, now)
	if err != nil {
		if isConsumeRejection(err) {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				e.logger.WarnContext(ctx, "refresh token replay rejected", "client_id", client.ClientID)
			}
			return nil, invalidGrant("The refresh token is invalid or expired")
		}
		return nil, err
	}

	old, err := e.accessTokens.FindByJTIAndClient(ctx, refresh.AccessTokenJTI, client.ClientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, invalidGrant("The refresh token is invalid or expired")
		}
		return nil, err
	}

	scope := old.Scope
	if req.Scope != "" {
		if !scopeSubset(req.Scope, old.Scope) {
			return nil, invalidScope("The requested scope exceeds the original grant")
		}
		scope = req.Scope
	}

	resp, err := e.issuePair(ctx, client, old.UserID, scope, true)
	if err != nil {
		return nil, err
	}
	if err := e.accessTokens.Revoke(ctx, old.JTI); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		e.logger.WarnContext(ctx, "failed to revoke rotated access token", "error", err)
	}
	return resp, nil
}

// isConsumeRejection reports whether a consume-once store refused the record
// for a reason the protocol collapses into invalid_grant.
func isConsumeRejection(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound) ||
		errors.Is(err, sentinel.ErrAlreadyUsed) ||
		errors.Is(err, sentinel.ErrExpired)
}

// issuePair mints a JTI-keyed access-token record, its signed bearer form,
// and optionally the paired refresh token.
func (e *Engine) issuePair(ctx context.Context, client *Client, userID, scope string, withRefresh bool) (*TokenResponse, error) {
	now := requestcontext.Now(ctx)

	record := &AccessToken{
		JTI:       random.String(AccessTokenIDLen),
		ClientID:  client.ClientID,
		UserID:    userID,
		Scope:     scope,
		ExpiresAt: now.Add(AccessTokenTTL),
		CreatedAt: now,
	}
	if err := e.accessTokens.Create(ctx, record); err != nil {
		return nil, err
	}

	signed, err := e.codec.Issue(record.JTI, userID, client.ClientID, scope, now, AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	resp := &TokenResponse{
		TokenType:   "Bearer",
		ExpiresIn:   int(AccessTokenTTL.Seconds()),
		AccessToken: signed,
		Scope:       scope,
	}

	if withRefresh {
		expiry := now.Add(RefreshTokenTTL)
		refresh := &RefreshToken{
			ID:             random.String(RefreshTokenLength),
			AccessTokenJTI: record.JTI,
			ExpiresAt:      &expiry,
			CreatedAt:      now,
		}
		if err := e.refreshTokens.Create(ctx, refresh); err != nil {
			return nil, err
		}
		resp.RefreshToken = refresh.ID
	}
	return resp, nil
}

// Revoke invalidates an access token and its paired refresh token. The token
// value is the signed bearer token; it resolves to a record through its JTI
// scoped to the authenticated client.
func (e *Engine) Revoke(ctx context.Context, req RevokeRequest) error {
	if req.Token == "" || req.ClientID == "" || req.ClientSecret == "" {
		return invalidRequest("token, client_id and client_secret are required")
	}

	client, err := e.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return err
	}

	claims, err := e.codec.Parse(req.Token)
	if err != nil {
		return invalidToken()
	}
	record, err := e.accessTokens.FindByJTIAndClient(ctx, claims.ID, client.ClientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return invalidToken()
		}
		return err
	}

	if err := e.accessTokens.Revoke(ctx, record.JTI); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	if refresh, err := e.refreshTokens.FindByAccessTokenJTI(ctx, record.JTI); err == nil {
		if err := e.refreshTokens.Revoke(ctx, refresh.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}

	if e.metrics != nil {
		e.metrics.TokensRevoked.Inc()
	}
	e.logger.InfoContext(ctx, "access token revoked", "client_id", client.ClientID)
	return nil
}

// ValidateBearer resolves a signed bearer token to its live record. Both the
// signature and the record must check out; revocation wins over a valid
// signature.
func (e *Engine) ValidateBearer(ctx context.Context, bearer string) (*AccessToken, error) {
	claims, err := e.codec.Parse(bearer)
	if err != nil {
		return nil, err
	}
	record, err := e.accessTokens.FindValid(ctx, claims.ID, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, &ProtocolError{Kind: ErrInvalidToken, Description: "The access token is invalid or revoked", Status: http.StatusUnauthorized}
		}
		return nil, err
	}
	return record, nil
}
