// Package seed provisions the development OAuth client and its scopes.
package seed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"authgate/internal/oauth"
	"authgate/pkg/sentinel"
)

// DevClient provisions the development client used by local integrations.
// Safe to call on every boot; an already-provisioned client is left alone.
func DevClient(ctx context.Context, clients oauth.ClientStore, logger *slog.Logger) error {
	client := &oauth.Client{
		ClientID:    "test-client",
		SecretHash:  oauth.HashClientSecret("client-secret"),
		Name:        "Test Client",
		RedirectURI: "http://localhost:3000/callback",
		GrantTypes: []string{
			oauth.GrantAuthorizationCode,
			oauth.GrantClientCredentials,
			oauth.GrantRefreshToken,
		},
		Scopes: []oauth.Scope{
			{Name: "profile", Description: "Access user profile information", GrantType: oauth.GrantAuthorizationCode, IsDefault: true},
			{Name: "email", Description: "Access user email", GrantType: oauth.GrantAuthorizationCode, IsDefault: true},
			{Name: "manage_account", Description: "Manage user account settings", GrantType: oauth.GrantAuthorizationCode},
			{Name: "api.read", Description: "Read API resources", GrantType: oauth.GrantClientCredentials, IsDefault: true},
			{Name: "api.write", Description: "Write API resources", GrantType: oauth.GrantClientCredentials},
			{Name: "service.integration", Description: "Service integration access", GrantType: oauth.GrantClientCredentials},
			{Name: "offline_access", Description: "Get refresh token"},
		},
		CreatedAt: time.Now().UTC(),
	}

	err := clients.Create(ctx, client)
	if errors.Is(err, sentinel.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "development oauth client provisioned", "client_id", client.ClientID)
	return nil
}
