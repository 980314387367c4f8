package oauth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"authgate/pkg/sentinel"
)

// PostgresClientStore persists clients and their scopes in PostgreSQL.
type PostgresClientStore struct {
	db *sql.DB
}

func NewPostgresClientStore(db *sql.DB) *PostgresClientStore {
	return &PostgresClientStore{db: db}
}

func (s *PostgresClientStore) Create(ctx context.Context, client *Client) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO oauth_clients (client_id, secret_hash, name, redirect_uri, grant_types, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, client.ClientID, client.SecretHash, client.Name, client.RedirectURI,
		pq.Array(client.GrantTypes), client.CreatedAt)
	if err != nil {
		if isClientUniqueViolation(err) {
			return fmt.Errorf("client %q exists: %w", client.ClientID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create client: %w", err)
	}

	for _, scope := range client.Scopes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO oauth_scopes (client_id, name, description, grant_type, is_default)
			VALUES ($1, $2, $3, $4, $5)
		`, client.ClientID, scope.Name, scope.Description, nullableStr(scope.GrantType), scope.IsDefault)
		if err != nil {
			return fmt.Errorf("create client scope: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

func (s *PostgresClientStore) FindByClientID(ctx context.Context, clientID string) (*Client, error) {
	var client Client
	err := s.db.QueryRowContext(ctx, `
		SELECT client_id, secret_hash, name, redirect_uri, grant_types, created_at
		FROM oauth_clients WHERE client_id = $1
	`, clientID).Scan(&client.ClientID, &client.SecretHash, &client.Name,
		&client.RedirectURI, pq.Array(&client.GrantTypes), &client.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find client: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, grant_type, is_default
		FROM oauth_scopes WHERE client_id = $1 ORDER BY name
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("find client scopes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			scope     Scope
			grantType sql.NullString
		)
		if err := rows.Scan(&scope.Name, &scope.Description, &grantType, &scope.IsDefault); err != nil {
			return nil, fmt.Errorf("scan client scope: %w", err)
		}
		scope.GrantType = grantType.String
		client.Scopes = append(client.Scopes, scope)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find client scopes: %w", err)
	}
	return &client, nil
}

func (s *PostgresClientStore) FindByClientIDAndRedirect(ctx context.Context, clientID, redirectURI string) (*Client, error) {
	client, err := s.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.RedirectURI != redirectURI {
		return nil, fmt.Errorf("client redirect mismatch: %w", sentinel.ErrNotFound)
	}
	return client, nil
}

// PostgresAuthCodeStore persists authorization codes in PostgreSQL.
type PostgresAuthCodeStore struct {
	db *sql.DB
}

func NewPostgresAuthCodeStore(db *sql.DB) *PostgresAuthCodeStore {
	return &PostgresAuthCodeStore{db: db}
}

func (s *PostgresAuthCodeStore) Create(ctx context.Context, code *AuthorizationCode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_auth_codes (code, client_id, user_id, scope, redirect_uri, revoked, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, code.Code, code.ClientID, code.UserID, code.Scope, code.RedirectURI,
		code.Revoked, code.ExpiresAt, code.CreatedAt)
	if err != nil {
		return fmt.Errorf("create auth code: %w", err)
	}
	return nil
}

func (s *PostgresAuthCodeStore) Consume(ctx context.Context, code, clientID, redirectURI string, now time.Time) (*AuthorizationCode, error) {
	// The conditional UPDATE both validates and burns the code in one
	// statement, so concurrent exchanges of the same code race on the row
	// and exactly one wins.
	var record AuthorizationCode
	err := s.db.QueryRowContext(ctx, `
		UPDATE oauth_auth_codes SET revoked = true
		WHERE code = $1 AND client_id = $2 AND redirect_uri = $3
		  AND revoked = false AND expires_at > $4
		RETURNING code, client_id, user_id, scope, redirect_uri, revoked, expires_at, created_at
	`, code, clientID, redirectURI, now).Scan(
		&record.Code, &record.ClientID, &record.UserID, &record.Scope,
		&record.RedirectURI, &record.Revoked, &record.ExpiresAt, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.classifyConsumeFailure(ctx, code, clientID, redirectURI, now)
	}
	if err != nil {
		return nil, fmt.Errorf("consume auth code: %w", err)
	}
	return &record, nil
}

// classifyConsumeFailure reports why the burn matched no row. The losing side
// of a race sees the winner's revoked flag and reports ErrAlreadyUsed.
func (s *PostgresAuthCodeStore) classifyConsumeFailure(ctx context.Context, code, clientID, redirectURI string, now time.Time) error {
	var revoked bool
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT revoked, expires_at FROM oauth_auth_codes
		WHERE code = $1 AND client_id = $2 AND redirect_uri = $3
	`, code, clientID, redirectURI).Scan(&revoked, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("auth code: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("classify auth code: %w", err)
	}
	if revoked {
		return fmt.Errorf("auth code: %w", sentinel.ErrAlreadyUsed)
	}
	if !expiresAt.After(now) {
		return fmt.Errorf("auth code: %w", sentinel.ErrExpired)
	}
	return fmt.Errorf("auth code: %w", sentinel.ErrNotFound)
}

// PostgresAccessTokenStore persists access-token records in PostgreSQL.
type PostgresAccessTokenStore struct {
	db *sql.DB
}

func NewPostgresAccessTokenStore(db *sql.DB) *PostgresAccessTokenStore {
	return &PostgresAccessTokenStore{db: db}
}

const accessTokenColumns = `jti, client_id, user_id, scope, revoked, expires_at, created_at`

func (s *PostgresAccessTokenStore) Create(ctx context.Context, token *AccessToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_access_tokens (`+accessTokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, token.JTI, token.ClientID, nullableStr(token.UserID), token.Scope,
		token.Revoked, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("create access token: %w", err)
	}
	return nil
}

func (s *PostgresAccessTokenStore) FindValid(ctx context.Context, jti string, now time.Time) (*AccessToken, error) {
	return s.findOne(ctx, `
		SELECT `+accessTokenColumns+` FROM oauth_access_tokens
		WHERE jti = $1 AND revoked = false AND expires_at > $2
	`, jti, now)
}

func (s *PostgresAccessTokenStore) FindByJTIAndClient(ctx context.Context, jti, clientID string) (*AccessToken, error) {
	return s.findOne(ctx, `
		SELECT `+accessTokenColumns+` FROM oauth_access_tokens
		WHERE jti = $1 AND client_id = $2
	`, jti, clientID)
}

func (s *PostgresAccessTokenStore) Revoke(ctx context.Context, jti string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE oauth_access_tokens SET revoked = true WHERE jti = $1`, jti)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("access token %q: %w", jti, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresAccessTokenStore) RevokeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE oauth_access_tokens SET revoked = true
		WHERE revoked = false AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("revoke expired access tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke expired access tokens: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresAccessTokenStore) findOne(ctx context.Context, query string, args ...any) (*AccessToken, error) {
	var (
		token  AccessToken
		userID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&token.JTI, &token.ClientID, &userID, &token.Scope,
		&token.Revoked, &token.ExpiresAt, &token.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("access token: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find access token: %w", err)
	}
	token.UserID = userID.String
	return &token, nil
}

// PostgresRefreshTokenStore persists refresh tokens in PostgreSQL.
type PostgresRefreshTokenStore struct {
	db *sql.DB
}

func NewPostgresRefreshTokenStore(db *sql.DB) *PostgresRefreshTokenStore {
	return &PostgresRefreshTokenStore{db: db}
}

const refreshTokenColumns = `id, access_token_jti, revoked, expires_at, created_at`

func (s *PostgresRefreshTokenStore) Create(ctx context.Context, token *RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_refresh_tokens (`+refreshTokenColumns+`)
		VALUES ($1, $2, $3, $4, $5)
	`, token.ID, token.AccessTokenJTI, token.Revoked, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (s *PostgresRefreshTokenStore) Consume(ctx context.Context, id string, now time.Time) (*RefreshToken, error) {
	var token RefreshToken
	err := s.db.QueryRowContext(ctx, `
		UPDATE oauth_refresh_tokens SET revoked = true
		WHERE id = $1 AND revoked = false AND (expires_at IS NULL OR expires_at > $2)
		RETURNING `+refreshTokenColumns+`
	`, id, now).Scan(&token.ID, &token.AccessTokenJTI, &token.Revoked, &token.ExpiresAt, &token.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.classifyConsumeFailure(ctx, id, now)
	}
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return &token, nil
}

func (s *PostgresRefreshTokenStore) classifyConsumeFailure(ctx context.Context, id string, now time.Time) error {
	var revoked bool
	var expiresAt *time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT revoked, expires_at FROM oauth_refresh_tokens WHERE id = $1
	`, id).Scan(&revoked, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("refresh token: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("classify refresh token: %w", err)
	}
	if revoked {
		return fmt.Errorf("refresh token: %w", sentinel.ErrAlreadyUsed)
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return fmt.Errorf("refresh token: %w", sentinel.ErrExpired)
	}
	return fmt.Errorf("refresh token: %w", sentinel.ErrNotFound)
}

func (s *PostgresRefreshTokenStore) FindByAccessTokenJTI(ctx context.Context, jti string) (*RefreshToken, error) {
	var token RefreshToken
	err := s.db.QueryRowContext(ctx, `
		SELECT `+refreshTokenColumns+` FROM oauth_refresh_tokens WHERE access_token_jti = $1
	`, jti).Scan(&token.ID, &token.AccessTokenJTI, &token.Revoked, &token.ExpiresAt, &token.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("refresh token: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &token, nil
}

func (s *PostgresRefreshTokenStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE oauth_refresh_tokens SET revoked = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("refresh token %q: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresRefreshTokenStore) RevokeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE oauth_refresh_tokens SET revoked = true
		WHERE revoked = false AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("revoke expired refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke expired refresh tokens: %w", err)
	}
	return int(affected), nil
}

func nullableStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isClientUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
