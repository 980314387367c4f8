package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"authgate/pkg/sentinel"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, password_hash, role, password_changed_at,
	failed_login_attempts, last_login_at, two_factor_secret,
	two_factor_confirmed_at, two_factor_enabled, recovery_codes,
	created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.Role, u.PasswordChangedAt,
		u.FailedLoginAttempts, u.LastLoginAt, nullable(u.TwoFactorSecret),
		u.TwoFactorConfirmedAt, u.TwoFactorEnabled, pq.Array(u.RecoveryCodes),
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %q taken: %w", u.Email, sentinel.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (s *PostgresStore) Update(ctx context.Context, u *User) error {
	query := `
		UPDATE users SET
			email = $2, password_hash = $3, role = $4, password_changed_at = $5,
			failed_login_attempts = $6, last_login_at = $7,
			two_factor_secret = $8, two_factor_confirmed_at = $9,
			two_factor_enabled = $10, recovery_codes = $11, updated_at = $12
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.Role, u.PasswordChangedAt,
		u.FailedLoginAttempts, u.LastLoginAt, nullable(u.TwoFactorSecret),
		u.TwoFactorConfirmedAt, u.TwoFactorEnabled, pq.Array(u.RecoveryCodes),
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %q taken: %w", u.Email, sentinel.ErrConflict)
		}
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %q: %w", u.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) IncrementFailedLogins(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET failed_login_attempts = failed_login_attempts + 1
		WHERE id = $1
		RETURNING failed_login_attempts
	`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user %q: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment failed logins: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*User, error) {
	var (
		u      User
		secret sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.PasswordChangedAt,
		&u.FailedLoginAttempts, &u.LastLoginAt, &secret,
		&u.TwoFactorConfirmedAt, &u.TwoFactorEnabled, pq.Array(&u.RecoveryCodes),
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.TwoFactorSecret = secret.String
	return &u, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
