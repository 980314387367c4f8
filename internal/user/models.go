// Package user holds the identity record and its stores.
package user

import "time"

// Role gates administrative behavior. The only role-sensitive control in this
// service is the optional 2FA bypass, which is off unless deployment config
// enables it.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the identity record. The password hash is a bcrypt hash and the
// two-factor secret is a TOTP shared secret; neither is ever serialized to
// clients.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	Role                Role
	PasswordChangedAt   *time.Time
	FailedLoginAttempts int
	LastLoginAt         *time.Time

	TwoFactorSecret      string
	TwoFactorConfirmedAt *time.Time
	TwoFactorEnabled     bool
	RecoveryCodes        []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TwoFactorActive reports whether 2FA gates this user's login. Both the
// enabled flag and a confirmation timestamp are required; an enabled but
// unconfirmed secret must not lock the user out.
func (u *User) TwoFactorActive() bool {
	return u.TwoFactorEnabled && u.TwoFactorConfirmedAt != nil
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
