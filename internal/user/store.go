package user

import "context"

// Store is the keyed-lookup interface services depend on. Implementations
// return sentinel.ErrNotFound for missing users and sentinel.ErrConflict for
// email uniqueness violations.
type Store interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error

	// IncrementFailedLogins atomically bumps the counter and returns the new
	// value, so concurrent failed logins cannot lose increments.
	IncrementFailedLogins(ctx context.Context, id string) (int, error)
}
