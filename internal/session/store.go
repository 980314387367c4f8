package session

import (
	"context"
	"time"
)

// CreateStats reports what CreateReplacing removed alongside the insert.
type CreateStats struct {
	// ReplacedDevice is true when a prior session for the same
	// (user, ip, user agent) tuple was deleted.
	ReplacedDevice bool
	// Evicted counts sessions removed by the concurrency cap.
	Evicted int
}

// Store persists sessions. Implementations return sentinel.ErrNotFound for
// missing sessions. CreateReplacing must be atomic with respect to other
// CreateReplacing calls for the same user so two concurrent logins cannot
// jointly exceed the session cap.
type Store interface {
	// CreateReplacing runs the fixation-defense and eviction sequence as one
	// unit: delete any session matching (user, ip, user agent), evict the
	// least-recently-active session if the user is still at the cap, then
	// insert the new session.
	CreateReplacing(ctx context.Context, sess *Session) (CreateStats, error)

	FindByID(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]*Session, error)

	// Touch updates last-activity plus the request's ip and user agent.
	Touch(ctx context.Context, id string, now time.Time, ip, userAgent string) error

	// DeleteInactiveSince removes sessions whose last activity is older than
	// the cutoff. Used by the maintenance sweeper only; lazy expiry does not
	// depend on it.
	DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int, error)
}
