// Package session implements the server-side login session lifecycle:
// creation with fixation defense and LRU eviction, lazy idle/absolute expiry,
// and per-device bookkeeping.
package session

import "time"

// Timeouts and caps for the session lifecycle.
const (
	// MaxActiveSessions caps concurrent sessions per user. On overflow the
	// least-recently-active session is evicted, not the oldest-created.
	MaxActiveSessions = 4

	// IdleTimeout invalidates a session after this much inactivity.
	IdleTimeout = 24 * time.Hour

	// AbsoluteTimeout invalidates a session this long after creation
	// regardless of activity.
	AbsoluteTimeout = 7 * 24 * time.Hour

	// IDLength is the length of the random session identifier.
	IDLength = 40
)

// Session is a server-side login session keyed by a high-entropy random ID.
// Creation time, remember flag, and device fingerprint are typed fields, not
// an opaque payload blob, so expiry checks are compile-time checked.
type Session struct {
	ID                string
	UserID            string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	Remember          bool
	CreatedAt         time.Time
	LastActivity      time.Time
}

// IdleExpired reports whether the idle timeout has elapsed at now.
func (s *Session) IdleExpired(now time.Time) bool {
	return now.Sub(s.LastActivity) > IdleTimeout
}

// AbsoluteExpired reports whether the absolute timeout has elapsed at now.
func (s *Session) AbsoluteExpired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > AbsoluteTimeout
}

// Summary is the client-facing view of a session returned by the session
// listing endpoint.
type Summary struct {
	ID              string    `json:"id"`
	IPAddress       string    `json:"ip_address"`
	UserAgent       string    `json:"user_agent"`
	Device          string    `json:"device"`
	Remember        bool      `json:"remember_me"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivity    time.Time `json:"last_activity"`
	IsCurrentDevice bool      `json:"is_current_device"`
}
