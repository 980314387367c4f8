// Package password enforces the password policy: shape validation, breach
// checking, history, expiry, and account lockout. Pure policy and state
// transitions; the HTTP layer decides how violations are rendered.
package password

import "time"

// Policy constants.
const (
	MinLength         = 8
	HistoryCount      = 5
	MaxFailedAttempts = 5
	ExpiryDays        = 90
	ExpiryWarningDays = 15
)

// HistoryEntry is one retained password hash for a user.
type HistoryEntry struct {
	ID        string
	UserID    string
	Hash      string
	CreatedAt time.Time
}

// State is the coarse password-age classification.
type State string

const (
	StateValid   State = "valid"
	StateWarning State = "warning"
	StateExpired State = "expired"
)

// Status reports a password's age against the expiry policy. DaysLeft is the
// absolute day distance to the expiry boundary regardless of which side of it
// the password is on.
type Status struct {
	Expired  bool  `json:"expired"`
	DaysLeft int   `json:"days_left"`
	State    State `json:"status"`
}
