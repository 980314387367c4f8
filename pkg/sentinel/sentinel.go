// Package sentinel defines the errors stores return for factual states of a
// resource. Services translate these into domain errors; transport never sees
// them directly.
package sentinel

import "errors"

// Sentinel errors for store boundaries.
//
// These describe facts about a record, not validation failures:
//   - ErrNotFound: the record does not exist
//   - ErrExpired: the record exists but its validity window has passed
//   - ErrAlreadyUsed: a consume-once record (auth code, refresh token) was
//     already consumed
//   - ErrConflict: a uniqueness or concurrency constraint was violated
var (
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrAlreadyUsed = errors.New("already used")
	ErrConflict    = errors.New("conflict")
)
