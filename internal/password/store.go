package password

import "context"

// HistoryStore persists retained password hashes per user.
type HistoryStore interface {
	Record(ctx context.Context, entry *HistoryEntry) error
	// ListRecent returns up to limit entries, newest first.
	ListRecent(ctx context.Context, userID string, limit int) ([]*HistoryEntry, error)
	// TrimToRecent deletes everything but the newest keep entries.
	TrimToRecent(ctx context.Context, userID string, keep int) error
}
