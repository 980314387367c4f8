package password

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresHistoryStore persists password history in PostgreSQL.
type PostgresHistoryStore struct {
	db *sql.DB
}

func NewPostgresHistoryStore(db *sql.DB) *PostgresHistoryStore {
	return &PostgresHistoryStore{db: db}
}

func (s *PostgresHistoryStore) Record(ctx context.Context, entry *HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_history (id, user_id, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, entry.ID, entry.UserID, entry.Hash, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("record password history: %w", err)
	}
	return nil
}

func (s *PostgresHistoryStore) ListRecent(ctx context.Context, userID string, limit int) ([]*HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, password_hash, created_at
		FROM password_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list password history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Hash, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list password history: %w", err)
	}
	return entries, nil
}

func (s *PostgresHistoryStore) TrimToRecent(ctx context.Context, userID string, keep int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM password_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM password_history
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		)
	`, userID, keep)
	if err != nil {
		return fmt.Errorf("trim password history: %w", err)
	}
	return nil
}
