package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"authgate/pkg/sentinel"
)

// PostgresStore persists sessions in PostgreSQL. CreateReplacing runs inside
// a transaction that takes a per-user advisory lock, so two concurrent logins
// for the same user serialize on the delete-then-insert sequence.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, user_id, ip_address, user_agent, device_fingerprint,
	remember, created_at, last_activity`

func (s *PostgresStore) CreateReplacing(ctx context.Context, sess *Session) (CreateStats, error) {
	var stats CreateStats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin session tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Serialize per user; hashtext keeps the lock key within advisory lock
	// space without a second key column.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sess.UserID); err != nil {
		return stats, fmt.Errorf("acquire session lock: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE user_id = $1 AND ip_address = $2 AND user_agent = $3
	`, sess.UserID, sess.IPAddress, sess.UserAgent)
	if err != nil {
		return stats, fmt.Errorf("delete device session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		stats.ReplacedDevice = true
	}

	res, err = tx.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE id IN (
			SELECT id FROM sessions
			WHERE user_id = $1
			ORDER BY last_activity ASC
			LIMIT GREATEST((SELECT COUNT(*) FROM sessions WHERE user_id = $1) - $2 + 1, 0)
		)
	`, sess.UserID, MaxActiveSessions)
	if err != nil {
		return stats, fmt.Errorf("evict oldest session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		stats.Evicted = int(n)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sess.ID, sess.UserID, sess.IPAddress, sess.UserAgent,
		sess.DeviceFingerprint, sess.Remember, sess.CreatedAt, sess.LastActivity)
	if err != nil {
		return stats, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit session tx: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE id = $1
	`, id).Scan(
		&sess.ID, &sess.UserID, &sess.IPAddress, &sess.UserAgent,
		&sess.DeviceFingerprint, &sess.Remember, &sess.CreatedAt, &sess.LastActivity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1
		ORDER BY last_activity DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(
			&sess.ID, &sess.UserID, &sess.IPAddress, &sess.UserAgent,
			&sess.DeviceFingerprint, &sess.Remember, &sess.CreatedAt, &sess.LastActivity,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Touch(ctx context.Context, id string, now time.Time, ip, userAgent string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET last_activity = $2, ip_address = $3, user_agent = $4
		WHERE id = $1
	`, id, now, ip, userAgent)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_activity < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete inactive sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete inactive sessions: %w", err)
	}
	return int(n), nil
}
