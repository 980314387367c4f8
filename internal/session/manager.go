package session

import (
	"context"
	"errors"
	"log/slog"

	"authgate/internal/platform/metrics"
	dErrors "authgate/pkg/domainerrors"
	"authgate/pkg/random"
	"authgate/pkg/requestcontext"
	"authgate/pkg/sentinel"
)

// Manager owns the session lifecycle. Client ip, user agent, the caller's own
// session id, and the request clock all come from the request context rather
// than ambient globals.
type Manager struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewManager constructs a session Manager.
func NewManager(store Store, logger *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{store: store, logger: logger, metrics: m}
}

// Create establishes a fresh session for the user. The id is fully
// regenerated, never derived from a prior id; combined with the store's
// same-device delete this is the fixation defense.
func (m *Manager) Create(ctx context.Context, userID string, remember bool) (*Session, error) {
	now := requestcontext.Now(ctx)
	ip := requestcontext.ClientIP(ctx)
	userAgent := requestcontext.UserAgent(ctx)

	sess := &Session{
		ID:                random.String(IDLength),
		UserID:            userID,
		IPAddress:         ip,
		UserAgent:         userAgent,
		DeviceFingerprint: Fingerprint(ip, userAgent),
		Remember:          remember,
		CreatedAt:         now,
		LastActivity:      now,
	}

	stats, err := m.store.CreateReplacing(ctx, sess)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}

	if m.metrics != nil {
		m.metrics.SessionsCreated.Inc()
		for range stats.Evicted {
			m.metrics.SessionsEvicted.Inc()
		}
	}
	if stats.Evicted > 0 {
		m.logger.InfoContext(ctx, "session evicted at concurrency cap",
			"user_id", userID,
			"evicted", stats.Evicted,
		)
	}
	return sess, nil
}

// Validate resolves a session id to its owning user id. Invalid reasons are
// checked in order: not found, idle timeout, absolute timeout. Expired rows
// are deleted before returning (lazy expiry). On success the session's
// last-activity, ip, and user agent advance to the current request's values.
func (m *Manager) Validate(ctx context.Context, sessionID string) (*Session, error) {
	now := requestcontext.Now(ctx)

	sess, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "Session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}

	if sess.IdleExpired(now) {
		m.deleteExpired(ctx, sess.ID)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "Session expired due to inactivity")
	}
	if sess.AbsoluteExpired(now) {
		m.deleteExpired(ctx, sess.ID)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "Session expired. Please login again")
	}

	ip := requestcontext.ClientIP(ctx)
	userAgent := requestcontext.UserAgent(ctx)
	if err := m.store.Touch(ctx, sess.ID, now, ip, userAgent); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		// A lost touch only delays idle expiry; the request stays valid.
		m.logger.WarnContext(ctx, "failed to update session activity", "error", err)
	}
	sess.LastActivity = now
	sess.IPAddress = ip
	sess.UserAgent = userAgent
	return sess, nil
}

// Terminate deletes one of the user's other sessions. The session the caller
// is currently using cannot be terminated this way; logout exists for that.
func (m *Manager) Terminate(ctx context.Context, userID, sessionID string) error {
	sess, err := m.store.FindByID(ctx, sessionID)
	if err != nil || sess.UserID != userID {
		// Not-owned collapses into not-found so session ids of other users
		// cannot be probed.
		return dErrors.New(dErrors.CodeNotFound, "Session not found")
	}
	if sessionID == requestcontext.SessionID(ctx) {
		return dErrors.New(dErrors.CodeInvalidOperation, "Cannot terminate current session")
	}
	if err := m.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to terminate session")
	}
	return nil
}

// List returns the user's sessions newest-activity first, flagging the one
// backing the current request.
func (m *Manager) List(ctx context.Context, userID string) ([]Summary, error) {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	current := requestcontext.SessionID(ctx)
	out := make([]Summary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, Summary{
			ID:              sess.ID,
			IPAddress:       sess.IPAddress,
			UserAgent:       sess.UserAgent,
			Device:          DeviceName(sess.UserAgent),
			Remember:        sess.Remember,
			CreatedAt:       sess.CreatedAt,
			LastActivity:    sess.LastActivity,
			IsCurrentDevice: sess.ID == current,
		})
	}
	return out, nil
}

// Logout deletes the caller's own session.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "Session not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete session")
	}
	return nil
}

func (m *Manager) deleteExpired(ctx context.Context, sessionID string) {
	if err := m.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		m.logger.WarnContext(ctx, "failed to delete expired session", "error", err)
	}
}
