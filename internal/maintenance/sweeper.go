// Package maintenance runs the background cleanup jobs: revoking expired
// OAuth tokens and deleting long-inactive sessions.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"authgate/internal/oauth"
	"authgate/internal/session"
)

const (
	// TokenSweepInterval is how often expired tokens are revoked.
	TokenSweepInterval = 24 * time.Hour
	// SessionSweepInterval is how often stale sessions are purged.
	SessionSweepInterval = 7 * 24 * time.Hour
	// SessionRetention is how long an inactive session row is kept before
	// the purge removes it. Well past the 7-day absolute timeout, so rows
	// stay available for incident review.
	SessionRetention = 30 * 24 * time.Hour
)

// Sweeper owns the periodic cleanup.
type Sweeper struct {
	accessTokens  oauth.AccessTokenStore
	refreshTokens oauth.RefreshTokenStore
	sessions      session.Store
	logger        *slog.Logger

	tokenInterval   time.Duration
	sessionInterval time.Duration
	clock           func() time.Time
}

// NewSweeper constructs a Sweeper with the default intervals.
func NewSweeper(accessTokens oauth.AccessTokenStore, refreshTokens oauth.RefreshTokenStore, sessions session.Store, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		accessTokens:    accessTokens,
		refreshTokens:   refreshTokens,
		sessions:        sessions,
		logger:          logger,
		tokenInterval:   TokenSweepInterval,
		sessionInterval: SessionSweepInterval,
		clock:           time.Now,
	}
}

// WithIntervals overrides the sweep cadence. Test hook.
func (s *Sweeper) WithIntervals(token, sess time.Duration) *Sweeper {
	s.tokenInterval = token
	s.sessionInterval = sess
	return s
}

// WithClock overrides the sweeper's clock. Test hook.
func (s *Sweeper) WithClock(clock func() time.Time) *Sweeper {
	s.clock = clock
	return s
}

// Run blocks until the context is cancelled, sweeping on the configured
// intervals. Both sweeps also run once at startup so a restart never defers
// overdue cleanup by a full interval.
func (s *Sweeper) Run(ctx context.Context) error {
	s.SweepTokens(ctx)
	s.SweepSessions(ctx)

	tokenTicker := time.NewTicker(s.tokenInterval)
	defer tokenTicker.Stop()
	sessionTicker := time.NewTicker(s.sessionInterval)
	defer sessionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tokenTicker.C:
			s.SweepTokens(ctx)
		case <-sessionTicker.C:
			s.SweepSessions(ctx)
		}
	}
}

// SweepTokens marks all expired, still-unrevoked access and refresh tokens
// as revoked.
func (s *Sweeper) SweepTokens(ctx context.Context) {
	now := s.clock()

	accessCount, err := s.accessTokens.RevokeExpired(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to sweep access tokens", "error", err)
	}
	refreshCount, err := s.refreshTokens.RevokeExpired(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to sweep refresh tokens", "error", err)
	}
	if accessCount > 0 || refreshCount > 0 {
		s.logger.InfoContext(ctx, "expired tokens revoked",
			"access_tokens", accessCount,
			"refresh_tokens", refreshCount,
		)
	}
}

// SweepSessions deletes sessions inactive beyond the retention window.
func (s *Sweeper) SweepSessions(ctx context.Context) {
	cutoff := s.clock().Add(-SessionRetention)
	deleted, err := s.sessions.DeleteInactiveSince(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to sweep sessions", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "stale sessions purged", "deleted", deleted)
	}
}
