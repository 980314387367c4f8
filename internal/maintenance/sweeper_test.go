package maintenance

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"authgate/internal/oauth"
	"authgate/internal/session"
	"authgate/pkg/random"
	"authgate/pkg/sentinel"
)

type SweeperSuite struct {
	suite.Suite
	accessTokens  *oauth.InMemoryAccessTokenStore
	refreshTokens *oauth.InMemoryRefreshTokenStore
	sessions      *session.InMemoryStore
	sweeper       *Sweeper
	now           time.Time
}

func (s *SweeperSuite) SetupTest() {
	s.accessTokens = oauth.NewInMemoryAccessTokenStore()
	s.refreshTokens = oauth.NewInMemoryRefreshTokenStore()
	s.sessions = session.NewInMemoryStore()
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.sweeper = NewSweeper(s.accessTokens, s.refreshTokens, s.sessions, slog.New(slog.DiscardHandler)).
		WithClock(func() time.Time { return s.now })
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) TestSweepTokens() {
	ctx := context.Background()

	expired := &oauth.AccessToken{
		JTI:       "expired-jti",
		ClientID:  "client",
		Scope:     "profile",
		ExpiresAt: s.now.Add(-time.Hour),
		CreatedAt: s.now.Add(-2 * time.Hour),
	}
	live := &oauth.AccessToken{
		JTI:       "live-jti",
		ClientID:  "client",
		Scope:     "profile",
		ExpiresAt: s.now.Add(time.Hour),
		CreatedAt: s.now,
	}
	s.Require().NoError(s.accessTokens.Create(ctx, expired))
	s.Require().NoError(s.accessTokens.Create(ctx, live))

	staleExpiry := s.now.Add(-time.Minute)
	s.Require().NoError(s.refreshTokens.Create(ctx, &oauth.RefreshToken{
		ID:             "stale-refresh",
		AccessTokenJTI: "expired-jti",
		ExpiresAt:      &staleExpiry,
		CreatedAt:      s.now.Add(-2 * time.Hour),
	}))

	s.sweeper.SweepTokens(ctx)

	_, err := s.accessTokens.FindValid(ctx, "expired-jti", s.now.Add(-2*time.Hour))
	s.Require().ErrorIs(err, sentinel.ErrNotFound, "swept token must be revoked, not just expired")

	_, err = s.accessTokens.FindValid(ctx, "live-jti", s.now)
	s.Require().NoError(err)

	_, err = s.refreshTokens.Consume(ctx, "stale-refresh", s.now.Add(-2*time.Hour))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SweeperSuite) TestSweepSessions() {
	ctx := context.Background()

	stale := &session.Session{
		ID:           random.String(session.IDLength),
		UserID:       "user-1",
		IPAddress:    "10.0.0.1",
		UserAgent:    "ua",
		CreatedAt:    s.now.Add(-45 * 24 * time.Hour),
		LastActivity: s.now.Add(-31 * 24 * time.Hour),
	}
	recent := &session.Session{
		ID:           random.String(session.IDLength),
		UserID:       "user-1",
		IPAddress:    "10.0.0.2",
		UserAgent:    "ua",
		CreatedAt:    s.now,
		LastActivity: s.now.Add(-2 * 24 * time.Hour),
	}
	_, err := s.sessions.CreateReplacing(ctx, stale)
	s.Require().NoError(err)
	_, err = s.sessions.CreateReplacing(ctx, recent)
	s.Require().NoError(err)

	s.sweeper.SweepSessions(ctx)

	_, err = s.sessions.FindByID(ctx, stale.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.sessions.FindByID(ctx, recent.ID)
	s.Require().NoError(err)
}
