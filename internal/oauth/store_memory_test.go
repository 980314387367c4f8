package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"authgate/pkg/random"
	"authgate/pkg/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	now time.Time
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *MemoryStoreSuite) newCode() (*InMemoryAuthCodeStore, *AuthorizationCode) {
	store := NewInMemoryAuthCodeStore()
	code := &AuthorizationCode{
		Code:        random.String(CodeLength),
		ClientID:    "client-1",
		UserID:      "user-1",
		Scope:       "profile",
		RedirectURI: "http://localhost:3000/callback",
		ExpiresAt:   s.now.Add(AuthCodeTTL),
		CreatedAt:   s.now,
	}
	s.Require().NoError(store.Create(context.Background(), code))
	return store, code
}

func (s *MemoryStoreSuite) TestAuthCodeConsumeOutcomes() {
	ctx := context.Background()

	s.Run("unknown code", func() {
		store, code := s.newCode()
		_, err := store.Consume(ctx, "no-such-code", code.ClientID, code.RedirectURI, s.now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("client mismatch", func() {
		store, code := s.newCode()
		_, err := store.Consume(ctx, code.Code, "other-client", code.RedirectURI, s.now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("replay", func() {
		store, code := s.newCode()
		_, err := store.Consume(ctx, code.Code, code.ClientID, code.RedirectURI, s.now)
		s.Require().NoError(err)

		_, err = store.Consume(ctx, code.Code, code.ClientID, code.RedirectURI, s.now)
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("expired", func() {
		store, code := s.newCode()
		_, err := store.Consume(ctx, code.Code, code.ClientID, code.RedirectURI, s.now.Add(AuthCodeTTL+time.Second))
		s.ErrorIs(err, sentinel.ErrExpired)
	})
}

func (s *MemoryStoreSuite) TestRefreshTokenConsumeOutcomes() {
	ctx := context.Background()
	store := NewInMemoryRefreshTokenStore()

	expiry := s.now.Add(RefreshTokenTTL)
	token := &RefreshToken{
		ID:             random.String(RefreshTokenLength),
		AccessTokenJTI: random.String(AccessTokenIDLen),
		ExpiresAt:      &expiry,
		CreatedAt:      s.now,
	}
	s.Require().NoError(store.Create(ctx, token))

	_, err := store.Consume(ctx, "no-such-token", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = store.Consume(ctx, token.ID, expiry.Add(time.Second))
	s.ErrorIs(err, sentinel.ErrExpired)

	_, err = store.Consume(ctx, token.ID, s.now)
	s.Require().NoError(err)

	_, err = store.Consume(ctx, token.ID, s.now)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}
