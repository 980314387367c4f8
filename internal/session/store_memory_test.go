package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"authgate/pkg/random"
	"authgate/pkg/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	now   time.Time
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) newSession(userID, ip, userAgent string, at time.Time) *Session {
	return &Session{
		ID:           random.String(IDLength),
		UserID:       userID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Remember:     false,
		CreatedAt:    at,
		LastActivity: at,
	}
}

func (s *MemoryStoreSuite) TestCreateReplacing() {
	ctx := context.Background()

	s.Run("reports device replacement", func() {
		first := s.newSession("user-1", "ip", "ua", s.now)
		stats, err := s.store.CreateReplacing(ctx, first)
		s.Require().NoError(err)
		s.False(stats.ReplacedDevice)
		s.Zero(stats.Evicted)

		second := s.newSession("user-1", "ip", "ua", s.now)
		stats, err = s.store.CreateReplacing(ctx, second)
		s.Require().NoError(err)
		s.True(stats.ReplacedDevice)

		_, err = s.store.FindByID(ctx, first.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("concurrent logins never exceed the cap", func() {
		store := NewInMemoryStore()
		const logins = 20

		var wg sync.WaitGroup
		for i := range logins {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sess := s.newSession("user-2", fmt.Sprintf("10.0.0.%d", i), "ua", s.now.Add(time.Duration(i)*time.Second))
				_, err := store.CreateReplacing(ctx, sess)
				s.NoError(err)
			}(i)
		}
		wg.Wait()

		sessions, err := store.ListByUser(ctx, "user-2")
		s.Require().NoError(err)
		s.LessOrEqual(len(sessions), MaxActiveSessions)
	})
}

func (s *MemoryStoreSuite) TestTouchAndDelete() {
	ctx := context.Background()

	sess := s.newSession("user-1", "ip", "ua", s.now)
	_, err := s.store.CreateReplacing(ctx, sess)
	s.Require().NoError(err)

	later := s.now.Add(time.Hour)
	s.Require().NoError(s.store.Touch(ctx, sess.ID, later, "ip2", "ua2"))

	got, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(later, got.LastActivity)
	s.Equal("ip2", got.IPAddress)

	s.Require().NoError(s.store.Delete(ctx, sess.ID))
	s.Require().ErrorIs(s.store.Delete(ctx, sess.ID), sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestDeleteInactiveSince() {
	ctx := context.Background()

	stale := s.newSession("user-1", "ip1", "ua", s.now.Add(-40*24*time.Hour))
	fresh := s.newSession("user-1", "ip2", "ua", s.now)
	_, err := s.store.CreateReplacing(ctx, stale)
	s.Require().NoError(err)
	_, err = s.store.CreateReplacing(ctx, fresh)
	s.Require().NoError(err)

	deleted, err := s.store.DeleteInactiveSince(ctx, s.now.Add(-30*24*time.Hour))
	s.Require().NoError(err)
	s.Equal(1, deleted)

	_, err = s.store.FindByID(ctx, stale.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(ctx, fresh.ID)
	s.Require().NoError(err)
}
