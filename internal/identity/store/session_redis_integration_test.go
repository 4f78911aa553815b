//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veritrail/internal/identity/models"
	"veritrail/internal/identity/store"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
	"veritrail/pkg/testutil/containers"
)

type RedisSessionStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisSessionStore
}

func TestRedisSessionStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisSessionStoreSuite))
}

func (s *RedisSessionStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = store.NewRedisSessionStore(s.redis.Client)
}

func (s *RedisSessionStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisSessionStoreSuite) newSession(userID id.UserID, ttl time.Duration) models.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.Session{
		ID:             id.NewSessionID(),
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
		IPAddress:      "10.0.0.1",
		UserAgent:      "integration-test",
	}
}

func (s *RedisSessionStoreSuite) TestSaveAndFindRoundTrip() {
	ctx := context.Background()
	session := s.newSession(id.NewUserID(), time.Hour)

	s.Require().NoError(s.store.Save(ctx, session))

	found, err := s.store.FindByID(ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(session.UserID, found.UserID)
	s.Equal(session.IPAddress, found.IPAddress)
	s.True(session.ExpiresAt.Equal(found.ExpiresAt))
}

func (s *RedisSessionStoreSuite) TestSaveRejectsAlreadyExpired() {
	ctx := context.Background()
	session := s.newSession(id.NewUserID(), -time.Minute)
	s.True(errors.Is(s.store.Save(ctx, session), sentinel.ErrExpired))
}

func (s *RedisSessionStoreSuite) TestExpiredSessionVanishes() {
	ctx := context.Background()
	session := s.newSession(id.NewUserID(), 500*time.Millisecond)
	s.Require().NoError(s.store.Save(ctx, session))

	s.Require().Eventually(func() bool {
		_, err := s.store.FindByID(ctx, session.ID)
		return errors.Is(err, sentinel.ErrNotFound)
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *RedisSessionStoreSuite) TestTouchUpdatesActivity() {
	ctx := context.Background()
	session := s.newSession(id.NewUserID(), time.Hour)
	s.Require().NoError(s.store.Save(ctx, session))

	later := session.LastActivityAt.Add(10 * time.Minute)
	s.Require().NoError(s.store.Touch(ctx, session.ID, later))

	found, err := s.store.FindByID(ctx, session.ID)
	s.Require().NoError(err)
	s.True(later.Equal(found.LastActivityAt))
}

func (s *RedisSessionStoreSuite) TestListByUserSkipsOtherUsers() {
	ctx := context.Background()
	userID := id.NewUserID()

	mine := s.newSession(userID, time.Hour)
	alsoMine := s.newSession(userID, time.Hour)
	theirs := s.newSession(id.NewUserID(), time.Hour)
	for _, session := range []models.Session{mine, alsoMine, theirs} {
		s.Require().NoError(s.store.Save(ctx, session))
	}

	sessions, err := s.store.ListByUser(ctx, userID)
	s.Require().NoError(err)
	s.Len(sessions, 2)
}

func (s *RedisSessionStoreSuite) TestDeleteRemovesSessionAndIndex() {
	ctx := context.Background()
	userID := id.NewUserID()
	session := s.newSession(userID, time.Hour)
	s.Require().NoError(s.store.Save(ctx, session))

	s.Require().NoError(s.store.Delete(ctx, session.ID))

	_, err := s.store.FindByID(ctx, session.ID)
	s.True(errors.Is(err, sentinel.ErrNotFound))

	sessions, err := s.store.ListByUser(ctx, userID)
	s.Require().NoError(err)
	s.Empty(sessions)

	// Deleting again is a no-op.
	s.Require().NoError(s.store.Delete(ctx, session.ID))
}
