package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"veritrail/internal/identity/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix  = "vt:session:"
	userIndexPrefix   = "vt:user-sessions:"
	sessionIndexSlack = time.Hour
)

// RedisSessionStore keeps sessions in Redis with TTL-based expiry. This is
// the recommended implementation for multi-instance deployments where
// session state must be shared and expired sessions should vanish without a
// cleanup job.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(sessionID id.SessionID) string {
	return sessionKeyPrefix + sessionID.String()
}

func userIndexKey(userID id.UserID) string {
	return userIndexPrefix + userID.String()
}

func (s *RedisSessionStore) Save(ctx context.Context, session models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return sentinel.ErrExpired
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, sessionKey(session.ID), payload, ttl)
	pipe.SAdd(ctx, userIndexKey(session.UserID), session.ID.String())
	// Index outlives the session slightly so stale members get cleaned on
	// the next ListByUser rather than lingering forever.
	pipe.Expire(ctx, userIndexKey(session.UserID), ttl+sessionIndexSlack)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) FindByID(ctx context.Context, sessionID id.SessionID) (models.Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Session{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("find session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return models.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

func (s *RedisSessionStore) Touch(ctx context.Context, sessionID id.SessionID, at time.Time) error {
	session, err := s.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	session.LastActivityAt = at
	return s.Save(ctx, session)
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID id.SessionID) error {
	session, err := s.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, sessionKey(sessionID))
	pipe.SRem(ctx, userIndexKey(session.UserID), sessionID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) ListByUser(ctx context.Context, userID id.UserID) ([]models.Session, error) {
	members, err := s.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}

	var out []models.Session
	var stale []any
	for _, member := range members {
		sessionID, err := id.ParseSessionID(member)
		if err != nil {
			stale = append(stale, member)
			continue
		}
		session, err := s.FindByID(ctx, sessionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			stale = append(stale, member)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}

	if len(stale) > 0 {
		_ = s.client.SRem(ctx, userIndexKey(userID), stale...).Err()
	}
	return out, nil
}
