package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultSessionTTL is how long a sign-in stays valid without activity.
const DefaultSessionTTL = 30 * 24 * time.Hour

// ErrSessionNotFound means the token is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore issues and resolves opaque bearer tokens backed by Redis.
type SessionStore struct {
	client *Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewSessionStore creates a session store with the given token TTL.
func NewSessionStore(client *Client, logger *zap.Logger, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

func sessionKey(token string) string {
	return "session:" + token
}

// Create mints a new session token for the user.
func (s *SessionStore) Create(ctx context.Context, userID uuid.UUID) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := s.client.rdb.Set(ctx, sessionKey(token), userID.String(), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	s.logger.Debug("session created", zap.String("user_id", userID.String()))

	return token, nil
}

// Lookup resolves a token to its user id and slides the expiry forward,
// so active users are not logged out mid-emergency.
func (s *SessionStore) Lookup(ctx context.Context, token string) (uuid.UUID, error) {
	val, err := s.client.rdb.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrSessionNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("redis get failed: %w", err)
	}

	userID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session value: %w", err)
	}

	_ = s.client.rdb.Expire(ctx, sessionKey(token), s.ttl).Err()

	return userID, nil
}

// Delete revokes a session token. Deleting an unknown token is a no-op.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.rdb.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
