package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/db"
)

// DefaultLocationTTL bounds how stale a cached position may be before
// triggers fall back to the no-location path.
const DefaultLocationTTL = 15 * time.Minute

// ErrLocationNotFound indicates no recent position is cached for the user.
var ErrLocationNotFound = errors.New("location not found")

// LocationStore caches each user's last reported position. Devices push
// updates opportunistically; a trigger without a fresh GPS fix reads the
// most recent cached value instead of blocking on the device.
type LocationStore struct {
	client *Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewLocationStore creates a location store with the given TTL.
// A zero ttl uses DefaultLocationTTL.
func NewLocationStore(client *Client, logger *zap.Logger, ttl time.Duration) *LocationStore {
	if ttl <= 0 {
		ttl = DefaultLocationTTL
	}
	return &LocationStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

func (s *LocationStore) buildKey(userID string) string {
	return fmt.Sprintf("location:%s", userID)
}

// Update stores the user's latest position, replacing any prior value.
func (s *LocationStore) Update(ctx context.Context, userID string, loc *db.Location) error {
	if loc.RecordedAt.IsZero() {
		loc.RecordedAt = time.Now().UTC()
	}

	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}

	if err := s.client.rdb.Set(ctx, s.buildKey(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	s.logger.Debug("location updated",
		zap.String("user_id", userID),
		zap.Float64("lat", loc.Lat),
		zap.Float64("lon", loc.Lon),
	)

	return nil
}

// Last returns the user's most recent cached position, or
// ErrLocationNotFound if none exists or the entry has expired.
func (s *LocationStore) Last(ctx context.Context, userID string) (*db.Location, error) {
	val, err := s.client.rdb.Get(ctx, s.buildKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrLocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var loc db.Location
	if err := json.Unmarshal([]byte(val), &loc); err != nil {
		s.logger.Error("failed to unmarshal cached location", zap.Error(err))
		return nil, fmt.Errorf("invalid cached location: %w", err)
	}

	return &loc, nil
}
