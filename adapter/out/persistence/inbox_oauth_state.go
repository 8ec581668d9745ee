package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"inbox_server/core/port/out"
)

// OAuthStateKey is the Redis key prefix for pending OAuth states.
const OAuthStateKey = "oauth:state:"

// RedisOAuthStateStore backs the OAuth CSRF state round-trip with
// Redis. States are one-shot and expire via TTL.
type RedisOAuthStateStore struct {
	client *redis.Client
}

var _ out.OAuthStateStore = (*RedisOAuthStateStore)(nil)

func NewRedisOAuthStateStore(client *redis.Client) *RedisOAuthStateStore {
	return &RedisOAuthStateStore{client: client}
}

// StoreState records a pending state for the user.
func (s *RedisOAuthStateStore) StoreState(ctx context.Context, state string, userID uuid.UUID, ttl time.Duration) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if userID == uuid.Nil {
		return errors.New("userID cannot be nil")
	}

	key := OAuthStateKey + state
	if err := s.client.Set(ctx, key, userID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store OAuth state: %w", err)
	}
	return nil
}

// ValidateState consumes the state and returns its user. GETDEL makes
// validation atomic with deletion, so a state can never be replayed.
func (s *RedisOAuthStateStore) ValidateState(ctx context.Context, state string) (uuid.UUID, error) {
	if state == "" {
		return uuid.Nil, errors.New("state cannot be empty")
	}

	key := OAuthStateKey + state
	userIDStr, err := s.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return uuid.Nil, errors.New("state not found or expired")
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to validate OAuth state: %w", err)
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid userID in state: %w", err)
	}
	return userID, nil
}
