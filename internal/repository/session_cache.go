package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-attempt/internal/config"
)

// TokenCache mirrors the live session token of in-progress attempts.
// Postgres stays authoritative; a miss only costs a database read.
type TokenCache interface {
	Get(ctx context.Context, attemptID string) (string, error)
	Set(ctx context.Context, attemptID, token string) error
	Delete(ctx context.Context, attemptID string) error
}

// SessionCache is the Redis TokenCache.
type SessionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionCache creates a SessionCache whose entries expire after ttl.
func NewSessionCache(rdb *redis.Client, ttl time.Duration) *SessionCache {
	return &SessionCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached token, or "" when none is cached.
func (c *SessionCache) Get(ctx context.Context, attemptID string) (string, error) {
	token, err := c.rdb.Get(ctx, config.CacheKey.AttemptSessionKey(attemptID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

func (c *SessionCache) Set(ctx context.Context, attemptID, token string) error {
	return c.rdb.Set(ctx, config.CacheKey.AttemptSessionKey(attemptID), token, c.ttl).Err()
}

func (c *SessionCache) Delete(ctx context.Context, attemptID string) error {
	return c.rdb.Del(ctx, config.CacheKey.AttemptSessionKey(attemptID)).Err()
}
