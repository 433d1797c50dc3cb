package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventQueue is the buffer between request handlers and the event worker.
type EventQueue interface {
	// Pop blocks up to timeout and returns nil when the queue stayed empty.
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Push(ctx context.Context, payloads ...[]byte) error
}

// RedisEventQueue is an EventQueue backed by a Redis list.
type RedisEventQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisEventQueue creates a queue on the given list key.
func NewRedisEventQueue(rdb *redis.Client, key string) *RedisEventQueue {
	return &RedisEventQueue{rdb: rdb, key: key}
}

func (q *RedisEventQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	// BLPop returns [key, value].
	result, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	return []byte(result[1]), nil
}

func (q *RedisEventQueue) Push(ctx context.Context, payloads ...[]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	pipe := q.rdb.Pipeline()
	for _, p := range payloads {
		pipe.RPush(ctx, q.key, p)
	}
	_, err := pipe.Exec(ctx)
	return err
}
