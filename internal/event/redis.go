package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// RedisPublisher forwards events to the exam's monitor channel and appends
// them to the audit queue drained by the event worker.
type RedisPublisher struct {
	rdb   *redis.Client
	queue string
}

// NewRedisPublisher creates a RedisPublisher writing to the given queue key.
func NewRedisPublisher(rdb *redis.Client, queue string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, queue: queue}
}

func (p *RedisPublisher) Publish(ctx context.Context, evt model.AttemptEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := p.rdb.Pipeline()
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(evt.ExamID.String()), payload)
	pipe.RPush(ctx, p.queue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event to redis: %w", err)
	}
	return nil
}
