package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisReportQueue hands report requests to the rendering service through a Redis list.
type RedisReportQueue struct {
	client *redis.Client
	key    string
}

func NewRedisReportQueue(client *redis.Client, key string) *RedisReportQueue {
	return &RedisReportQueue{client: client, key: key}
}

func (q *RedisReportQueue) Enqueue(ctx context.Context, req ReportRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal report request: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("enqueue report %s: %w", req.ID, err)
	}
	return nil
}
