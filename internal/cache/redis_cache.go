package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type deliveryValue struct {
	Status string    `json:"status"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

func deliveryKey(taskID, chatID string) string {
	return fmt.Sprintf("delivery:%s:%s", taskID, chatID)
}

func (c *RedisCache) StoreSent(ctx context.Context, taskID, chatID string, at time.Time) error {
	return c.store(ctx, deliveryKey(taskID, chatID), deliveryValue{Status: "sent", At: at.UTC()})
}

func (c *RedisCache) StoreFailed(ctx context.Context, taskID, chatID, reason string, at time.Time) error {
	return c.store(ctx, deliveryKey(taskID, chatID), deliveryValue{Status: "failed", Reason: reason, At: at.UTC()})
}

func (c *RedisCache) store(ctx context.Context, key string, val deliveryValue) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}
