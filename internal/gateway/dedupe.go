package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper suppresses webhook deliveries that were already handled.
// It only saves work: every handler is idempotent against stored state.
type Deduper interface {
	// Claim returns false when key was claimed before and not released
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a failed delivery can be retried
	Release(ctx context.Context, key string) error
}

// RedisDeduper keeps a marker per delivery with a TTL
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func dedupeKey(key string) string {
	return fmt.Sprintf("webhook_seen:%s", key)
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	acquired, err := d.rdb.SetNX(ctx, dedupeKey(key), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis dedupe error: %w", err)
	}
	return acquired, nil
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if err := d.rdb.Del(ctx, dedupeKey(key)).Err(); err != nil {
		return fmt.Errorf("redis dedupe release error: %w", err)
	}
	return nil
}

// NopDeduper claims every key
type NopDeduper struct{}

func (NopDeduper) Claim(context.Context, string) (bool, error) { return true, nil }

func (NopDeduper) Release(context.Context, string) error { return nil }
