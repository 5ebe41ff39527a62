package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/compliance-advisor/pkg/logger"
)

const generationKey = "report:generation"

// ReportCache stores rendered report views. Keys are namespaced by a
// generation counter; Invalidate bumps the counter so every cached view goes
// stale at once without scanning.
type ReportCache interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Invalidate(ctx context.Context) error
}

type reportCacheImpl struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    logger.Logger
}

// NewReportCache creates a Redis-backed report cache.
func NewReportCache(conn *RedisConnection, ttl time.Duration, log logger.Logger) ReportCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &reportCacheImpl{client: conn.GetClient(), ttl: ttl, log: log.WithComponent("report_cache")}
}

func (c *reportCacheImpl) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	full, err := c.key(ctx, key)
	if err != nil {
		return false, err
	}
	raw, err := c.client.Get(ctx, full).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Warn(ctx, "Discarding undecodable cache entry", logger.String("key", full))
		return false, nil
	}
	return true, nil
}

func (c *reportCacheImpl) Set(ctx context.Context, key string, value interface{}) error {
	full, err := c.key(ctx, key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, full, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *reportCacheImpl) Invalidate(ctx context.Context) error {
	gen, err := c.client.Incr(ctx, generationKey).Result()
	if err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	c.log.Debug(ctx, "Report cache invalidated", logger.Int64("generation", gen))
	return nil
}

func (c *reportCacheImpl) key(ctx context.Context, key string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("cache generation: %w", err)
	}
	return fmt.Sprintf("report:%d:%s", gen, key), nil
}

// NoopReportCache is used when Redis is disabled; every lookup misses.
type NoopReportCache struct{}

func (NoopReportCache) Get(context.Context, string, interface{}) (bool, error) { return false, nil }
func (NoopReportCache) Set(context.Context, string, interface{}) error        { return nil }
func (NoopReportCache) Invalidate(context.Context) error                        { return nil }
