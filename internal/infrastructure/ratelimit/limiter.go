// Package ratelimit enforces per-session request budgets on the advisor API.
// Buckets live in Redis so every server instance shares one budget; when Redis
// is unreachable the limiter falls back to an in-process bucket.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// Policy is a bucket of Limit requests refilled evenly over Window.
type Policy struct {
	Name   string
	Limit  int64
	Window time.Duration
}

func (p Policy) rate() float64 {
	return float64(p.Limit) / p.Window.Seconds()
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter admits or rejects one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Policy() Policy
}

// KEYS[1] bucket; ARGV capacity, rate per second, now in ms.
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local bucket = redis.call('HMGET', KEYS[1], 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or now

tokens = math.min(tokens + math.max(now - last_refill, 0) * rate / 1000, capacity)

local allowed = 0
local wait_ms = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
else
    wait_ms = math.ceil((1 - tokens) / rate * 1000)
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'last_refill', now)
redis.call('PEXPIRE', KEYS[1], math.ceil(capacity / rate * 1000) + 60000)

return {allowed, math.floor(tokens), wait_ms}
`)

// RedisLimiter is a token bucket shared through Redis.
type RedisLimiter struct {
	client   redis.UniversalClient
	policy   Policy
	prefix   string
	fallback *TokenBucketPool
	log      logger.Logger
	now      func() time.Time
}

func NewRedisLimiter(client redis.UniversalClient, policy Policy, log logger.Logger) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		policy:   policy,
		prefix:   "advisor:ratelimit:" + policy.Name,
		fallback: NewTokenBucketPool(float64(policy.Limit), policy.rate()),
		log:      log.WithComponent("ratelimit"),
		now:      time.Now,
	}
}

func (l *RedisLimiter) Policy() Policy { return l.policy }

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := tokenBucketScript.Run(ctx, l.client,
		[]string{fmt.Sprintf("%s:%s", l.prefix, key)},
		l.policy.Limit, l.policy.rate(), l.now().UnixMilli(),
	).Int64Slice()
	if err != nil || len(res) < 3 {
		l.log.Warn(ctx, "Rate limit store unavailable, using local bucket",
			logger.String("policy", l.policy.Name),
			logger.Any("error", err),
		)
		return takeLocal(l.fallback, l.policy, key), nil
	}
	return Decision{
		Allowed:    res[0] == 1,
		Limit:      l.policy.Limit,
		Remaining:  res[1],
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// LocalLimiter keeps buckets in process memory. Used when Redis is disabled.
type LocalLimiter struct {
	pool   *TokenBucketPool
	policy Policy
}

func NewLocalLimiter(policy Policy) *LocalLimiter {
	return &LocalLimiter{pool: NewTokenBucketPool(float64(policy.Limit), policy.rate()), policy: policy}
}

func (l *LocalLimiter) Policy() Policy { return l.policy }

func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	return takeLocal(l.pool, l.policy, key), nil
}

// Cleanup drops buckets that have been idle for maxIdle.
func (l *LocalLimiter) Cleanup(maxIdle time.Duration) int {
	return l.pool.Cleanup(maxIdle)
}

func takeLocal(pool *TokenBucketPool, policy Policy, key string) Decision {
	ok, remaining, wait := pool.get(key).Take()
	return Decision{
		Allowed:    ok,
		Limit:      policy.Limit,
		Remaining:  int64(math.Floor(remaining)),
		RetryAfter: wait,
	}
}
