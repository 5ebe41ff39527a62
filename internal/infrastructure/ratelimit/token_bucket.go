package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is an in-process token bucket. Safe for concurrent use.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	rate       float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

func newTokenBucket(capacity, rate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		rate:       rate,
		lastRefill: now(),
		now:        now,
	}
}

// Take consumes one token. When the bucket is empty it reports how long until
// the next token is available.
func (tb *TokenBucket) Take() (bool, float64, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true, tb.tokens, 0
	}
	wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
	return false, tb.tokens, wait
}

// TokenBucketPool keeps one bucket per key and drops idle ones on Cleanup.
type TokenBucketPool struct {
	mu       sync.Mutex
	buckets  map[string]*poolEntry
	capacity float64
	rate     float64
	now      func() time.Time
}

type poolEntry struct {
	bucket   *TokenBucket
	lastUsed time.Time
}

func NewTokenBucketPool(capacity, rate float64) *TokenBucketPool {
	return &TokenBucketPool{
		buckets:  make(map[string]*poolEntry),
		capacity: capacity,
		rate:     rate,
		now:      time.Now,
	}
}

func (p *TokenBucketPool) get(key string) *TokenBucket {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.buckets[key]
	if !ok {
		entry = &poolEntry{bucket: newTokenBucket(p.capacity, p.rate, p.now)}
		p.buckets[key] = entry
	}
	entry.lastUsed = p.now()
	return entry.bucket
}

// Cleanup removes buckets idle for longer than maxIdle and returns how many went.
func (p *TokenBucketPool) Cleanup(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	now := p.now()
	for key, entry := range p.buckets {
		if now.Sub(entry.lastUsed) > maxIdle {
			delete(p.buckets, key)
			removed++
		}
	}
	return removed
}

func (p *TokenBucketPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}
