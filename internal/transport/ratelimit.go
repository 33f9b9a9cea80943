package transport

import (
	"strconv"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// TokenBucket is a simple refilling bucket; Take consumes one token if
// available.
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

func NewTokenBucket(capacity float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) Take() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tb.tokens = min(tb.capacity, tb.tokens+(elapsed.Seconds()*tb.refillRate))
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Throttle rate-limits exchanges per subscription.
type Throttle struct {
	rate    float64
	burst   float64
	buckets cmap.ConcurrentMap[string, *TokenBucket]
}

// NewThrottle creates a per-subscription throttle refilling at rate tokens
// per second with the given burst capacity.
func NewThrottle(rate, burst float64) *Throttle {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = rate * 2
	}
	return &Throttle{rate: rate, burst: burst, buckets: cmap.New[*TokenBucket]()}
}

// Allow consumes one token for the subscription, reporting false when the
// attempt should be deferred.
func (t *Throttle) Allow(subID int) bool {
	key := strconv.Itoa(subID)
	if bucket, ok := t.buckets.Get(key); ok {
		return bucket.Take()
	}
	bucket := NewTokenBucket(t.burst, t.rate)
	if !t.buckets.SetIfAbsent(key, bucket) {
		bucket, _ = t.buckets.Get(key)
	}
	return bucket.Take()
}
