package ratelimiter

import (
	"GeoCMS/backend/go/pkg/util"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether a request identified by key may proceed.
type RateLimiter interface {
	Allow(key string) bool
}

// KeyedTokenBucket keeps one token bucket per key (e.g. client IP).
// Buckets of idle keys are evicted once more than maxKeys keys are tracked.
type KeyedTokenBucket struct {
	rate     rate.Limit
	capacity int
	buckets  *util.LRUCache[string, *rate.Limiter]
	mu       sync.Mutex
}

// NewKeyedTokenBucket creates a limiter refilling ratePerSecond tokens per second up to capacity.
func NewKeyedTokenBucket(ratePerSecond float64, capacity, maxKeys int) (*KeyedTokenBucket, error) {
	if ratePerSecond <= 0 || capacity <= 0 {
		return nil, fmt.Errorf("invalid token bucket settings: rate=%v capacity=%d", ratePerSecond, capacity)
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	buckets, err := util.NewLRU[string, *rate.Limiter](util.CacheConfig{Capacity: maxKeys})
	if err != nil {
		return nil, err
	}
	return &KeyedTokenBucket{
		rate:     rate.Limit(ratePerSecond),
		capacity: capacity,
		buckets:  buckets,
	}, nil
}

// Allow reports whether a request for key may proceed now.
func (l *KeyedTokenBucket) Allow(key string) bool {
	return l.limiter(key).Allow()
}

func (l *KeyedTokenBucket) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.buckets.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(l.rate, l.capacity)
	l.buckets.Put(key, lim)
	return lim
}
