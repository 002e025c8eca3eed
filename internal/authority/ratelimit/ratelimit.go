// Package ratelimit keeps one token bucket per user for the upload
// authorization endpoint. Buckets live in a bounded LRU so idle users are
// evicted without a cleanup loop.
package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const defaultCacheSize = 10000

type Config struct {
	RequestsPerMinute int
	Burst             int
	CacheSize         int
}

type Limiter struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	cache *lru.Cache[string, *rate.Limiter]
}

// New returns nil when limiting is disabled; a nil *Limiter allows everything.
func New(cfg Config) (*Limiter, error) {
	if cfg.RequestsPerMinute <= 0 || cfg.Burst <= 0 {
		return nil, nil
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, err
	}
	return &Limiter{
		limit: rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute)),
		burst: cfg.Burst,
		cache: cache,
	}, nil
}

func (l *Limiter) Allow(key string) bool {
	if l == nil || key == "" {
		return true
	}

	l.mu.Lock()
	lim, ok := l.cache.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.cache.Add(key, lim)
	}
	l.mu.Unlock()

	return lim.Allow()
}
