// Package ratelimit provides per-client, per-endpoint rate limiting on top of
// token buckets.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket pairs a token bucket with its capacity.
type bucket struct {
	limiter  *rate.Limiter
	capacity int
}

func newBucket(limit int, window time.Duration, burst int) *bucket {
	capacity := burst
	if capacity <= 0 {
		capacity = limit
	}
	every := rate.Limit(float64(limit) / window.Seconds())
	return &bucket{
		limiter:  rate.NewLimiter(every, capacity),
		capacity: capacity,
	}
}

// take consumes a token if one is available and reports the bucket state.
func (b *bucket) take(now time.Time) (allowed bool, remaining int, resetTime time.Time) {
	allowed = b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	remaining = max(int(tokens), 0)

	missing := float64(b.capacity) - tokens
	if missing <= 0 || b.limiter.Limit() <= 0 {
		return allowed, remaining, now
	}
	secondsUntilFull := missing / float64(b.limiter.Limit())
	return allowed, remaining, now.Add(time.Duration(secondsUntilFull * float64(time.Second)))
}

// retryAfter returns how long until one token is available.
func (b *bucket) retryAfter(now time.Time) time.Duration {
	tokens := b.limiter.TokensAt(now)
	if tokens >= 1 || b.limiter.Limit() <= 0 {
		return 0
	}
	return time.Duration((1 - tokens) / float64(b.limiter.Limit()) * float64(time.Second))
}

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter manages rate limiting for multiple clients using token buckets.
type Limiter struct {
	buckets       map[string]*bucket
	lastAccess    map[string]time.Time
	mu            sync.Mutex
	config        *Config
	cleanupTicker *time.Ticker
	cleanupStop   chan struct{}
	stopOnce      sync.Once
	now           func() time.Time
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
			Whitelist:       make(map[string]bool),
			Blacklist:       make(map[string]bool),
		}
	}

	limiter := &Limiter{
		buckets:    make(map[string]*bucket),
		lastAccess: make(map[string]time.Time),
		config:     config,
		now:        time.Now,
	}

	if config.Enabled && config.CleanupInterval > 0 {
		limiter.cleanupTicker = time.NewTicker(config.CleanupInterval)
		limiter.cleanupStop = make(chan struct{})
		go limiter.cleanup()
	}

	return limiter
}

// Allow checks if a request from the given client is allowed for the specified endpoint.
// Returns true if allowed, false if rate limited, along with rate limit information.
func (l *Limiter) Allow(clientID string, endpoint string, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{Allowed: false}
	}

	endpointConfig := MatchEndpoint(endpoint, method, l.config.EndpointConfigs)
	if endpointConfig == nil {
		endpointConfig = &EndpointConfig{
			Limit:  l.config.DefaultLimit,
			Window: l.config.DefaultWindow,
			Burst:  l.config.DefaultLimit,
		}
	}

	// Unlimited endpoint (e.g., health check)
	if endpointConfig.Limit <= 0 {
		return true, Info{Allowed: true}
	}

	// Prefix-matched endpoints share one bucket per client.
	key := clientID + ":" + endpointConfig.Method + ":" + endpointConfig.Path
	if endpointConfig.Path == "" {
		key = clientID + ":" + method + ":" + endpoint
	}

	now := l.now()
	b := l.getBucket(key, endpointConfig, now)
	allowed, remaining, resetTime := b.take(now)

	var retryAfter time.Duration
	if !allowed {
		retryAfter = b.retryAfter(now)
	}

	return allowed, Info{
		Allowed:    allowed,
		Limit:      endpointConfig.Limit,
		Remaining:  remaining,
		ResetTime:  resetTime,
		RetryAfter: retryAfter,
	}
}

// getBucket gets or creates the bucket for key and records the access.
func (l *Limiter) getBucket(key string, cfg *EndpointConfig, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = newBucket(cfg.Limit, cfg.Window, cfg.Burst)
		l.buckets[key] = b
	}
	l.lastAccess[key] = now
	return b
}

// cleanup removes old unused buckets to prevent memory leaks.
func (l *Limiter) cleanup() {
	for {
		select {
		case <-l.cleanupTicker.C:
			l.cleanupBuckets(time.Hour)
		case <-l.cleanupStop:
			return
		}
	}
}

// cleanupBuckets removes buckets that have not been used within idle.
func (l *Limiter) cleanupBuckets(idle time.Duration) {
	cutoff := l.now().Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, last := range l.lastAccess {
		if last.Before(cutoff) {
			delete(l.buckets, key)
			delete(l.lastAccess, key)
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		if l.cleanupTicker != nil {
			l.cleanupTicker.Stop()
		}
		if l.cleanupStop != nil {
			close(l.cleanupStop)
		}
	})
}
