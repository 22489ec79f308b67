// Package ratelimit bounds how often an identifier may request an OTP.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window counter backed by Redis. A nil client
// disables limiting, and cache errors fail open: an unreachable Redis
// must not take the OTP flow down with it.
type Limiter struct {
	cache  *redis.Client
	limit  int
	window time.Duration
}

// New constructs a Limiter allowing limit requests per key per window.
func New(cache *redis.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Hour
	}
	return &Limiter{cache: cache, limit: limit, window: window}
}

// Allow reports whether the key may make another request in the current
// window.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.cache == nil {
		return true
	}
	redisKey := "rl:otp:" + key
	cnt, err := l.cache.Incr(ctx, redisKey).Result()
	if err != nil {
		return true
	}
	if cnt == 1 {
		l.cache.Expire(ctx, redisKey, l.window)
	}
	return cnt <= int64(l.limit)
}
