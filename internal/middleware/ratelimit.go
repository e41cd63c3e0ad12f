package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/response"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages rate limiting for API requests
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rps int, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

// getLimiter returns a rate limiter for a specific key
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter
}

// Prune removes limiters not used for longer than idle
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	removed := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Cleanup prunes idle limiters every interval until ctx is done
func (rl *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune(interval)
		}
	}
}

// RateLimit middleware limits requests per account or IP
func RateLimit(rl *RateLimiter, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		if accountID, ok := GetAccountID(c); ok {
			key = fmt.Sprintf("account:%s", accountID)
		} else {
			// Fall back to IP address
			key = fmt.Sprintf("ip:%s", c.ClientIP())
		}

		if !rl.getLimiter(key).Allow() {
			response.Fail(c, logger, response.TooManyRequests("Rate limit exceeded"))
			return
		}

		c.Next()
	}
}

// CounterStore counts hits per key within a fixed window
type CounterStore interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

// AuthRouteLimit caps attempts per client IP on credential endpoints. It
// fails open when the counter store is unavailable.
func AuthRouteLimit(store CounterStore, limit int64, window time.Duration, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("auth:%s:%s", c.FullPath(), c.ClientIP())

		allowed, err := store.CheckRateLimit(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.WarnWithErr("Auth rate limit check failed", err)
			c.Next()
			return
		}

		if !allowed {
			response.Fail(c, logger, response.TooManyRequests("Too many attempts, please try again later"))
			return
		}

		c.Next()
	}
}
