package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/logger"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/response"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for the per-caller rate limiter
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per caller
	RequestsPerSecond float64
	// Burst is the bucket size per caller
	Burst int
	// IdleTTL evicts limiters of callers not seen for this long
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 5,
		Burst:             10,
		IdleTTL:           10 * time.Minute,
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller. Callers are keyed by the
// authenticated user id, or by client IP before authentication.
type RateLimiter struct {
	config   *RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*visitor
	lastGC   time.Time
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *RateLimitConfig) *RateLimiter {
	if cfg == nil {
		cfg = DefaultRateLimitConfig()
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		config:   cfg,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (l *RateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGC) > l.config.IdleTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.config.IdleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastGC = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Allow reports whether key may make a request now
func (l *RateLimiter) Allow(key string) bool {
	return l.limiterFor(key).AllowN(l.now(), 1)
}

// Size returns the number of tracked callers
func (l *RateLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Middleware returns the gin handler enforcing the limit
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	retryAfter := time.Second
	if l.config.RequestsPerSecond > 0 {
		retryAfter = time.Duration(float64(time.Second) / l.config.RequestsPerSecond)
	}

	return func(c *gin.Context) {
		key, ok := GetUserID(c)
		if !ok {
			key = "ip:" + c.ClientIP()
		}

		if !l.Allow(key) {
			logger.Get().Warn("Rate limit exceeded", zap.String("caller", key), zap.String("path", c.FullPath()))
			response.TooManyRequests(c, retryAfter, "Too many requests. Try again later.")
			return
		}
		c.Next()
	}
}
