package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sirosfoundation/go-listener-manager/pkg/config"
)

// RateLimitConfig configures a RateLimiter
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int
	// CleanupInterval controls how often idle keys are forgotten
	CleanupInterval time.Duration
}

// RateLimitConfigFrom converts the admin API rate limit configuration
func RateLimitConfigFrom(cfg config.RateLimitConfig) RateLimitConfig {
	return RateLimitConfig{
		Enabled:           cfg.Enabled,
		RequestsPerMinute: cfg.RequestsPerMinute,
		BurstSize:         cfg.BurstSize,
		CleanupInterval:   10 * time.Minute,
	}
}

// RateLimiter applies a token bucket per key (normally the client IP)
type RateLimiter struct {
	cfg    RateLimitConfig
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]*keyLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
// Call Stop to release it.
func NewRateLimiter(cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 600
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = int(math.Max(1, float64(cfg.RequestsPerMinute)/10))
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	rl := &RateLimiter{
		cfg:      cfg,
		logger:   logger.Named("ratelimit"),
		limiters: make(map[string]*keyLimiter),
		stop:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (r *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stop:
			return
		}
	}
}

// cleanup removes limiters that have been idle for a full interval
func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.cfg.CleanupInterval)
	for key, l := range r.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(r.limiters, key)
		}
	}
}

func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[key]
	if !ok {
		perSecond := rate.Limit(float64(r.cfg.RequestsPerMinute) / 60.0)
		l = &keyLimiter{limiter: rate.NewLimiter(perSecond, r.cfg.BurstSize)}
		r.limiters[key] = l
	}
	l.lastSeen = time.Now()
	return l.limiter
}

// Allow reports whether a request for key may proceed
func (r *RateLimiter) Allow(key string) bool {
	if !r.cfg.Enabled {
		return true
	}
	return r.getLimiter(key).Allow()
}

// RetryAfter returns how long a client should wait before retrying
func (r *RateLimiter) RetryAfter() time.Duration {
	interval := time.Minute / time.Duration(r.cfg.RequestsPerMinute)
	if interval < time.Second {
		return time.Second
	}
	return interval
}

// Stop ends the cleanup loop
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// RateLimitMiddleware rejects requests over the client's rate with 429
func RateLimitMiddleware(rl *RateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if rl.Allow(key) {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(rl.RetryAfter().Seconds()))
		logger.Warn("Rate limit exceeded",
			zap.String("client_ip", key),
			zap.String("path", c.Request.URL.Path))

		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		c.Abort()
	}
}
