package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-listener-manager/pkg/config"
)

func TestRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name              string
		requestsPerMinute int
		burstSize         int
		requests          int
		wantAllowed       int
	}{
		{"allows up to burst size", 60, 5, 5, 5},
		{"blocks after burst exceeded", 60, 3, 5, 3},
		{"single request allowed", 60, 10, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: tt.requestsPerMinute,
				BurstSize:         tt.burstSize,
				CleanupInterval:   time.Minute,
			}, zap.NewNop())
			defer rl.Stop()

			allowed := 0
			for i := 0; i < tt.requests; i++ {
				if rl.Allow("test-key") {
					allowed++
				}
			}
			assert.Equal(t, tt.wantAllowed, allowed)
		})
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1}, zap.NewNop())
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("test-key"))
	}
}

func TestRateLimiter_TokenRefill(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 600, // 10 per second
		BurstSize:         1,
	}, zap.NewNop())
	defer rl.Stop()

	assert.True(t, rl.Allow("test-key"))
	assert.False(t, rl.Allow("test-key"))

	time.Sleep(150 * time.Millisecond)
	assert.True(t, rl.Allow("test-key"))
}

func TestRateLimiter_MultipleKeys(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true, RequestsPerMinute: 60, BurstSize: 2}, zap.NewNop())
	defer rl.Stop()

	for i := 0; i < 2; i++ {
		assert.True(t, rl.Allow("key-1"))
		assert.True(t, rl.Allow("key-2"))
	}
	assert.False(t, rl.Allow("key-1"))
	assert.False(t, rl.Allow("key-2"))
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true, RequestsPerMinute: 60, BurstSize: 100}, zap.NewNop())
	defer rl.Stop()

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("concurrent-key") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(100), allowed.Load())
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true, RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Hour}, zap.NewNop())
	defer rl.Stop()

	assert.True(t, rl.Allow("idle"))
	assert.False(t, rl.Allow("idle"))

	rl.mu.Lock()
	rl.limiters["idle"].lastSeen = time.Now().Add(-2 * time.Hour)
	rl.mu.Unlock()

	rl.cleanup()

	// A forgotten key starts with a full bucket again
	assert.True(t, rl.Allow("idle"))
}

func TestRateLimitConfigFrom(t *testing.T) {
	cfg := RateLimitConfigFrom(config.RateLimitConfig{Enabled: true, RequestsPerMinute: 120, BurstSize: 7})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 120, cfg.RequestsPerMinute)
	assert.Equal(t, 7, cfg.BurstSize)
	assert.Positive(t, cfg.CleanupInterval)
}

func TestRateLimitMiddleware(t *testing.T) {
	logger := zap.NewNop()
	rl := NewRateLimiter(RateLimitConfig{Enabled: true, RequestsPerMinute: 60, BurstSize: 2}, logger)
	defer rl.Stop()

	router := gin.New()
	router.Use(RateLimitMiddleware(rl, logger))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}
