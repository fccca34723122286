package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-listener-manager/internal/api"
	"github.com/sirosfoundation/go-listener-manager/pkg/config"
	"github.com/sirosfoundation/go-listener-manager/pkg/middleware"
)

// AdminProvider provides the status endpoints and the token protected /api routes
type AdminProvider struct {
	handlers    *api.Handlers
	token       string
	rateLimiter *middleware.RateLimiter
	logger      *zap.Logger
}

// NewAdminProvider creates the admin route provider. When rate limiting is
// enabled the /api group is limited per client IP.
func NewAdminProvider(handlers *api.Handlers, token string, rl config.RateLimitConfig, logger *zap.Logger) *AdminProvider {
	p := &AdminProvider{
		handlers: handlers,
		token:    token,
		logger:   logger,
	}
	if rl.Enabled {
		p.rateLimiter = middleware.NewRateLimiter(middleware.RateLimitConfigFrom(rl), logger)
	}
	return p
}

func (p *AdminProvider) Name() string { return "admin" }

func (p *AdminProvider) RegisterRoutes(router *gin.Engine) {
	// Public status routes
	router.GET("/health", p.handlers.Status)
	router.GET("/status", p.handlers.Status)

	var limit []gin.HandlerFunc
	if p.rateLimiter != nil {
		limit = append(limit, middleware.RateLimitMiddleware(p.rateLimiter, p.logger))
	}

	// The event stream also accepts ?token= for browser WebSocket clients
	stream := append([]gin.HandlerFunc{middleware.StreamAuthMiddleware(p.token, p.logger)}, limit...)
	router.GET("/api/events", append(stream, p.handlers.Events)...)

	protected := router.Group("/api")
	protected.Use(middleware.AdminAuthMiddleware(p.token, p.logger))
	protected.Use(limit...)
	{
		servers := protected.Group("/servers")
		{
			servers.GET("", p.handlers.ListServers)
			servers.POST("", p.handlers.OpenServer)
			servers.GET("/:port", p.handlers.GetServer)
			servers.DELETE("/:port", p.handlers.CloseServer)

			servers.GET("/:port/logs", p.handlers.GetLogs)
			servers.DELETE("/:port/logs", p.handlers.ClearLogs)
			servers.POST("/:port/logs/export", p.handlers.ExportLogs)
			servers.POST("/:port/logs/import", p.handlers.ImportLogs)
		}

		protected.POST("/config/save", p.handlers.SaveConfig)
	}
}

// Close stops the rate limiter cleanup loop
func (p *AdminProvider) Close() error {
	if p.rateLimiter != nil {
		p.rateLimiter.Stop()
	}
	return nil
}
