package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-listener-manager/pkg/config"
	"github.com/sirosfoundation/go-listener-manager/pkg/middleware"
)

// RouteProvider registers a set of routes on the admin router
type RouteProvider interface {
	// RegisterRoutes adds the provider's routes to the router
	RegisterRoutes(router *gin.Engine)

	// Name returns the provider name for logging
	Name() string
}

// ServerConfig holds the admin server configuration
type ServerConfig struct {
	Address      string
	CORS         config.CORSConfig
	LoggingLevel string
}

// ServerConfigFrom builds a ServerConfig from the application configuration
func ServerConfigFrom(cfg *config.Config) *ServerConfig {
	return &ServerConfig{
		Address:      cfg.Server.Address(),
		CORS:         cfg.Server.CORS,
		LoggingLevel: cfg.Logging.Level,
	}
}

// Manager owns the admin HTTP server
type Manager struct {
	cfg    *ServerConfig
	logger *zap.Logger

	providers []RouteProvider

	router     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
}

// NewManager creates a new server manager
func NewManager(cfg *ServerConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		logger:    logger.Named("admin-server"),
		providers: make([]RouteProvider, 0),
	}
}

// AddProvider adds a RouteProvider to the manager.
// Call this before Start().
func (m *Manager) AddProvider(p RouteProvider) {
	m.providers = append(m.providers, p)
	m.logger.Debug("Added route provider", zap.String("name", p.Name()))
}

// Start builds the router, binds the admin address and serves in the
// background. Bind errors are returned synchronously.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.LoggingLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	m.router = m.buildRouter()
	for _, p := range m.providers {
		m.logger.Info("Registering routes", zap.String("provider", p.Name()))
		p.RegisterRoutes(m.router)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", m.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.cfg.Address, err)
	}
	m.listener = ln

	m.httpServer = &http.Server{
		Handler:           m.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		m.logger.Info("Admin server listening", zap.String("address", ln.Addr().String()))
		if err := m.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Admin server error", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully stops the admin server and closes providers that
// hold resources
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs error

	if m.httpServer != nil {
		if err := m.httpServer.Shutdown(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
		select {
		case <-m.done:
		case <-ctx.Done():
		}
	}

	for _, p := range m.providers {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s provider: %w", p.Name(), err))
			}
		}
	}

	return errs
}

// buildRouter creates a new router with common middleware
func (m *Manager) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(m.logger))
	if len(m.cfg.CORS.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     m.cfg.CORS.AllowedOrigins,
			AllowMethods:     m.cfg.CORS.AllowedMethods,
			AllowHeaders:     m.cfg.CORS.AllowedHeaders,
			ExposeHeaders:    m.cfg.CORS.ExposedHeaders,
			AllowCredentials: m.cfg.CORS.AllowCredentials,
			MaxAge:           time.Duration(m.cfg.CORS.MaxAge) * time.Second,
		}))
	}
	return router
}

// Addr returns the bound admin address, or nil before Start
func (m *Manager) Addr() net.Addr {
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// Router returns the admin router. Nil before Start.
func (m *Manager) Router() *gin.Engine {
	return m.router
}

// ResolveAdminToken returns the configured admin token, generating and
// logging a random one when none is set
func ResolveAdminToken(configured string, logger *zap.Logger) (string, error) {
	if configured != "" {
		return configured, nil
	}
	token, err := middleware.GenerateAdminToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate admin token: %w", err)
	}
	logger.Info("Generated admin API token (set LISTENER_SERVER_ADMIN_TOKEN to use a fixed token)",
		zap.String("token", token))
	return token, nil
}
