package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-listener-manager/internal/api"
	"github.com/sirosfoundation/go-listener-manager/internal/configstore"
	"github.com/sirosfoundation/go-listener-manager/internal/events"
	"github.com/sirosfoundation/go-listener-manager/internal/listener"
	"github.com/sirosfoundation/go-listener-manager/internal/logstore"
	"github.com/sirosfoundation/go-listener-manager/internal/server"
	"github.com/sirosfoundation/go-listener-manager/internal/supervisor"
	"github.com/sirosfoundation/go-listener-manager/internal/websocket"
	"github.com/sirosfoundation/go-listener-manager/pkg/config"
	"github.com/sirosfoundation/go-listener-manager/pkg/logging"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	version    = "dev"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	fallback := logging.NewFallback()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fallback.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		fallback.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Listener Manager",
		zap.String("version", version),
		zap.String("build_time", buildTime),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Listener manager failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	logger.Info("Listener manager exited")
}

// run wires the components, restores the persisted servers and serves the
// admin API until ctx is cancelled
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Bootstrap the request log directory and the persisted record
	logs := logstore.New(cfg.Logs.Dir, logger, logstore.WithTransferDir(cfg.Logs.TransferDir))
	if err := logs.EnsureDir(); err != nil {
		return err
	}
	if err := logs.EnsureTransferDir(); err != nil {
		return err
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := configstore.New(initCtx, &cfg.Store, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to initialize config store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if fs, ok := store.(*configstore.FileStore); ok {
		created, err := fs.Ensure()
		if err != nil {
			return err
		}
		if created {
			logger.Info("Created empty server config", zap.String("path", fs.Path()))
		}
	}
	logger.Info("Config store initialized", zap.String("type", cfg.Store.Type))

	router := events.NewRouter(logger)
	defer router.Close()

	hub := websocket.NewHub(logger)
	defer hub.Close()

	registry, err := supervisor.New(supervisor.Options{
		Router: router,
		Logs:   logs,
		Listener: listener.Options{
			BindHost:          cfg.Listeners.BindHost,
			GracePeriod:       cfg.Listeners.GracePeriod(),
			ReadHeaderTimeout: cfg.Listeners.ReadHeaderTimeout(),
		},
		Notify: hub.Broadcast,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	restore(ctx, store, registry, logger)

	token, err := server.ResolveAdminToken(cfg.Server.AdminToken, logger)
	if err != nil {
		return err
	}

	handlers := api.NewHandlers(registry, store, hub, logger)
	mgr := server.NewManager(server.ServerConfigFrom(cfg), logger)
	mgr.AddProvider(server.NewAdminProvider(handlers, token, cfg.RateLimit, logger))

	if err := mgr.Start(ctx); err != nil {
		_ = registry.ShutdownAll(context.Background())
		return fmt.Errorf("failed to start admin server: %w", err)
	}
	logger.Info("Admin API available", zap.String("url", cfg.Server.BaseURL()))

	<-ctx.Done()
	logger.Info("Shutting down listener manager...")

	// Snapshot before stopping so the record lists what was running
	snapshot := registry.List()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs error
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := registry.ShutdownAll(shutdownCtx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := store.Save(shutdownCtx, snapshot); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to save server config: %w", err))
	} else {
		logger.Info("Server config saved", zap.Int("servers", len(snapshot)))
	}

	return errs
}

// restore reopens the persisted servers. An unreadable record is reported and
// treated as empty.
func restore(ctx context.Context, store configstore.Store, registry *supervisor.Registry, logger *zap.Logger) {
	servers, err := store.Load(ctx)
	if err != nil {
		var malformed *configstore.MalformedError
		if errors.As(err, &malformed) {
			logger.Warn("Server config is malformed, starting with no servers",
				zap.String("source", malformed.Source), zap.Error(malformed.Err))
		} else {
			logger.Warn("Failed to load server config, starting with no servers", zap.Error(err))
		}
		return
	}

	registry.Restore(ctx, servers)
}
