// Package listener runs one managed HTTP listener bound to one port.
//
// A listener binds synchronously in Start, so a busy port is reported to the
// caller as a *domain.BindError before any goroutine is spawned. The serve
// loop then runs on its own goroutine until Stop closes the listening socket.
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-listener-manager/internal/domain"
)

// DefaultGracePeriod is used when Options.GracePeriod is zero
const DefaultGracePeriod = 5 * time.Second

// Publisher receives the events emitted by a simple-mode listener.
// It is called on the request goroutine and must not block for long.
type Publisher func(domain.Event)

// Options configures a listener
type Options struct {
	// BindHost is the host part of the bind address; empty binds all interfaces
	BindHost string
	// GracePeriod bounds Stop and Wait
	GracePeriod time.Duration
	// ReadHeaderTimeout is passed to http.Server (0 disables)
	ReadHeaderTimeout time.Duration
	// Publish receives one event per simple-mode request
	Publish Publisher
	// ID stamps every emitted event; a random id is used when empty
	ID     string
	Logger *zap.Logger
}

// Instance is a running listener. Only its owner may stop it.
type Instance struct {
	id     string
	desc   domain.ServerDescriptor
	grace  time.Duration
	logger *zap.Logger

	publish Publisher

	ln  net.Listener
	srv *http.Server

	done     chan struct{}
	serveErr error

	stopOnce sync.Once
	stopErr  error
}

// Start binds the descriptor's port and starts serving on a new goroutine.
// The descriptor is assumed to be valid.
func Start(desc domain.ServerDescriptor, opts Options) (*Instance, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	addr := net.JoinHostPort(opts.BindHost, strconv.Itoa(desc.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &domain.BindError{Port: desc.Port, Err: err}
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	inst := &Instance{
		id:      id,
		desc:    desc,
		grace:   grace,
		logger:  logger.With(zap.Int("port", desc.Port), zap.String("server", desc.Name)),
		publish: opts.Publish,
		ln:      ln,
		done:    make(chan struct{}),
	}

	errorLog, err := zap.NewStdLogAt(inst.logger, zap.DebugLevel)
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("failed to create listener error log: %w", err)
	}

	inst.srv = &http.Server{
		Handler:           inst.handler(),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		ErrorLog:          errorLog,
	}

	go inst.serve()

	inst.logger.Info("Listener started",
		zap.String("address", ln.Addr().String()),
		zap.String("mode", string(desc.Mode)))

	return inst, nil
}

// handler builds the request handler for the descriptor's mode.
// Handler panics are recovered and only logged at debug level.
func (i *Instance) handler() http.Handler {
	engine := gin.New()
	engine.Use(gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		i.logger.Debug("Recovered from handler panic", zap.Any("panic", rec))
		c.AbortWithStatus(http.StatusInternalServerError)
	}))

	switch i.desc.Mode {
	case domain.ModeStatic:
		engine.NoRoute(gin.WrapH(http.FileServer(http.Dir(i.desc.StaticDir))))
	default:
		engine.NoRoute(i.handleSimple)
	}
	return engine
}

// handleSimple answers any method and path with the fixed greeting, then
// emits the request event
func (i *Instance) handleSimple(c *gin.Context) {
	c.String(http.StatusOK, "Hello from server on port %d", i.desc.Port)

	if i.publish == nil {
		return
	}
	i.publish(domain.Event{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Port:       i.desc.Port,
		Instance:   i.id,
		ServerName: i.desc.Name,
		Text:       DescribeRequest(c.Request),
	})
}

// DescribeRequest renders a request as "<METHOD> <uri> from <ip>:<port>"
func DescribeRequest(r *http.Request) string {
	client := r.RemoteAddr
	if host, port, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		client = host + ":" + port
	}
	return fmt.Sprintf("%s %s from %s", r.Method, r.URL.RequestURI(), client)
}

func (i *Instance) serve() {
	defer close(i.done)

	err := i.srv.Serve(i.ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		i.serveErr = err
		i.logger.Error("Listener stopped unexpectedly", zap.Error(err))
		return
	}
	i.logger.Debug("Listener serve loop exited")
}

// Stop closes the listening socket and waits for in-flight requests, bounded by
// the grace period and ctx. When the bound is exceeded the remaining connections
// are force-closed and a *domain.StopTimeoutError is returned. Stop is idempotent.
func (i *Instance) Stop(ctx context.Context) error {
	i.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, i.grace)
		defer cancel()

		if err := i.srv.Shutdown(ctx); err != nil {
			_ = i.srv.Close()
			i.stopErr = &domain.StopTimeoutError{Port: i.desc.Port, GracePeriod: i.grace, Err: err}
			i.logger.Warn("Listener did not stop gracefully, forced close", zap.Error(err))
			return
		}
		i.logger.Info("Listener stopped")
	})
	return i.stopErr
}

// Wait blocks until the serve goroutine has exited, bounded by the grace period and ctx
func (i *Instance) Wait(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, i.grace)
	defer cancel()

	select {
	case <-i.done:
		return nil
	case <-ctx.Done():
		return &domain.StopTimeoutError{Port: i.desc.Port, GracePeriod: i.grace, Err: ctx.Err()}
	}
}

// ID returns the id stamped on the listener's events
func (i *Instance) ID() string {
	return i.id
}

// Descriptor returns the descriptor the listener was started with
func (i *Instance) Descriptor() domain.ServerDescriptor {
	return i.desc
}

// Addr returns the bound address
func (i *Instance) Addr() net.Addr {
	return i.ln.Addr()
}

// Done is closed once the serve loop has exited
func (i *Instance) Done() <-chan struct{} {
	return i.done
}

// Running reports whether the serve loop is still active
func (i *Instance) Running() bool {
	select {
	case <-i.done:
		return false
	default:
		return true
	}
}

// Err returns the error that ended the serve loop, if it ended abnormally
func (i *Instance) Err() error {
	select {
	case <-i.done:
		return i.serveErr
	default:
		return nil
	}
}
