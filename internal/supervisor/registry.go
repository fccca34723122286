// Package supervisor owns the set of running listeners, keyed by port.
//
// The Registry is the only component allowed to start or stop a listener. It
// creates the port's log store before the listener starts and drops it after
// the listener has been joined, and it is the single subscriber of the event
// router: every event is appended to its port's log before consumers are
// notified.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-listener-manager/internal/domain"
	"github.com/sirosfoundation/go-listener-manager/internal/events"
	"github.com/sirosfoundation/go-listener-manager/internal/listener"
	"github.com/sirosfoundation/go-listener-manager/internal/logstore"
)

// Notifier receives every event after it has been recorded in its port's log
type Notifier func(domain.Event)

// Options configures a Registry
type Options struct {
	Router *events.Router
	Logs   *logstore.Store
	// Listener holds the settings shared by every listener. Its Publish and
	// Logger fields are set by the registry.
	Listener listener.Options
	// Notify is optional
	Notify Notifier
	Logger *zap.Logger
}

type entry struct {
	desc domain.ServerDescriptor
	inst *listener.Instance
}

// Registry maps ports to running listeners
type Registry struct {
	router     *events.Router
	logs       *logstore.Store
	listenOpts listener.Options
	notify     Notifier
	logger     *zap.Logger

	mu      sync.RWMutex
	entries map[int]*entry
	order   []int

	// owners maps a port to the instance id whose events it accepts. It has
	// its own lock because record runs while Close holds mu.
	ownersMu sync.Mutex
	owners   map[int]string
}

// New creates a registry and subscribes it to the router
func New(opts Options) (*Registry, error) {
	if opts.Router == nil {
		return nil, errors.New("supervisor: router is required")
	}
	if opts.Logs == nil {
		return nil, errors.New("supervisor: log store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		router:     opts.Router,
		logs:       opts.Logs,
		listenOpts: opts.Listener,
		notify:     opts.Notify,
		logger:     logger.Named("supervisor"),
		entries:    make(map[int]*entry),
		owners:     make(map[int]string),
	}
	r.listenOpts.Publish = r.router.Publish
	r.listenOpts.Logger = logger.Named("listener")

	r.router.Subscribe(r.record)
	return r, nil
}

// record is the router sink. It runs on the dispatcher goroutine and must
// never take the registry lock.
func (r *Registry) record(event domain.Event) {
	if !r.owns(event) {
		r.logger.Debug("Dropping event of a previous listener",
			zap.Int("port", event.Port), zap.String("instance", event.Instance))
		return
	}
	if err := r.logs.Append(event.Port, event.Line()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.Debug("Dropping event for inactive port",
				zap.Int("port", event.Port), zap.String("event_id", event.ID))
			return
		}
		r.logger.Warn("Failed to write request log",
			zap.Int("port", event.Port), zap.Error(err))
	}
	if r.notify != nil {
		r.notify(event)
	}
}

func (r *Registry) owns(event domain.Event) bool {
	r.ownersMu.Lock()
	defer r.ownersMu.Unlock()
	return r.owners[event.Port] == event.Instance
}

func (r *Registry) setOwner(port int, id string) {
	r.ownersMu.Lock()
	defer r.ownersMu.Unlock()
	if id == "" {
		delete(r.owners, port)
		return
	}
	r.owners[port] = id
}

// Open validates desc, binds its port and starts serving. On failure the
// registry is left unchanged.
func (r *Registry) Open(desc domain.ServerDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[desc.Port]; ok {
		return fmt.Errorf("%w: port %d is used by %q", domain.ErrDuplicatePort, desc.Port, existing.desc.Name)
	}

	r.logs.Open(desc.Port)

	opts := r.listenOpts
	opts.ID = uuid.NewString()
	r.setOwner(desc.Port, opts.ID)

	inst, err := listener.Start(desc, opts)
	if err != nil {
		r.setOwner(desc.Port, "")
		r.logs.Drop(desc.Port)
		r.logger.Warn("Failed to open server",
			zap.String("name", desc.Name), zap.Int("port", desc.Port), zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrBindFailed, err)
	}

	r.entries[desc.Port] = &entry{desc: desc, inst: inst}
	r.order = append(r.order, desc.Port)

	r.logger.Info("Server opened",
		zap.String("name", desc.Name),
		zap.Int("port", desc.Port),
		zap.String("mode", string(desc.Mode)))
	return nil
}

// Close stops the listener on port, waits for its serve loop to exit and
// removes it. A stop that exceeds the grace period is reported, but the
// listener has been force-closed and the port is removed all the same.
func (r *Registry) Close(ctx context.Context, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[port]
	if !ok {
		return fmt.Errorf("port %d: %w", port, domain.ErrNotFound)
	}

	var errs error
	if err := e.inst.Stop(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := e.inst.Wait(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}

	// Let events still in the router reach the log before it is dropped
	syncCtx, cancel := context.WithTimeout(ctx, r.gracePeriod())
	if err := r.router.Sync(syncCtx); err != nil {
		r.logger.Warn("Events still pending after close", zap.Int("port", port), zap.Error(err))
	}
	cancel()

	r.setOwner(port, "")
	r.logs.Drop(port)
	delete(r.entries, port)
	r.removeFromOrder(port)

	if errs != nil {
		r.logger.Warn("Server closed with errors",
			zap.String("name", e.desc.Name), zap.Int("port", port), zap.Error(errs))
		return fmt.Errorf("close port %d: %w", port, errs)
	}

	r.logger.Info("Server closed", zap.String("name", e.desc.Name), zap.Int("port", port))
	return nil
}

func (r *Registry) gracePeriod() time.Duration {
	if r.listenOpts.GracePeriod > 0 {
		return r.listenOpts.GracePeriod
	}
	return listener.DefaultGracePeriod
}

func (r *Registry) removeFromOrder(port int) {
	for i, p := range r.order {
		if p == port {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// List returns the active descriptors in the order they were opened
func (r *Registry) List() []domain.ServerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ServerDescriptor, 0, len(r.order))
	for _, port := range r.order {
		out = append(out, r.entries[port].desc)
	}
	return out
}

// Get returns the descriptor active on port
func (r *Registry) Get(port int) (domain.ServerDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[port]
	if !ok {
		return domain.ServerDescriptor{}, false
	}
	return e.desc, true
}

// Len returns the number of active servers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ShutdownAll closes every active server, continuing past failures.
// The failures are combined into the returned error.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	var errs error
	for _, desc := range r.List() {
		if err := r.Close(ctx, desc.Port); err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// SkippedServer is a descriptor Restore could not open
type SkippedServer struct {
	Descriptor domain.ServerDescriptor
	Reason     error
}

// RestoreResult reports what Restore did
type RestoreResult struct {
	Restored []domain.ServerDescriptor
	Skipped  []SkippedServer
}

// Restore opens each persisted descriptor after filling its defaults. Entries
// that fail (busy port, already active, invalid record) are skipped.
func (r *Registry) Restore(ctx context.Context, descs []domain.ServerDescriptor) RestoreResult {
	var result RestoreResult
	for _, d := range descs {
		if ctx.Err() != nil {
			result.Skipped = append(result.Skipped, SkippedServer{Descriptor: d, Reason: ctx.Err()})
			continue
		}

		desc := d.Normalize()
		if err := r.Open(desc); err != nil {
			r.logger.Warn("Skipping persisted server",
				zap.String("name", desc.Name), zap.Int("port", desc.Port), zap.Error(err))
			result.Skipped = append(result.Skipped, SkippedServer{Descriptor: desc, Reason: err})
			continue
		}
		result.Restored = append(result.Restored, desc)
	}

	r.logger.Info("Restore finished",
		zap.Int("restored", len(result.Restored)), zap.Int("skipped", len(result.Skipped)))
	return result
}
