// Package events carries request events from listener goroutines to the
// single consumer that records and forwards them.
package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-listener-manager/internal/domain"
)

// ErrClosed is returned by Sync once the router has been closed
var ErrClosed = errors.New("event router closed")

// Sink consumes events in publication order
type Sink func(domain.Event)

// Router is a FIFO hand-off between publishers and one sink.
//
// Publish never blocks on the sink and never drops an event: events are queued
// without bound and delivered by a single dispatcher goroutine, which keeps the
// per-port order intact. Events published before a sink is subscribed are held.
type Router struct {
	logger *zap.Logger

	mu        sync.Mutex
	queue     []domain.Event
	sink      Sink
	published uint64
	delivered uint64
	closed    bool

	wake     chan struct{}
	progress *sync.Cond
	done     chan struct{}
}

// NewRouter creates a router and starts its dispatcher
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		logger: logger.Named("events"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	r.progress = sync.NewCond(&r.mu)
	go r.dispatch()
	return r
}

// Subscribe registers the sink. A second call replaces the previous sink.
func (r *Router) Subscribe(sink Sink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
	r.signal()
}

// Publish queues an event for delivery. It is safe to call from any goroutine.
func (r *Router) Publish(event domain.Event) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("Dropping event published after close",
			zap.Int("port", event.Port), zap.String("event_id", event.ID))
		return
	}
	r.queue = append(r.queue, event)
	r.published++
	r.mu.Unlock()
	r.signal()
}

// Pending returns the number of events not yet delivered
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Sync blocks until every event published before the call has been delivered
// to the sink, or ctx is done.
func (r *Router) Sync(ctx context.Context) error {
	r.mu.Lock()
	target := r.published
	if r.delivered >= target {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	reached := make(chan struct{})
	go func() {
		r.mu.Lock()
		for r.delivered < target && !r.stopped() && ctx.Err() == nil {
			r.progress.Wait()
		}
		r.mu.Unlock()
		close(reached)
	}()

	select {
	case <-reached:
	case <-ctx.Done():
		// wake the waiter so it observes ctx and exits
		r.mu.Lock()
		r.progress.Broadcast()
		r.mu.Unlock()
		<-reached
		return ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.delivered < target {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrClosed
	}
	return nil
}

// Close delivers the events already queued, then stops the dispatcher.
// Events queued while no sink is subscribed are discarded.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.signal()
	<-r.done
}

func (r *Router) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// stopped reports whether the dispatcher has exited. Callers hold r.mu.
func (r *Router) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Router) dispatch() {
	defer func() {
		r.mu.Lock()
		if n := len(r.queue); n > 0 {
			r.logger.Warn("Discarding undelivered events", zap.Int("count", n))
			r.queue = nil
		}
		close(r.done)
		r.progress.Broadcast()
		r.mu.Unlock()
	}()

	for {
		r.mu.Lock()
		for len(r.queue) > 0 && r.sink != nil {
			event := r.queue[0]
			r.queue[0] = domain.Event{}
			r.queue = r.queue[1:]
			sink := r.sink
			r.mu.Unlock()

			r.deliver(sink, event)

			r.mu.Lock()
			r.delivered++
			r.progress.Broadcast()
		}
		closed := r.closed
		r.mu.Unlock()

		if closed {
			return
		}
		<-r.wake
	}
}

// deliver calls the sink, containing any panic so one bad event cannot stop
// the dispatcher
func (r *Router) deliver(sink Sink, event domain.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Event sink panicked",
				zap.Any("panic", rec), zap.Int("port", event.Port), zap.String("event_id", event.ID))
		}
	}()
	sink(event)
}
