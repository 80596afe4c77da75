package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/eventring/pkg/ports"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Listener receives events delivered to the application context.
type Listener func(ctx context.Context, event ports.Event) error

// Context is an in-process application context: Deliver hands each event to
// every registered listener, synchronously and in registration order.
type Context struct {
	listeners map[uint64]Listener
	nextID    uint64
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewContext creates an empty application context
func NewContext(logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		listeners: make(map[uint64]Listener),
		logger:    logger,
	}
}

// Deliver implements ports.Deliverer. Listener errors are combined and
// returned after every listener has seen the event.
func (c *Context) Deliver(ctx context.Context, event ports.Event) error {
	c.mu.RLock()
	ids := make([]uint64, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, c.listeners[id])
	}
	c.mu.RUnlock()

	var errs error
	for _, l := range listeners {
		if err := l(ctx, event); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return fmt.Errorf("listener failed for event %s: %w", event.ID, errs)
	}

	c.logger.Debug("event delivered",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.Int("listeners", len(listeners)))
	return nil
}

// AddListener registers a listener until ctx is cancelled. The returned function
// removes it earlier.
func (c *Context) AddListener(ctx context.Context, listener Listener) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = listener
	c.mu.Unlock()

	var once sync.Once
	remove := func() {
		once.Do(func() { c.removeListener(id) })
	}

	// Clean up the listener on context cancellation
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			remove()
		}()
	}

	return remove
}

// ListenerCount returns the number of registered listeners
func (c *Context) ListenerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners)
}

// Close removes every listener
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners = make(map[uint64]Listener)
	return nil
}

func (c *Context) removeListener(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
}
