package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/eventring/internal/application/processor"
	"github.com/aescanero/eventring/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultName is used when Config.Name is empty.
const DefaultName = "ringBufferAppEventPublisher"

var (
	// ErrNotRunning is returned by PublishEvent while the publisher is stopped.
	ErrNotRunning = processor.ErrNotRunning

	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("invalid publisher config")
)

// Config holds publisher configuration
type Config struct {
	Name            string
	Backlog         int
	AutoStartup     bool
	Phase           int
	DeliveryTimeout time.Duration
}

// Publisher is a lifecycle-managed event publisher backed by a ring processor.
type Publisher struct {
	cfg       Config
	deliverer ports.Deliverer
	logger    *zap.Logger
	metrics   ports.MetricsCollector

	mu      sync.Mutex
	running bool
	starts  uint64
	proc    *processor.Processor
	lastErr error
}

// Status represents the publisher state
type Status struct {
	Running     bool            `json:"running"`
	AutoStartup bool            `json:"auto_startup"`
	Phase       int             `json:"phase"`
	LastError   string          `json:"last_error,omitempty"`
	Processor   processor.Stats `json:"processor"`
}

// New creates a publisher and starts it when cfg.AutoStartup is set.
func New(cfg Config, deliverer ports.Deliverer, logger *zap.Logger, metrics ports.MetricsCollector) (*Publisher, error) {
	if cfg.Backlog <= 0 {
		return nil, fmt.Errorf("%w: backlog must be positive, got %d", ErrInvalidConfig, cfg.Backlog)
	}
	if deliverer == nil {
		return nil, fmt.Errorf("%w: deliverer is required", ErrInvalidConfig)
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	p := &Publisher{
		cfg:       cfg,
		deliverer: deliverer,
		logger:    logger,
		metrics:   metrics,
	}

	proc, err := p.newProcessor()
	if err != nil {
		return nil, err
	}
	p.proc = proc

	if cfg.AutoStartup {
		if err := p.Start(); err != nil {
			return nil, fmt.Errorf("failed to auto-start publisher: %w", err)
		}
	}

	return p, nil
}

// Name returns the publisher name.
func (p *Publisher) Name() string {
	return p.cfg.Name
}

// Start binds the forwarding subscriber and begins delivery. Calling Start on a
// running publisher does nothing.
func (p *Publisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	if p.proc.Closed() {
		proc, err := p.newProcessor()
		if err != nil {
			return err
		}
		// The old processor may still be draining; delivery stays in order.
		proc.Follow(p.proc)
		p.proc = proc
	}

	if err := p.proc.Subscribe(&forwarder{publisher: p, proc: p.proc}); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	p.running = true
	p.starts++
	p.lastErr = nil
	p.metrics.SetRunning(p.cfg.Name, true)

	p.logger.Info("event publisher started",
		zap.String("name", p.cfg.Name),
		zap.Int("backlog", p.proc.Stats().Capacity),
		zap.Int("phase", p.cfg.Phase))
	return nil
}

// Stop is StopWithCallback(nil).
func (p *Publisher) Stop() {
	p.StopWithCallback(nil)
}

// StopWithCallback signals completion to the processor, runs callback, then
// marks the publisher stopped. The callback runs as soon as completion is
// signaled, before the backlog has drained; use Wait to block on the drain.
// A Start that happens after the stop began is left running.
func (p *Publisher) StopWithCallback(callback func()) {
	p.mu.Lock()
	proc := p.proc
	starts := p.starts
	wasRunning := p.running
	p.mu.Unlock()

	if wasRunning {
		proc.Complete()
	}

	if callback != nil {
		callback()
	}

	p.mu.Lock()
	stopped := p.starts == starts && p.proc == proc
	if stopped {
		p.running = false
	}
	p.mu.Unlock()
	if stopped {
		p.metrics.SetRunning(p.cfg.Name, false)
	}

	if wasRunning {
		p.logger.Info("event publisher stopping",
			zap.String("name", p.cfg.Name),
			zap.Int("backlog", proc.Stats().Backlog))
	}
}

// IsRunning reports whether the publisher accepts events.
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// IsAutoStartup reports whether the publisher starts itself on construction.
func (p *Publisher) IsAutoStartup() bool {
	return p.cfg.AutoStartup
}

// Phase orders this component against other lifecycle-managed components.
func (p *Publisher) Phase() int {
	return p.cfg.Phase
}

// PublishEvent admits event for delivery, blocking while the ring is full.
// Missing IDs and timestamps are filled in.
func (p *Publisher) PublishEvent(ctx context.Context, event ports.Event) error {
	proc, err := p.accepting()
	if err != nil {
		return err
	}
	return proc.Publish(ctx, p.stamp(event))
}

// TryPublishEvent is PublishEvent without blocking; it returns
// processor.ErrWouldBlock when the ring is full.
func (p *Publisher) TryPublishEvent(event ports.Event) error {
	proc, err := p.accepting()
	if err != nil {
		return err
	}
	return proc.TryPublish(p.stamp(event))
}

// Wait blocks until the current processor has drained after a stop, or until
// ctx ends.
func (p *Publisher) Wait(ctx context.Context) error {
	p.mu.Lock()
	proc := p.proc
	p.mu.Unlock()

	select {
	case <-proc.Done():
		return proc.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current publisher state.
func (p *Publisher) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		Running:     p.running,
		AutoStartup: p.cfg.AutoStartup,
		Phase:       p.cfg.Phase,
		Processor:   p.proc.Stats(),
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

func (p *Publisher) accepting() (*processor.Processor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		p.metrics.RecordRejected(p.cfg.Name, "stopped")
		return nil, ErrNotRunning
	}
	return p.proc, nil
}

func (p *Publisher) stamp(event ports.Event) ports.Event {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Source == "" {
		event.Source = p.cfg.Name
	}
	return event
}

func (p *Publisher) newProcessor() (*processor.Processor, error) {
	proc, err := processor.New(p.cfg.Name, p.cfg.Backlog, p.logger, p.metrics)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return proc, nil
}

// failed moves the publisher to the stopped state after proc's subscriber
// failed. A stale processor does not affect a restarted publisher.
func (p *Publisher) failed(proc *processor.Processor, err error) {
	p.mu.Lock()
	current := p.proc == proc
	if current {
		p.running = false
		p.lastErr = err
	}
	p.mu.Unlock()

	if current {
		p.metrics.SetRunning(p.cfg.Name, false)
	}
}

// forwarder is the default subscriber: it hands each event to the deliverer.
type forwarder struct {
	publisher *Publisher
	proc      *processor.Processor
}

func (f *forwarder) OnSubscribe(s processor.Subscription) {
	s.Request(processor.Unbounded)
}

func (f *forwarder) OnNext(event ports.Event) error {
	ctx := context.Background()
	if timeout := f.publisher.cfg.DeliveryTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return f.publisher.deliverer.Deliver(ctx, event)
}

func (f *forwarder) OnError(err error) {
	f.publisher.logger.Error("event delivery failed, publisher stopped",
		zap.String("name", f.publisher.cfg.Name),
		zap.Error(err))
	f.publisher.failed(f.proc, err)
}

func (f *forwarder) OnComplete() {
	f.publisher.logger.Debug("event publisher has shutdown",
		zap.String("name", f.publisher.cfg.Name))
}
