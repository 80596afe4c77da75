package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/eventring/internal/ring"
	"github.com/aescanero/eventring/pkg/ports"
	"go.uber.org/zap"
)

// Processor dispatches published events to a single subscriber through a
// bounded ring.
type Processor struct {
	name    string
	ring    *ring.Buffer[ports.Event]
	logger  *zap.Logger
	metrics ports.MetricsCollector

	// admit serializes producers so claim order equals admission order.
	admit chan struct{}

	mu       sync.Mutex
	sub      *subscription
	started  bool
	after    <-chan struct{}
	err      error
	wake     chan struct{}
	complete chan struct{}
	once     sync.Once
	done     chan struct{}

	delivered atomic.Uint64
	failed    atomic.Uint64
}

// Stats is a point-in-time view of a processor.
type Stats struct {
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	Backlog   int    `json:"backlog"`
	Remaining int    `json:"remaining"`
	Published int64  `json:"published"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Closed    bool   `json:"closed"`
	Finished  bool   `json:"finished"`
}

// New creates a processor with a ring of at least backlog slots.
func New(name string, backlog int, logger *zap.Logger, metrics ports.MetricsCollector) (*Processor, error) {
	rb, err := ring.New[ports.Event](backlog)
	if err != nil {
		return nil, fmt.Errorf("failed to create ring buffer: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	return &Processor{
		name:     name,
		ring:     rb,
		logger:   logger.With(zap.String("processor", name)),
		metrics:  metrics,
		admit:    make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
		complete: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Follow holds back delivery until prev's consumption goroutine has exited, so
// a processor replacing prev never delivers concurrently with it. Producers are
// admitted right away. It must be called before Subscribe.
func (p *Processor) Follow(prev *Processor) {
	if prev == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		p.after = prev.Done()
	}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return p.name
}

// Publish admits an event, blocking while the ring is full. It returns
// ErrNotRunning once Complete was called or the subscriber failed, and
// ctx.Err() if the context ends while waiting for admission.
func (p *Processor) Publish(ctx context.Context, event ports.Event) error {
	select {
	case p.admit <- struct{}{}:
	case <-ctx.Done():
		p.metrics.RecordRejected(p.name, "canceled")
		return ctx.Err()
	}
	defer func() { <-p.admit }()

	seq, err := p.ring.ClaimNext(ctx)
	if err != nil {
		return p.rejected(err)
	}
	return p.publish(seq, event)
}

// TryPublish admits an event only if a slot is free right now.
func (p *Processor) TryPublish(event ports.Event) error {
	select {
	case p.admit <- struct{}{}:
	default:
		p.metrics.RecordRejected(p.name, "would_block")
		return ErrWouldBlock
	}
	defer func() { <-p.admit }()

	seq, err := p.ring.TryClaimNext()
	if err != nil {
		return p.rejected(err)
	}
	return p.publish(seq, event)
}

func (p *Processor) publish(seq ring.Sequence, event ports.Event) error {
	if err := p.ring.Publish(seq, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.metrics.RecordPublished(p.name)
	p.metrics.SetBacklog(p.name, p.ring.Backlog(), p.ring.Capacity())
	return nil
}

func (p *Processor) rejected(err error) error {
	switch {
	case errors.Is(err, ring.ErrClosed):
		p.metrics.RecordRejected(p.name, "closed")
		return ErrNotRunning
	case errors.Is(err, ring.ErrWouldBlock):
		p.metrics.RecordRejected(p.name, "would_block")
		return ErrWouldBlock
	default:
		p.metrics.RecordRejected(p.name, "canceled")
		return err
	}
}

// Subscribe binds s as the only subscriber, cancelling the previous one, and
// starts the consumption goroutine on first use.
func (p *Processor) Subscribe(s Subscriber) error {
	if s == nil {
		return errors.New("subscriber is required")
	}

	p.mu.Lock()
	if p.ring.Closed() || p.terminated() {
		p.mu.Unlock()
		return ErrNotRunning
	}

	prev := p.sub
	sub := &subscription{p: p, subscriber: s}
	p.sub = sub
	startLoop := !p.started
	p.started = true
	p.mu.Unlock()

	if prev != nil {
		prev.cancelled.Store(true)
		p.logger.Debug("previous subscriber replaced")
	}

	s.OnSubscribe(sub)

	if startLoop {
		go p.run()
	}

	p.logger.Debug("subscriber bound", zap.Int("capacity", p.ring.Capacity()))
	return nil
}

// Complete signals that no more events will be published. The subscriber gets
// OnComplete once everything already published was delivered.
func (p *Processor) Complete() {
	p.once.Do(func() {
		p.ring.Close()
		close(p.complete)
		p.mu.Lock()
		if !p.started {
			// Nobody will ever drain the ring.
			p.started = true
			close(p.done)
		}
		p.mu.Unlock()
		p.logger.Debug("completion signaled", zap.Int("backlog", p.ring.Backlog()))
	})
}

// Closed reports whether the processor stopped admitting events, either because
// Complete was called or because the subscriber failed.
func (p *Processor) Closed() bool {
	return p.ring.Closed()
}

// Done is closed when the consumption goroutine has exited.
func (p *Processor) Done() <-chan struct{} {
	return p.done
}

// Err returns the terminal error of the consumption goroutine, if any.
func (p *Processor) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats returns current counters.
func (p *Processor) Stats() Stats {
	return Stats{
		Name:      p.name,
		Capacity:  p.ring.Capacity(),
		Backlog:   p.ring.Backlog(),
		Remaining: p.ring.Remaining(),
		Published: int64(p.ring.Published()),
		Delivered: p.delivered.Load(),
		Failed:    p.failed.Load(),
		Closed:    p.ring.Closed(),
		Finished:  p.terminated(),
	}
}

func (p *Processor) terminated() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// run is the consumption loop.
func (p *Processor) run() {
	defer close(p.done)

	p.mu.Lock()
	after := p.after
	p.mu.Unlock()
	if after != nil {
		<-after
	}

	var next ring.Sequence
	for {
		bound, err := p.ring.WaitFor(next)
		if err != nil {
			p.finish()
			return
		}

		for ; next < bound; next++ {
			sub := p.awaitDemand()
			if sub == nil {
				p.abandon()
				return
			}

			event, err := p.ring.Read(next)
			if err != nil {
				p.fail(sub, &DeliveryError{Sequence: next, Err: err})
				return
			}

			start := time.Now()
			if err := sub.next(event); err != nil {
				p.fail(sub, &DeliveryError{Sequence: next, EventID: event.ID, Err: err})
				return
			}
			p.delivered.Add(1)
			p.metrics.RecordDelivered(p.name, time.Since(start))

			if err := p.ring.Release(next); err != nil {
				p.fail(sub, &DeliveryError{Sequence: next, EventID: event.ID, Err: err})
				return
			}
		}
		p.metrics.SetBacklog(p.name, p.ring.Backlog(), p.ring.Capacity())
	}
}

// awaitDemand returns the bound subscriber once it has requested events, or nil
// if completion was signaled while no subscriber is able to receive.
func (p *Processor) awaitDemand() *subscription {
	for {
		p.mu.Lock()
		sub := p.sub
		p.mu.Unlock()
		if sub != nil && sub.active() {
			return sub
		}

		select {
		case <-p.wake:
		case <-p.complete:
			p.mu.Lock()
			sub = p.sub
			p.mu.Unlock()
			if sub != nil && sub.active() {
				return sub
			}
			return nil
		}
	}
}

func (p *Processor) wakeup() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Processor) detach(s *subscription) {
	p.mu.Lock()
	if p.sub == s {
		p.sub = nil
	}
	p.mu.Unlock()
	p.wakeup()
}

func (p *Processor) current() *subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub
}

func (p *Processor) finish() {
	p.metrics.SetBacklog(p.name, 0, p.ring.Capacity())
	p.logger.Debug("processor drained",
		zap.Uint64("delivered", p.delivered.Load()))

	if sub := p.current(); sub != nil && !sub.cancelled.Load() {
		sub.subscriber.OnComplete()
	}
}

func (p *Processor) fail(sub *subscription, err error) {
	p.ring.Close()
	p.failed.Add(1)
	p.metrics.RecordDeliveryFailed(p.name)

	p.mu.Lock()
	p.err = err
	replacement := p.sub
	p.sub = nil
	p.mu.Unlock()

	p.logger.Error("subscriber failed, processor stopped", zap.Error(err))
	sub.subscriber.OnError(err)

	// The failing event was taken by a subscriber that has since been replaced.
	if replacement != nil && replacement != sub {
		replacement.subscriber.OnError(err)
	}
}

func (p *Processor) abandon() {
	p.mu.Lock()
	p.err = ErrNoSubscriber
	p.mu.Unlock()

	p.logger.Warn("completion signaled without an active subscriber",
		zap.Int("undelivered", p.ring.Backlog()))
}
