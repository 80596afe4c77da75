package processor

import (
	"fmt"
	"sync/atomic"

	"github.com/aescanero/eventring/pkg/ports"
)

// Subscriber consumes events from a Processor. All methods except OnSubscribe
// are called from the consumption goroutine.
type Subscriber interface {
	OnSubscribe(s Subscription)
	OnNext(event ports.Event) error
	OnError(err error)
	OnComplete()
}

// Subscription is handed to a Subscriber in OnSubscribe. Events only flow after
// Request; any positive amount grants unbounded demand.
type Subscription interface {
	Request(n int64)
	Cancel()
}

// SubscriberFuncs builds a Subscriber from optional callbacks. A nil
// OnSubscribeFunc requests unbounded demand.
type SubscriberFuncs struct {
	OnSubscribeFunc func(s Subscription)
	OnNextFunc      func(event ports.Event) error
	OnErrorFunc     func(err error)
	OnCompleteFunc  func()
}

func (f SubscriberFuncs) OnSubscribe(s Subscription) {
	if f.OnSubscribeFunc == nil {
		s.Request(Unbounded)
		return
	}
	f.OnSubscribeFunc(s)
}

func (f SubscriberFuncs) OnNext(event ports.Event) error {
	if f.OnNextFunc == nil {
		return nil
	}
	return f.OnNextFunc(event)
}

func (f SubscriberFuncs) OnError(err error) {
	if f.OnErrorFunc != nil {
		f.OnErrorFunc(err)
	}
}

func (f SubscriberFuncs) OnComplete() {
	if f.OnCompleteFunc != nil {
		f.OnCompleteFunc()
	}
}

// Unbounded is the demand a subscriber requests to receive every event.
const Unbounded int64 = 1<<63 - 1

// subscription binds one Subscriber to its processor.
type subscription struct {
	p          *Processor
	subscriber Subscriber
	demanded   atomic.Bool
	cancelled  atomic.Bool
}

func (s *subscription) Request(n int64) {
	if s.cancelled.Load() {
		return
	}
	if n <= 0 {
		s.Cancel()
		s.subscriber.OnError(fmt.Errorf("%w: %d", ErrInvalidDemand, n))
		return
	}
	if s.demanded.CompareAndSwap(false, true) {
		s.p.wakeup()
	}
}

func (s *subscription) Cancel() {
	if s.cancelled.CompareAndSwap(false, true) {
		s.p.detach(s)
	}
}

func (s *subscription) active() bool {
	return s.demanded.Load() && !s.cancelled.Load()
}

// next delivers one event, converting a panic into an error.
func (s *subscription) next(event ports.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSubscriberPanic, r)
		}
	}()
	return s.subscriber.OnNext(event)
}
