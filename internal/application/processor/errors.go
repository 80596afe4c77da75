package processor

import (
	"errors"
	"fmt"

	"github.com/aescanero/eventring/internal/ring"
)

var (
	// ErrNotRunning is returned when the processor no longer accepts events or
	// subscribers.
	ErrNotRunning = errors.New("processor not accepting events")

	// ErrWouldBlock is returned by TryPublish when the ring is full.
	ErrWouldBlock = ring.ErrWouldBlock

	// ErrInvalidDemand is signaled to a subscriber requesting a non-positive amount.
	ErrInvalidDemand = errors.New("processor: requested demand must be positive")

	// ErrNoSubscriber ends the consumption loop when completion is signaled while
	// no subscriber has requested events.
	ErrNoSubscriber = errors.New("processor: completed without an active subscriber")

	// ErrSubscriberPanic wraps a panic recovered from OnNext.
	ErrSubscriberPanic = errors.New("processor: subscriber panicked")
)

// DeliveryError reports the event sequence whose delivery failed.
type DeliveryError struct {
	Sequence ring.Sequence
	EventID  string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery of event %s (sequence %d) failed: %v", e.EventID, e.Sequence, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
