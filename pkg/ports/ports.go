// Package ports defines the interfaces between the event publisher core and the
// surrounding application.
package ports

import (
	"context"
	"time"
)

// Event is the payload carried through the ring. It is treated as immutable once
// published.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Deliverer hands an event to the surrounding application. The publisher calls
// it from its consumption goroutine; a returned error ends the subscription.
type Deliverer interface {
	Deliver(ctx context.Context, event Event) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, event Event) error

// Deliver calls f(ctx, event).
func (f DelivererFunc) Deliver(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// MetricsCollector records publisher activity.
type MetricsCollector interface {
	RecordPublished(processor string)
	RecordRejected(processor, reason string)
	RecordDelivered(processor string, duration time.Duration)
	RecordDeliveryFailed(processor string)
	SetBacklog(processor string, backlog, capacity int)
	SetRunning(processor string, running bool)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordPublished(string)                {}
func (NopMetrics) RecordRejected(string, string)         {}
func (NopMetrics) RecordDelivered(string, time.Duration) {}
func (NopMetrics) RecordDeliveryFailed(string)           {}
func (NopMetrics) SetBacklog(string, int, int)           {}
func (NopMetrics) SetRunning(string, bool)               {}
