package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus
type Collector struct {
	eventsPublished *prometheus.CounterVec
	eventsRejected  *prometheus.CounterVec
	eventsDelivered *prometheus.CounterVec
	deliveryFailed  *prometheus.CounterVec
	deliveryTime    *prometheus.HistogramVec
	backlog         *prometheus.GaugeVec
	capacity        *prometheus.GaugeVec
	running         *prometheus.GaugeVec
}

// NewCollector creates a new Prometheus metrics collector registered with reg.
// A nil reg uses the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventring_events_published_total",
				Help: "Total number of events admitted into the ring",
			},
			[]string{"processor"},
		),
		eventsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventring_events_rejected_total",
				Help: "Total number of publish attempts refused",
			},
			[]string{"processor", "reason"},
		),
		eventsDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventring_events_delivered_total",
				Help: "Total number of events delivered to the subscriber",
			},
			[]string{"processor"},
		),
		deliveryFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventring_delivery_failures_total",
				Help: "Total number of subscriber failures",
			},
			[]string{"processor"},
		),
		deliveryTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventring_delivery_duration_seconds",
				Help:    "Time spent delivering a single event",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"processor"},
		),
		backlog: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eventring_backlog",
				Help: "Events published but not yet delivered",
			},
			[]string{"processor"},
		),
		capacity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eventring_capacity",
				Help: "Ring capacity in slots",
			},
			[]string{"processor"},
		),
		running: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eventring_running",
				Help: "1 while the publisher accepts events",
			},
			[]string{"processor"},
		),
	}
}

// RecordPublished increments the count of admitted events
func (c *Collector) RecordPublished(processor string) {
	c.eventsPublished.WithLabelValues(processor).Inc()
}

// RecordRejected increments the count of refused publish attempts
func (c *Collector) RecordRejected(processor, reason string) {
	c.eventsRejected.WithLabelValues(processor, reason).Inc()
}

// RecordDelivered records a successful delivery
func (c *Collector) RecordDelivered(processor string, duration time.Duration) {
	c.eventsDelivered.WithLabelValues(processor).Inc()
	c.deliveryTime.WithLabelValues(processor).Observe(duration.Seconds())
}

// RecordDeliveryFailed increments the count of subscriber failures
func (c *Collector) RecordDeliveryFailed(processor string) {
	c.deliveryFailed.WithLabelValues(processor).Inc()
}

// SetBacklog sets the current backlog and capacity
func (c *Collector) SetBacklog(processor string, backlog, capacity int) {
	c.backlog.WithLabelValues(processor).Set(float64(backlog))
	c.capacity.WithLabelValues(processor).Set(float64(capacity))
}

// SetRunning sets the run-state gauge
func (c *Collector) SetRunning(processor string, running bool) {
	v := 0.0
	if running {
		v = 1
	}
	c.running.WithLabelValues(processor).Set(v)
}
