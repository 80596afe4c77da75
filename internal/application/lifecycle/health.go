package lifecycle

import (
	"sync"
	"time"

	"github.com/aescanero/eventring/pkg/ports"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// HighWatermark is the backlog ratio above which the monitor warns.
const HighWatermark = 0.8

// HealthMonitor monitors publisher health
type HealthMonitor struct {
	publisher *Publisher
	interval  time.Duration
	clock     clock.Clock
	metrics   ports.MetricsCollector
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// HealthStatus represents the health status of the publisher
type HealthStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Backlog   int       `json:"backlog"`
	Capacity  int       `json:"capacity"`
	Delivered uint64    `json:"delivered"`
	Failed    uint64    `json:"failed"`
	Healthy   bool      `json:"healthy"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthMonitor creates a new health monitor. A nil clock uses wall time.
func NewHealthMonitor(publisher *Publisher, interval time.Duration, clk clock.Clock, metrics ports.MetricsCollector, logger *zap.Logger) *HealthMonitor {
	if clk == nil {
		clk = clock.New()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthMonitor{
		publisher: publisher,
		interval:  interval,
		clock:     clk,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start starts the health monitor
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})

	ticker := h.clock.Ticker(h.interval)
	go h.run(ticker, h.stopCh, h.doneCh)
}

// Stop stops the health monitor and waits for the loop to exit
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	stopCh, doneCh := h.stopCh, h.doneCh
	h.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// run is the main health monitoring loop
func (h *HealthMonitor) run(ticker *clock.Ticker, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			h.checkHealth()
		}
	}
}

// checkHealth records publisher state and logs it
func (h *HealthMonitor) checkHealth() {
	status := h.GetStatus()

	h.logger.Debug("event publisher health check",
		zap.String("name", status.Name),
		zap.Bool("running", status.Running),
		zap.Int("backlog", status.Backlog),
		zap.Int("capacity", status.Capacity),
		zap.Uint64("delivered", status.Delivered),
		zap.Bool("healthy", status.Healthy))

	h.metrics.SetBacklog(status.Name, status.Backlog, status.Capacity)
	h.metrics.SetRunning(status.Name, status.Running)

	if !status.Running {
		h.logger.Warn("event publisher is not running",
			zap.String("name", status.Name),
			zap.Uint64("failed", status.Failed))
		return
	}

	if status.Capacity > 0 && float64(status.Backlog) >= HighWatermark*float64(status.Capacity) {
		h.logger.Warn("event publisher backlog is high - producers will block when it is full",
			zap.String("name", status.Name),
			zap.Int("backlog", status.Backlog),
			zap.Int("capacity", status.Capacity))
	}
}

// GetStatus returns the current health status
func (h *HealthMonitor) GetStatus() *HealthStatus {
	st := h.publisher.Status()

	return &HealthStatus{
		Name:      h.publisher.Name(),
		Running:   st.Running,
		Backlog:   st.Processor.Backlog,
		Capacity:  st.Processor.Capacity,
		Delivered: st.Processor.Delivered,
		Failed:    st.Processor.Failed,
		Healthy:   st.Running && st.LastError == "",
		Timestamp: h.clock.Now(),
	}
}

// IsHealthy returns true if the publisher is healthy
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
