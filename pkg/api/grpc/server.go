package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PublisherService is the health service name reported for the publisher.
const PublisherService = "eventring.Publisher"

// RunningChecker reports whether the publisher accepts events.
type RunningChecker interface {
	IsRunning() bool
}

// Server represents the gRPC API server
type Server struct {
	server    *grpc.Server
	listener  net.Listener
	health    *health.Server
	publisher RunningChecker
	interval  time.Duration
	logger    *zap.Logger
	stopCh    chan struct{}
}

// Config holds gRPC server configuration
type Config struct {
	Port      int
	Publisher RunningChecker
	Logger    *zap.Logger

	// Listener overrides Port when set.
	Listener net.Listener

	// SyncInterval is how often the health status follows the publisher.
	SyncInterval time.Duration
}

// NewServer creates a new gRPC server exposing the standard health service.
func NewServer(cfg *Config) (*Server, error) {
	listener := cfg.Listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
		if err != nil {
			return nil, fmt.Errorf("failed to create listener: %w", err)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	interval := cfg.SyncInterval
	if interval <= 0 {
		interval = time.Second
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	s := &Server{
		server:    grpcServer,
		listener:  listener,
		health:    healthServer,
		publisher: cfg.Publisher,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
	s.SyncHealth()

	return s, nil
}

// SyncHealth sets the serving status from the publisher's running state
func (s *Server) SyncHealth() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.publisher != nil && s.publisher.IsRunning() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(PublisherService, status)
}

// Start starts the gRPC server
func (s *Server) Start() error {
	s.logger.Info("starting gRPC server", zap.String("addr", s.listener.Addr().String()))

	go s.syncLoop()

	if err := s.server.Serve(s.listener); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}

	return nil
}

func (s *Server) syncLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.SyncHealth()
		}
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gRPC server")

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("gRPC graceful stop: %w", ctx.Err())
	}

	s.logger.Info("gRPC server shut down complete")
	return nil
}
