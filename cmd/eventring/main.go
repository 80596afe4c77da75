package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aescanero/eventring/internal/application/lifecycle"
	"github.com/aescanero/eventring/internal/config"
	"github.com/aescanero/eventring/internal/supervisor"
	"github.com/aescanero/eventring/pkg/adapters/events/memory"
	"github.com/aescanero/eventring/pkg/adapters/events/redis"
	"github.com/aescanero/eventring/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/eventring/pkg/api/grpc"
	"github.com/aescanero/eventring/pkg/api/http"
	"github.com/aescanero/eventring/pkg/api/websocket"
	"github.com/aescanero/eventring/pkg/ports"
	"github.com/benbjohnson/clock"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting event publisher",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.StartTimeout(cfg.Timeouts.ShutdownTimeout),
		fx.StopTimeout(cfg.Timeouts.ShutdownTimeout),
		fx.Supply(cfg, logger),
		fx.Provide(
			memory.NewContext,
			newDeliverer,
			newMetrics,
			newPublisher,
			newSupervisor,
		),
		fx.Invoke(
			supervisor.Register,
			registerHealthMonitor,
			registerServers,
		),
	)

	app.Run()

	logger.Info("event publisher shut down complete")
}

// newDeliverer always delivers to the in-process application context so
// WebSocket clients see every event. With the redis deliverer, events are
// appended to a Redis stream first.
func newDeliverer(lc fx.Lifecycle, cfg *config.Config, appCtx *memory.Context, logger *zap.Logger) (ports.Deliverer, error) {
	switch cfg.Delivery.Deliverer {
	case "memory":
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return appCtx.Close() }})
		return appCtx, nil
	case "redis":
	default:
		return nil, fmt.Errorf("unknown deliverer %q", cfg.Delivery.Deliverer)
	}

	// Initialize Redis client
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	stream, err := redis.NewStreamsDeliverer(redisClient, cfg.Delivery.Stream, cfg.Delivery.StreamMaxLen, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return multierr.Append(appCtx.Close(), redisClient.Close())
		},
	})

	return ports.DelivererFunc(func(ctx context.Context, event ports.Event) error {
		if err := stream.Deliver(ctx, event); err != nil {
			return err
		}
		return appCtx.Deliver(ctx, event)
	}), nil
}

func newMetrics() *prometheus.Collector {
	return prometheus.NewCollector(nil)
}

func newPublisher(cfg *config.Config, deliverer ports.Deliverer, metrics *prometheus.Collector, logger *zap.Logger) (*lifecycle.Publisher, error) {
	return lifecycle.New(lifecycle.Config{
		Name:            cfg.Publisher.Name,
		Backlog:         cfg.Publisher.Backlog,
		AutoStartup:     cfg.Publisher.AutoStartup,
		Phase:           cfg.Publisher.Phase,
		DeliveryTimeout: cfg.Timeouts.DeliveryTimeout,
	}, deliverer, logger, metrics)
}

func newSupervisor(publisher *lifecycle.Publisher, logger *zap.Logger) *supervisor.Supervisor {
	return supervisor.New(logger, publisher)
}

func registerHealthMonitor(lc fx.Lifecycle, cfg *config.Config, publisher *lifecycle.Publisher, metrics *prometheus.Collector, logger *zap.Logger) {
	monitor := lifecycle.NewHealthMonitor(publisher, cfg.HealthCheckInterval, clock.New(), metrics, logger)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			monitor.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			monitor.Stop()
			return nil
		},
	})
}

func registerServers(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, publisher *lifecycle.Publisher, appCtx *memory.Context, logger *zap.Logger) error {
	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:           cfg.HTTPPort,
		Publisher:      publisher,
		Logger:         logger,
		PublishTimeout: cfg.Timeouts.PublishTimeout,
	})

	// Add WebSocket handler to HTTP server
	httpServer.SetupWebSocket(websocket.NewHandler(appCtx, logger))

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:      cfg.GRPCPort,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := httpServer.Start(); err != nil {
					logger.Error("HTTP server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()

			go func() {
				if err := grpcServer.Start(); err != nil {
					logger.Error("gRPC server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()

			logger.Info("event publisher started",
				zap.Int("http_port", cfg.HTTPPort),
				zap.Int("grpc_port", cfg.GRPCPort),
				zap.Int("backlog", cfg.Publisher.Backlog),
				zap.String("deliverer", cfg.Delivery.Deliverer))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return multierr.Append(
				httpServer.Shutdown(ctx),
				grpcServer.Shutdown(ctx),
			)
		},
	})
	return nil
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
