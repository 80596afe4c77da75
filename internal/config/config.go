package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the event publisher service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"EVENTRING_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"EVENTRING_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Publisher configuration
	Publisher PublisherConfig

	// Delivery target configuration
	Delivery DeliveryConfig

	// Redis configuration
	Redis RedisConfig

	// Health monitoring
	HealthCheckInterval time.Duration `env:"HEALTH_CHECK_INTERVAL" envDefault:"30s"`

	// Timeouts
	Timeouts TimeoutConfig
}

// PublisherConfig holds ring-buffer publisher configuration
type PublisherConfig struct {
	Name        string `env:"EVENTRING_NAME" envDefault:"ringBufferAppEventPublisher"`
	Backlog     int    `env:"EVENTRING_BACKLOG" envDefault:"1024"`
	AutoStartup bool   `env:"EVENTRING_AUTO_STARTUP" envDefault:"true"`
	Phase       int    `env:"EVENTRING_PHASE" envDefault:"0"`
}

// DeliveryConfig selects where delivered events go
type DeliveryConfig struct {
	// Deliverer is "memory" (in-process listeners) or "redis" (Redis stream)
	Deliverer string `env:"EVENTRING_DELIVERER" envDefault:"memory"`

	Stream       string `env:"EVENTRING_STREAM" envDefault:"eventring:events"`
	StreamMaxLen int64  `env:"EVENTRING_STREAM_MAXLEN" envDefault:"100000"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	DeliveryTimeout time.Duration `env:"TIMEOUT_DELIVERY" envDefault:"10s"`
	PublishTimeout  time.Duration `env:"TIMEOUT_PUBLISH" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate publisher config
	if c.Publisher.Backlog < 1 {
		return fmt.Errorf("publisher backlog must be at least 1, got %d", c.Publisher.Backlog)
	}

	// Validate delivery config
	switch c.Delivery.Deliverer {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis deliverer")
		}
		if c.Delivery.Stream == "" {
			return fmt.Errorf("stream name is required for the redis deliverer")
		}
	default:
		return fmt.Errorf("unsupported deliverer: %s (must be memory or redis)", c.Delivery.Deliverer)
	}

	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("health check interval must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
