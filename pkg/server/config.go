package server

import (
	"fmt"
	"time"

	"github.com/ethpandaops/execution-simulator/pkg/ethereum"
	"github.com/ethpandaops/execution-simulator/pkg/redis"
	"github.com/ethpandaops/execution-simulator/pkg/simulator"
)

type Config struct {
	// MetricsAddr is the address to listen on for metrics.
	MetricsAddr string `yaml:"metricsAddr" default:":9090"`
	// HealthCheckAddr is the address to listen on for healthcheck.
	HealthCheckAddr *string `yaml:"healthCheckAddr"`
	// PProfAddr is the address to listen on for pprof.
	PProfAddr *string `yaml:"pprofAddr"`
	// APIAddr is the address to listen on for the simulation API.
	APIAddr string `yaml:"apiAddr" default:":8080"`
	// LoggingLevel is the logging level to use.
	LoggingLevel string `yaml:"logging" default:"info"`
	// Ethereum is the ethereum network configuration.
	Ethereum ethereum.Config `yaml:"ethereum"`
	// Redis is the optional shared state cache.
	Redis *redis.Config `yaml:"redis"`
	// Simulator holds the engine limits.
	Simulator simulator.Config `yaml:"simulator"`
	// MemoryMonitor configures the runtime memory collector.
	MemoryMonitor MemoryMonitorConfig `yaml:"memoryMonitor"`
	// ShutdownTimeout is the timeout for shutting down the server.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
}

func (c *Config) Validate() error {
	if c.APIAddr == "" {
		return fmt.Errorf("apiAddr is required")
	}

	if c.Redis != nil {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("invalid redis configuration: %w", err)
		}
	}

	if err := c.Ethereum.Validate(); err != nil {
		return fmt.Errorf("invalid ethereum configuration: %w", err)
	}

	if err := c.Simulator.Validate(); err != nil {
		return fmt.Errorf("invalid simulator configuration: %w", err)
	}

	if err := c.MemoryMonitor.Validate(); err != nil {
		return fmt.Errorf("invalid memory monitor configuration: %w", err)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdownTimeout must be greater than 0")
	}

	return nil
}
