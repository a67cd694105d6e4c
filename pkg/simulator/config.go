package simulator

import (
	"fmt"
	"time"
)

// Config holds the engine limits.
type Config struct {
	// DefaultGas is the gas limit used when a request does not carry one.
	DefaultGas uint64 `yaml:"defaultGas" default:"30000000"`
	// MaxGas caps the gas limit a request may ask for.
	MaxGas uint64 `yaml:"maxGas" default:"50000000"`
	// MaxCallDepth is the number of nested frames allowed below the root.
	MaxCallDepth int `yaml:"maxCallDepth" default:"1024"`
	// TimeBudget bounds the wall clock time of a single run.
	TimeBudget time.Duration `yaml:"timeBudget" default:"5s"`
	// DeadlineCheckInterval is the number of instructions between deadline checks.
	DeadlineCheckInterval uint64 `yaml:"deadlineCheckInterval" default:"1024"`
	// Trace is the recording budget of the tracers.
	Trace TraceConfig `yaml:"trace"`
}

// TraceConfig bounds trace recording.
type TraceConfig struct {
	MaxInstructions int `yaml:"maxInstructions" default:"100000"`
	MaxStackItems   int `yaml:"maxStackItems" default:"1024"`
	// MaxTraceBytes bounds the recorded size of one instruction trace.
	MaxTraceBytes int `yaml:"maxTraceBytes" default:"16777216"`
	MaxCallNodes  int `yaml:"maxCallNodes" default:"10000"`
}

func (c *Config) Validate() error {
	if c.DefaultGas == 0 {
		return fmt.Errorf("defaultGas must be greater than 0")
	}

	if c.MaxGas != 0 && c.DefaultGas > c.MaxGas {
		return fmt.Errorf("defaultGas %d exceeds maxGas %d", c.DefaultGas, c.MaxGas)
	}

	if c.MaxCallDepth <= 0 || c.MaxCallDepth > 1024 {
		return fmt.Errorf("maxCallDepth must be between 1 and 1024, got %d", c.MaxCallDepth)
	}

	if c.TimeBudget <= 0 {
		return fmt.Errorf("timeBudget must be greater than 0")
	}

	if c.DeadlineCheckInterval == 0 {
		return fmt.Errorf("deadlineCheckInterval must be greater than 0")
	}

	if c.Trace.MaxInstructions < 0 || c.Trace.MaxStackItems < 0 || c.Trace.MaxTraceBytes < 0 || c.Trace.MaxCallNodes < 0 {
		return fmt.Errorf("trace limits must not be negative")
	}

	return nil
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() *Config {
	return &Config{
		DefaultGas:            30_000_000,
		MaxGas:                50_000_000,
		MaxCallDepth:          1024,
		TimeBudget:            5 * time.Second,
		DeadlineCheckInterval: 1024,
		Trace: TraceConfig{
			MaxInstructions: 100_000,
			MaxStackItems:   1024,
			MaxTraceBytes:   16 << 20,
			MaxCallNodes:    10_000,
		},
	}
}
