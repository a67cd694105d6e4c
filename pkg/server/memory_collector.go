package server

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-simulator/pkg/common"
)

const bytesPerMB = 1024 * 1024

// MemoryMonitorConfig controls the runtime memory collector. Instruction
// traces of long runs are the main source of heap growth, so the thresholds
// should sit above trace.maxInstructions worth of entries.
type MemoryMonitorConfig struct {
	Enabled             bool          `yaml:"enabled" default:"true"`
	Interval            time.Duration `yaml:"interval" default:"30s"`
	WarningThresholdMB  uint64        `yaml:"warningThresholdMB" default:"2048"`
	CriticalThresholdMB uint64        `yaml:"criticalThresholdMB" default:"4096"`
}

func (c *MemoryMonitorConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Interval <= 0 {
		return errors.New("memory monitor interval must be positive")
	}

	if c.CriticalThresholdMB < c.WarningThresholdMB {
		return errors.New("memory monitor critical threshold must not be below the warning threshold")
	}

	return nil
}

// MemoryStatsCollector publishes runtime memory statistics periodically.
type MemoryStatsCollector struct {
	log            logrus.FieldLogger
	config         MemoryMonitorConfig
	lastAllocBytes uint64
	maxAllocBytes  uint64
}

// NewMemoryStatsCollector creates a new memory stats collector
func NewMemoryStatsCollector(log logrus.FieldLogger, config MemoryMonitorConfig) *MemoryStatsCollector {
	return &MemoryStatsCollector{
		log:    log.WithField("component", "memory_stats_collector"),
		config: config,
	}
}

// Run collects statistics until ctx is done.
func (m *MemoryStatsCollector) Run(ctx context.Context) {
	if !m.config.Enabled {
		m.log.Info("Memory stats collector is disabled")

		return
	}

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.collectStats()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collectStats()
		}
	}
}

// collectStats returns the pressure level observed, if any.
func (m *MemoryStatsCollector) collectStats() string {
	var memStats runtime.MemStats

	runtime.ReadMemStats(&memStats)

	common.MemoryUsage.WithLabelValues("alloc").Set(float64(memStats.Alloc))
	common.MemoryUsage.WithLabelValues("sys").Set(float64(memStats.Sys))
	common.MemoryUsage.WithLabelValues("heap_alloc").Set(float64(memStats.HeapAlloc))
	common.MemoryUsage.WithLabelValues("heap_sys").Set(float64(memStats.HeapSys))
	common.GoroutineCount.Set(float64(runtime.NumGoroutine()))

	allocMB := memStats.Alloc / bytesPerMB

	fields := logrus.Fields{
		"alloc_mb":      allocMB,
		"sys_mb":        memStats.Sys / bytesPerMB,
		"heap_alloc_mb": memStats.HeapAlloc / bytesPerMB,
		"goroutines":    runtime.NumGoroutine(),
		"num_gc":        memStats.NumGC,
	}

	if m.lastAllocBytes > 0 {
		// #nosec G115 - division prevents overflow
		fields["spike_mb"] = int64(allocMB) - int64(m.lastAllocBytes/bytesPerMB)
	}

	m.lastAllocBytes = memStats.Alloc
	m.maxAllocBytes = max(m.maxAllocBytes, memStats.Alloc)
	fields["max_alloc_mb"] = m.maxAllocBytes / bytesPerMB

	switch {
	case allocMB > m.config.CriticalThresholdMB:
		m.log.WithFields(fields).Error("Critical memory usage detected")
		common.MemoryPressureEvents.WithLabelValues("critical").Inc()

		return "critical"
	case allocMB > m.config.WarningThresholdMB:
		m.log.WithFields(fields).Warn("High memory usage detected")
		common.MemoryPressureEvents.WithLabelValues("warning").Inc()

		return "warning"
	default:
		m.log.WithFields(fields).Debug("Memory usage summary")

		return ""
	}
}
