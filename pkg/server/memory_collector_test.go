package server

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestMemoryStatsCollector_Levels(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	tests := []struct {
		name     string
		config   MemoryMonitorConfig
		expected string
	}{
		{name: "below thresholds", config: MemoryMonitorConfig{Enabled: true, WarningThresholdMB: 1 << 20, CriticalThresholdMB: 1 << 20}},
		{name: "warning", config: MemoryMonitorConfig{Enabled: true, WarningThresholdMB: 0, CriticalThresholdMB: 1 << 20}, expected: "warning"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Hold some heap so alloc is at least 1MB.
			ballast := make([]byte, 4*bytesPerMB)

			level := NewMemoryStatsCollector(log, tt.config).collectStats()
			assert.Equal(t, tt.expected, level)

			_ = ballast[0]
		})
	}
}

func TestMemoryStatsCollector_RunStops(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	collector := NewMemoryStatsCollector(log, MemoryMonitorConfig{
		Enabled:             true,
		Interval:            5 * time.Millisecond,
		WarningThresholdMB:  1 << 20,
		CriticalThresholdMB: 1 << 20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	go func() {
		collector.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestMemoryMonitorConfig_Validate(t *testing.T) {
	assert.NoError(t, (&MemoryMonitorConfig{}).Validate())
	assert.NoError(t, (&MemoryMonitorConfig{Enabled: true, Interval: time.Second, WarningThresholdMB: 1, CriticalThresholdMB: 2}).Validate())
	assert.Error(t, (&MemoryMonitorConfig{Enabled: true}).Validate())
	assert.Error(t, (&MemoryMonitorConfig{Enabled: true, Interval: time.Second, WarningThresholdMB: 2, CriticalThresholdMB: 1}).Validate())
}
