package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SimulationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_simulator_simulations_total",
		Help: "Total number of simulations by outcome",
	}, []string{"chain", "status"})

	SimulationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_simulator_simulation_duration_seconds",
		Help:    "Time taken to run a simulation, including state reads",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"chain"})

	InstructionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_simulator_instructions_executed_total",
		Help: "Total number of EVM instructions executed",
	}, []string{"chain"})

	GasUsed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_simulator_gas_used",
		Help:    "Gas used by simulated transactions",
		Buckets: prometheus.ExponentialBuckets(21000, 2, 12),
	}, []string{"chain"})

	TraceTruncations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_simulator_trace_truncations_total",
		Help: "Total number of simulations whose trace hit the recording budget",
	}, []string{"chain"})

	SimulationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_simulator_errors_total",
		Help: "Total number of simulations that ended with an engine or request error",
	}, []string{"chain", "error_type"})

	RPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_simulator_rpc_call_duration_seconds",
		Help:    "Duration of RPC calls to Ethereum nodes",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"chain_id", "node", "method", "status"})

	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_simulator_rpc_calls_total",
		Help: "Total RPC calls made to Ethereum nodes",
	}, []string{"chain_id", "node", "method", "status"})

	StateCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_simulator_state_cache_requests_total",
		Help: "Total shared state cache lookups",
	}, []string{"chain", "kind", "result"})

	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_simulator_api_requests_total",
		Help: "Total API requests by route and status code",
	}, []string{"route", "code"})
)

var (
	MemoryUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_simulator_memory_usage_bytes",
		Help: "Go runtime memory usage by kind",
	}, []string{"kind"})

	GoroutineCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "execution_simulator_goroutines",
		Help: "Number of running goroutines",
	})

	MemoryPressureEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_simulator_memory_pressure_events_total",
		Help: "Times heap usage crossed a configured threshold",
	}, []string{"level"})
)
