// Package simulator runs a single transaction against a chain state
// snapshot without broadcasting it and reports the outcome.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/execution-simulator/pkg/common"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/interpreter"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/state"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/tracer"
	"github.com/sirupsen/logrus"
)

// SnapshotProvider supplies the base state of a run. The returned snapshot
// must stay consistent for the lifetime of the run and support concurrent
// reads.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, chainID uint64) (state.Snapshot, error)
}

// Engine executes simulation requests. It is safe for concurrent use; each
// run owns its own state overlay and frames.
type Engine struct {
	log      logrus.FieldLogger
	config   *Config
	provider SnapshotProvider
}

// NewEngine creates an Engine. A nil config uses DefaultConfig.
func NewEngine(log logrus.FieldLogger, config *Config, provider SnapshotProvider) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	return &Engine{
		log:      log.WithField("component", "simulator"),
		config:   config,
		provider: provider,
	}
}

// Simulate validates and executes req. It returns either a Result, which
// may describe a failed transaction, or an error: a *RequestError for
// rejected requests, or an engine error wrapping ErrProviderUnavailable,
// ErrTimeBudgetExceeded or ErrInvariant.
func (e *Engine) Simulate(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	c, err := req.parse(e.config)
	if err != nil {
		common.SimulationErrors.WithLabelValues("unknown", "request").Inc()

		return nil, err
	}

	chain := c.network.Name

	log := e.log.WithFields(logrus.Fields{
		"chain":  chain,
		"target": c.to.Hex(),
	})

	if c.txHash != nil {
		log = log.WithField("tx_hash", c.txHash.Hex())
	}

	res, err := e.simulate(ctx, c)

	common.SimulationDuration.WithLabelValues(chain).Observe(time.Since(start).Seconds())

	if err != nil {
		common.SimulationErrors.WithLabelValues(chain, errorType(err)).Inc()
		log.WithError(err).Warn("Simulation aborted")

		return nil, err
	}

	status := "success"
	if !res.Success {
		status = "failed"
	}

	common.SimulationsTotal.WithLabelValues(chain, status).Inc()
	common.GasUsed.WithLabelValues(chain).Observe(float64(res.GasUsed))

	if res.TraceTruncated {
		common.TraceTruncations.WithLabelValues(chain).Inc()
	}

	log.WithFields(logrus.Fields{
		"success":  res.Success,
		"gas_used": res.GasUsed,
		"duration": time.Since(start),
	}).Debug("Simulation completed")

	return res, nil
}

// SimulateRendered runs req and renders the result in the format the
// request asked for.
func (e *Engine) SimulateRendered(ctx context.Context, req *Request) (*Rendered, error) {
	format, err := req.format()
	if err != nil {
		return nil, &RequestError{Field: "output_format", Err: err}
	}

	res, err := e.Simulate(ctx, req)
	if err != nil {
		return nil, err
	}

	return Render(res, format)
}

func (e *Engine) simulate(ctx context.Context, c *call) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%w: %v", ErrInvariant, r)
		}
	}()

	snap, err := e.provider.Snapshot(ctx, c.network.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.TimeBudget)
	defer cancel()

	block := c.blockContext(snap.Block())
	view := state.NewView(snap)

	calls := tracer.NewCallTracer(tracer.CallTracerConfig{
		FollowCalls:  c.followCalls,
		MaxCallNodes: e.config.Trace.MaxCallNodes,
	})

	hooks := []*interpreter.Hooks{calls.Hooks()}

	var instructions *tracer.InstructionTracer
	if c.instructionTrace {
		instructions = tracer.NewInstructionTracer(tracer.InstructionTracerConfig{
			MaxInstructions: e.config.Trace.MaxInstructions,
			MaxStackItems:   e.config.Trace.MaxStackItems,
			MaxBytes:        e.config.Trace.MaxTraceBytes,
		})
		hooks = append(hooks, instructions.Hooks())
	}

	evm := interpreter.New(interpreter.Config{
		ChainID:               c.network.ID,
		MaxCallDepth:          e.config.MaxCallDepth,
		DeadlineCheckInterval: e.config.DeadlineCheckInterval,
	}, view, block, tracer.Combine(hooks...))

	out, err := evm.Execute(ctx, interpreter.Message{
		From:  c.from,
		To:    c.to,
		Input: c.input,
		Value: c.value,
		Gas:   c.gas,
	})

	common.InstructionsExecuted.WithLabelValues(c.network.Name).Add(float64(evm.Steps()))

	if err != nil {
		switch {
		case errors.Is(err, interpreter.ErrTimeBudgetExceeded):
			return nil, err
		case errors.Is(err, interpreter.ErrStateUnavailable):
			return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrInvariant, err)
		}
	}

	calls.Finish(c.gas, out.GasUsed)

	return buildResult(c, block, out, view, calls, instructions), nil
}

func (c *call) blockContext(block state.BlockContext) state.BlockContext {
	if c.blockNumber != nil {
		block.Number = *c.blockNumber
	}

	if c.timestamp != nil {
		block.Time = *c.timestamp
	}

	if c.coinbase != nil {
		block.Coinbase = *c.coinbase
	}

	if c.baseFee != nil {
		block.BaseFee = c.baseFee
	}

	return block
}

func errorType(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "request"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider"
	case errors.Is(err, ErrTimeBudgetExceeded):
		return "time_budget"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	default:
		return "unknown"
	}
}
