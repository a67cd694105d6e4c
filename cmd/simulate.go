package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/execution-simulator/pkg/ethereum"
	"github.com/ethpandaops/execution-simulator/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-simulator/pkg/simulator"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/state"
)

type simulateOptions struct {
	requestFile string
	stateFile   string
	rpcURL      string
	headers     []string
	waitTimeout time.Duration
	logLevel    string
}

var simulateOpts simulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulates a single transaction and prints the result.",
	Long: `Simulates a single transaction described by a JSON request file against
either a JSON state fixture (--state) or a live JSON-RPC node (--rpc),
and prints the rendered result to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		initCommon()
		setLogLevel(simulateOpts.logLevel)

		return runSimulate(cmd.Context(), log, cmd.OutOrStdout(), &simulateOpts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.requestFile, "request", "", "request JSON file (- for stdin)")
	simulateCmd.Flags().StringVar(&simulateOpts.stateFile, "state", "", "state fixture JSON file")
	simulateCmd.Flags().StringVar(&simulateOpts.rpcURL, "rpc", "", "JSON-RPC endpoint serving chain state")
	simulateCmd.Flags().StringSliceVar(&simulateOpts.headers, "header", nil, "extra RPC header as key=value")
	simulateCmd.Flags().DurationVar(&simulateOpts.waitTimeout, "wait", 30*time.Second, "time to wait for the RPC node to become ready")
	simulateCmd.Flags().StringVar(&simulateOpts.logLevel, "logging", "warn", "logging level")

	_ = simulateCmd.MarkFlagRequired("request")
	simulateCmd.MarkFlagsMutuallyExclusive("state", "rpc")
	simulateCmd.MarkFlagsOneRequired("state", "rpc")

	rootCmd.AddCommand(simulateCmd)
}

// staticProvider serves one snapshot for every chain.
type staticProvider struct {
	snap state.Snapshot
}

func (p *staticProvider) Snapshot(_ context.Context, _ uint64) (state.Snapshot, error) {
	return p.snap, nil
}

func runSimulate(ctx context.Context, log logrus.FieldLogger, out io.Writer, opts *simulateOptions) error {
	req, err := readRequest(opts.requestFile)
	if err != nil {
		return err
	}

	config := &simulator.Config{}
	if err := defaults.Set(config); err != nil {
		return err
	}

	var provider simulator.SnapshotProvider

	switch {
	case opts.stateFile != "":
		snap, err := state.LoadMemorySnapshot(opts.stateFile)
		if err != nil {
			return fmt.Errorf("failed to load state: %w", err)
		}

		provider = &staticProvider{snap: snap}
	case opts.rpcURL != "":
		pool, err := startRPCPool(ctx, log, req, opts)
		if err != nil {
			return err
		}

		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = pool.Stop(stopCtx)
		}()

		provider = pool
	default:
		return errors.New("one of --state or --rpc is required")
	}

	engine := simulator.NewEngine(log, config, provider)

	rendered, err := engine.SimulateRendered(ctx, req)
	if err != nil {
		return err
	}

	data := rendered.JSON
	if rendered.Format == simulator.FormatStructured {
		data, err = json.MarshalIndent(rendered.Result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	}

	_, err = fmt.Fprintln(out, string(data))

	return err
}

func readRequest(file string) (*simulator.Request, error) {
	var (
		raw []byte
		err error
	)

	if file == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(file)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}

	var req simulator.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}

	return &req, nil
}

// startRPCPool starts a single node pool and waits until it serves the
// request's chain.
func startRPCPool(ctx context.Context, log logrus.FieldLogger, req *simulator.Request, opts *simulateOptions) (*ethereum.Pool, error) {
	network, err := ethereum.ResolveChain(string(req.Chain))
	if err != nil {
		return nil, &simulator.RequestError{Field: "chain_id", Err: err}
	}

	nodeConfig := &execution.Config{
		Name:        "cli",
		NodeAddress: opts.rpcURL,
		NodeHeaders: make(map[string]string, len(opts.headers)),
		Chain:       network.Name,
	}

	if err := defaults.Set(nodeConfig); err != nil {
		return nil, err
	}

	for _, header := range opts.headers {
		key, value, ok := strings.Cut(header, "=")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, expected key=value", header)
		}

		nodeConfig.NodeHeaders[key] = value
	}

	config := &ethereum.Config{Execution: []*execution.Config{nodeConfig}}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	pool, err := ethereum.NewPool(log, "execution_simulator_cli", config)
	if err != nil {
		return nil, err
	}

	pool.Start(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, opts.waitTimeout)
	defer cancel()

	if _, err := pool.WaitForHealthyExecutionNode(waitCtx, network.ID); err != nil {
		_ = pool.Stop(context.Background())

		return nil, fmt.Errorf("rpc node did not become ready: %w", err)
	}

	return pool, nil
}
