package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-simulator/internal/testutil"
	"github.com/ethpandaops/execution-simulator/pkg/simulator"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/interpreter"
)

var adder = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func stateFixture(t *testing.T) string {
	t.Helper()

	code := testutil.NewProgram().Push(2).Push(3).Op(interpreter.ADD).ReturnTop().Bytes()

	return writeFile(t, "state.json", fmt.Sprintf(`{
		"block": {"number": "0x10", "timestamp": "0x64", "gasLimit": "0x1c9c380", "baseFee": "0x0"},
		"accounts": {
			"%s": {"balance": "0x0", "nonce": "0x1", "code": "%s"}
		}
	}`, adder.Hex(), hexutil.Encode(code)))
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestRunSimulate_StateFile(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{name: "structured", format: "structured"},
		{name: "json", format: "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := writeFile(t, "request.json", fmt.Sprintf(
				`{"target_contract": %q, "chain_id": "mainnet", "output_format": %q}`, adder.Hex(), tt.format))

			var out bytes.Buffer

			err := runSimulate(context.Background(), quietLogger(), &out, &simulateOptions{
				requestFile: request,
				stateFile:   stateFixture(t),
			})
			require.NoError(t, err)

			res, err := simulator.ParseJSON(out.Bytes())
			require.NoError(t, err)

			assert.True(t, res.Success)
			assert.Equal(t, uint64(1), res.ChainID)
			assert.Equal(t, uint64(16), res.BlockNumber)
			assert.Equal(t, common.LeftPadBytes([]byte{5}, 32), []byte(res.ReturnData))
		})
	}
}

func TestRunSimulate_RequestError(t *testing.T) {
	request := writeFile(t, "request.json", `{"target_contract": "0xnothex", "chain_id": "mainnet"}`)

	err := runSimulate(context.Background(), quietLogger(), &bytes.Buffer{}, &simulateOptions{
		requestFile: request,
		stateFile:   stateFixture(t),
	})
	require.Error(t, err)
	assert.True(t, simulator.IsRequestError(err))
}

func TestRunSimulate_MissingFiles(t *testing.T) {
	err := runSimulate(context.Background(), quietLogger(), &bytes.Buffer{}, &simulateOptions{
		requestFile: filepath.Join(t.TempDir(), "missing.json"),
		stateFile:   stateFixture(t),
	})
	assert.Error(t, err)

	request := writeFile(t, "request.json", fmt.Sprintf(`{"target_contract": %q, "chain_id": 1}`, adder.Hex()))

	err = runSimulate(context.Background(), quietLogger(), &bytes.Buffer{}, &simulateOptions{requestFile: request})
	assert.Error(t, err)
}

func TestRunSimulate_RPCUnknownChain(t *testing.T) {
	request := writeFile(t, "request.json", fmt.Sprintf(`{"target_contract": %q, "chain_id": "nope"}`, adder.Hex()))

	err := runSimulate(context.Background(), quietLogger(), &bytes.Buffer{}, &simulateOptions{
		requestFile: request,
		rpcURL:      "http://127.0.0.1:1",
		waitTimeout: 100 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, simulator.IsRequestError(err))
}

func TestLoadServerConfigFromFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
apiAddr: ":9999"
logging: debug
ethereum:
  execution:
    - name: mainnet
      nodeAddress: http://localhost:8545
      chain: mainnet
simulator:
  timeBudget: 2s
redis:
  address: localhost:6379
`)

	config, err := loadServerConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", config.APIAddr)
	assert.Equal(t, ":9090", config.MetricsAddr)
	assert.Equal(t, "debug", config.LoggingLevel)
	assert.Equal(t, 2*time.Second, config.Simulator.TimeBudget)
	assert.Equal(t, uint64(30_000_000), config.Simulator.DefaultGas)
	require.Len(t, config.Ethereum.Execution, 1)
	assert.Equal(t, "mainnet", config.Ethereum.Execution[0].Chain)
	require.NotNil(t, config.Redis)
	assert.Equal(t, "localhost:6379", config.Redis.Address)
	assert.NoError(t, config.Validate())
}

func TestLoadServerConfigFromFile_NestedDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
ethereum:
  execution:
    - name: mainnet
      nodeAddress: http://localhost:8545
redis:
  address: localhost:6379
`)

	config, err := loadServerConfigFromFile(path)
	require.NoError(t, err)

	require.Len(t, config.Ethereum.Execution, 1)
	assert.Equal(t, 10*time.Second, config.Ethereum.Execution[0].RequestTimeout)
	assert.Equal(t, uint64(3), config.Ethereum.Execution[0].MaxRetries)
	assert.Equal(t, "execution-simulator", config.Redis.Prefix)
	assert.Equal(t, time.Hour, config.Redis.TTL)
}
