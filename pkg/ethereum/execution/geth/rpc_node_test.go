package geth_test

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-simulator/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-simulator/pkg/ethereum/execution/geth"
)

var (
	funded   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	contract = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

type testAccount struct {
	balance *big.Int
	nonce   uint64
	code    []byte
	storage map[common.Hash]common.Hash
}

// ethService answers the subset of the eth namespace used by RPCNode.
type ethService struct {
	head     *types.Header
	accounts map[common.Address]testAccount

	mu           sync.Mutex
	blocks       []int64
	calls        map[string]int
	storageFails int
}

func newEthService() *ethService {
	return &ethService{
		head: &types.Header{
			Number:     big.NewInt(19_000_000),
			Time:       1_700_000_000,
			GasLimit:   30_000_000,
			Coinbase:   common.HexToAddress("0xc0ffee0000000000000000000000000000000000"),
			BaseFee:    big.NewInt(7),
			Difficulty: big.NewInt(0),
			MixDigest:  common.HexToHash("0x01"),
		},
		accounts: map[common.Address]testAccount{
			funded: {balance: big.NewInt(5000), nonce: 3},
			contract: {
				balance: big.NewInt(0),
				code:    []byte{0x60, 0x00},
				storage: map[common.Hash]common.Hash{
					common.HexToHash("0x01"): common.HexToHash("0x2a"),
				},
			},
		},
		calls: make(map[string]int),
	}
}

func (s *ethService) record(method string, block rpc.BlockNumberOrHash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[method]++

	if number, ok := block.Number(); ok {
		s.blocks = append(s.blocks, number.Int64())
	}
}

func (s *ethService) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[method]
}

func (s *ethService) ChainId() hexutil.Uint64 {
	return 1
}

func (s *ethService) Syncing() bool {
	return false
}

func (s *ethService) GetBlockByNumber(_ rpc.BlockNumber, _ bool) (*types.Header, error) {
	return s.head, nil
}

func (s *ethService) GetBalance(addr common.Address, block rpc.BlockNumberOrHash) (*hexutil.Big, error) {
	s.record("balance", block)

	acc, ok := s.accounts[addr]
	if !ok {
		return (*hexutil.Big)(big.NewInt(0)), nil
	}

	return (*hexutil.Big)(acc.balance), nil
}

func (s *ethService) GetTransactionCount(addr common.Address, block rpc.BlockNumberOrHash) (hexutil.Uint64, error) {
	s.record("nonce", block)

	return hexutil.Uint64(s.accounts[addr].nonce), nil
}

func (s *ethService) GetCode(addr common.Address, block rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	s.record("code", block)

	return s.accounts[addr].code, nil
}

func (s *ethService) GetStorageAt(addr common.Address, slot string, block rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	s.record("storage", block)

	s.mu.Lock()
	if s.storageFails > 0 {
		s.storageFails--
		s.mu.Unlock()

		return nil, errors.New("temporarily unavailable")
	}
	s.mu.Unlock()

	value := s.accounts[addr].storage[common.HexToHash(slot)]

	return value.Bytes(), nil
}

type web3Service struct{}

func (web3Service) ClientVersion() string {
	return "Geth/v1.14.0-stable/linux-amd64/go1.22.0"
}

func startNode(t *testing.T, svc *ethService) *geth.RPCNode {
	t.Helper()

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", svc))
	require.NoError(t, server.RegisterName("web3", web3Service{}))

	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)
	t.Cleanup(server.Stop)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	node := geth.NewRPCNode(log, &execution.Config{
		Name:           "test-node",
		NodeAddress:    httpServer.URL,
		NodeHeaders:    map[string]string{"Authorization": "Bearer test"},
		RequestTimeout: 5 * time.Second,
		MaxRetries:     3,
	})

	ready := make(chan struct{})

	node.OnReady(context.Background(), func(_ context.Context) error {
		close(ready)

		return nil
	})

	require.NoError(t, node.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_ = node.Stop(ctx)
	})

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("node did not become ready")
	}

	return node
}

func TestRPCNode_Metadata(t *testing.T) {
	node := startNode(t, newEthService())

	assert.Equal(t, "test-node", node.Name())
	assert.Equal(t, uint64(1), node.ChainID())
	assert.Contains(t, node.ClientType(), "Geth")
	assert.Eventually(t, node.IsSynced, 2*time.Second, 10*time.Millisecond)
}

func TestRPCNode_SnapshotNotReady(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	node := geth.NewRPCNode(log, &execution.Config{Name: "idle", NodeAddress: "http://localhost:1"})

	snap, err := node.Snapshot(context.Background())
	assert.ErrorIs(t, err, execution.ErrNodeNotReady)
	assert.Nil(t, snap)
}

func TestRPCNode_SnapshotBlockContext(t *testing.T) {
	svc := newEthService()
	node := startNode(t, svc)

	snap, err := node.Snapshot(context.Background())
	require.NoError(t, err)

	block := snap.Block()
	assert.Equal(t, uint64(19_000_000), block.Number)
	assert.Equal(t, uint64(1_700_000_000), block.Time)
	assert.Equal(t, uint64(30_000_000), block.GasLimit)
	assert.Equal(t, svc.head.Coinbase, block.Coinbase)
	assert.Equal(t, uint256.NewInt(7), block.BaseFee)
	assert.Equal(t, common.HexToHash("0x01"), block.PrevRandao)
}

func TestRPCNode_SnapshotReads(t *testing.T) {
	svc := newEthService()
	node := startNode(t, svc)

	snap, err := node.Snapshot(context.Background())
	require.NoError(t, err)

	acc, err := snap.Account(funded)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, uint256.NewInt(5000), acc.Balance)
	assert.Equal(t, uint64(3), acc.Nonce)
	assert.Empty(t, acc.Code)

	acc, err = snap.Account(contract)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, []byte{0x60, 0x00}, acc.Code)

	missing, err := snap.Account(common.HexToAddress("0xdead"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	value, err := snap.Storage(contract, common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x2a"), value)

	svc.mu.Lock()
	defer svc.mu.Unlock()

	for _, number := range svc.blocks {
		assert.Equal(t, int64(19_000_000), number, "every read must be pinned to the head block")
	}
}

func TestRPCNode_SnapshotCachesReads(t *testing.T) {
	svc := newEthService()
	node := startNode(t, svc)

	snap, err := node.Snapshot(context.Background())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := snap.Account(funded)
		require.NoError(t, err)

		_, err = snap.Storage(contract, common.HexToHash("0x01"))
		require.NoError(t, err)
	}

	assert.Equal(t, 1, svc.callCount("balance"))
	assert.Equal(t, 1, svc.callCount("storage"))
}

func TestRPCNode_SnapshotRetriesTransientErrors(t *testing.T) {
	svc := newEthService()
	svc.storageFails = 2
	node := startNode(t, svc)

	snap, err := node.Snapshot(context.Background())
	require.NoError(t, err)

	value, err := snap.Storage(contract, common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x2a"), value)
	assert.Equal(t, 3, svc.callCount("storage"))
}

func TestRPCNode_SnapshotGivesUpAfterRetries(t *testing.T) {
	svc := newEthService()
	svc.storageFails = 100
	node := startNode(t, svc)

	snap, err := node.Snapshot(context.Background())
	require.NoError(t, err)

	_, err = snap.Storage(contract, common.HexToHash("0x01"))
	require.Error(t, err)
	assert.Equal(t, 4, svc.callCount("storage"))
}
