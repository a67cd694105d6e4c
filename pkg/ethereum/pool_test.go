package ethereum_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-simulator/pkg/ethereum"
	"github.com/ethpandaops/execution-simulator/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/state"
)

// staticSource serves a fixed snapshot for one chain.
type staticSource struct {
	chainID uint64
	snap    state.Snapshot
	err     error
}

func (s *staticSource) Snapshot(_ context.Context) (state.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}

	return s.snap, nil
}

func (s *staticSource) ChainID() uint64    { return s.chainID }
func (s *staticSource) ClientType() string { return "static" }
func (s *staticSource) IsSynced() bool     { return true }

// countingCache records every wrapped snapshot.
type countingCache struct {
	mu     sync.Mutex
	chains []uint64
}

func (c *countingCache) Wrap(chainID uint64, snap state.Snapshot) state.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.chains = append(c.chains, chainID)

	return snap
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func newEmbedded(name string, chainID, block uint64) *execution.EmbeddedNode {
	return execution.NewEmbeddedNode(testLogger(), name, &staticSource{
		chainID: chainID,
		snap:    state.NewMemorySnapshot(state.BlockContext{Number: block}),
	})
}

func startPool(t *testing.T, nodes ...execution.Node) *ethereum.Pool {
	t.Helper()

	pool := ethereum.NewPoolWithNodes(testLogger(), "test", nodes, nil)
	pool.Start(context.Background())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		assert.NoError(t, pool.Stop(ctx))
	})

	return pool
}

func TestPool_Creation(t *testing.T) {
	config := &ethereum.Config{
		Execution: []*execution.Config{
			{Name: "test-node-1", NodeAddress: "http://localhost:8545"},
			{Name: "test-node-2", NodeAddress: "http://localhost:8546", Chain: "bsc"},
		},
	}

	pool, err := ethereum.NewPool(testLogger(), "test", config)
	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.True(t, pool.HasExecutionNodes())
	assert.False(t, pool.HasHealthyExecutionNodes())
}

func TestPool_CreationUnknownChain(t *testing.T) {
	config := &ethereum.Config{
		Execution: []*execution.Config{
			{Name: "test-node-1", NodeAddress: "http://localhost:8545", Chain: "dogechain"},
		},
	}

	_, err := ethereum.NewPool(testLogger(), "test", config)
	assert.ErrorIs(t, err, ethereum.ErrUnsupportedChainID)
	assert.ErrorIs(t, config.Validate(), ethereum.ErrUnsupportedChainID)
}

func TestPool_EmptyConfig(t *testing.T) {
	pool, err := ethereum.NewPool(testLogger(), "test", &ethereum.Config{})
	require.NoError(t, err)

	assert.False(t, pool.HasExecutionNodes())
	assert.False(t, pool.HasHealthyExecutionNodes())
	assert.Nil(t, pool.GetHealthyExecutionNode(1))
	assert.Empty(t, pool.GetHealthyExecutionNodes(1))
	assert.Empty(t, pool.Chains())
}

func TestPool_StartStopRPC(t *testing.T) {
	config := &ethereum.Config{
		Execution: []*execution.Config{
			{Name: "test-node", NodeAddress: "http://localhost:8545"},
		},
	}

	pool, err := ethereum.NewPool(testLogger(), "test", config)
	require.NoError(t, err)

	pool.Start(context.Background())

	time.Sleep(100 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()

	start := time.Now()

	assert.NoError(t, pool.Stop(stopCtx))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestPool_WaitForHealthyNode_NoNodes(t *testing.T) {
	pool := ethereum.NewPoolWithNodes(testLogger(), "test", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	node, err := pool.WaitForHealthyExecutionNode(ctx, 1)
	assert.Error(t, err)
	assert.Nil(t, node)
	assert.Contains(t, err.Error(), "no execution nodes configured")
}

func TestPool_WaitForHealthyNode_Timeout(t *testing.T) {
	pool := startPool(t, newEmbedded("never-ready", 1, 100))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	node, err := pool.WaitForHealthyExecutionNode(ctx, 1)
	duration := time.Since(start)

	assert.Nil(t, node)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, duration, 150*time.Millisecond)
	assert.Less(t, duration, time.Second)
}

func TestPool_WaitForHealthyNode_BecomesReady(t *testing.T) {
	node := newEmbedded("mainnet-1", 1, 100)
	pool := startPool(t, node)

	go func() {
		time.Sleep(50 * time.Millisecond)

		_ = node.MarkReady(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	found, err := pool.WaitForHealthyExecutionNode(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "mainnet-1", found.Name())
}

func TestPool_SnapshotByChain(t *testing.T) {
	mainnet := newEmbedded("mainnet-1", 1, 100)
	bsc := newEmbedded("bsc-1", 56, 200)
	pool := startPool(t, mainnet, bsc)

	ctx := context.Background()

	_, err := pool.Snapshot(ctx, 1)
	assert.ErrorIs(t, err, ethereum.ErrNoHealthyNode)

	require.NoError(t, mainnet.MarkReady(ctx))
	require.NoError(t, bsc.MarkReady(ctx))

	snap, err := pool.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), snap.Block().Number)

	snap, err = pool.Snapshot(ctx, 56)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), snap.Block().Number)

	_, err = pool.Snapshot(ctx, 137)
	assert.ErrorIs(t, err, ethereum.ErrNoHealthyNode)

	assert.Equal(t, []uint64{1, 56}, pool.Chains())
}

func TestPool_SnapshotFallsBackToHealthyNode(t *testing.T) {
	failing := execution.NewEmbeddedNode(testLogger(), "failing", &staticSource{
		chainID: 1,
		err:     errors.New("state unavailable"),
	})
	working := newEmbedded("working", 1, 100)
	pool := startPool(t, failing, working)

	ctx := context.Background()

	require.NoError(t, failing.MarkReady(ctx))
	require.NoError(t, working.MarkReady(ctx))

	for i := 0; i < 10; i++ {
		snap, err := pool.Snapshot(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), snap.Block().Number)
	}
}

func TestPool_SnapshotAllNodesFail(t *testing.T) {
	srcErr := errors.New("state unavailable")
	failing := execution.NewEmbeddedNode(testLogger(), "failing", &staticSource{chainID: 1, err: srcErr})
	pool := startPool(t, failing)

	require.NoError(t, failing.MarkReady(context.Background()))

	_, err := pool.Snapshot(context.Background(), 1)
	assert.ErrorIs(t, err, srcErr)
}

func TestPool_SnapshotCache(t *testing.T) {
	node := newEmbedded("mainnet-1", 1, 100)

	cache := &countingCache{}

	pool := ethereum.NewPoolWithNodes(testLogger(), "test", []execution.Node{node}, nil)
	pool.SetCache(cache)
	pool.Start(context.Background())

	defer func() {
		_ = pool.Stop(context.Background())
	}()

	require.NoError(t, node.MarkReady(context.Background()))

	_, err := pool.Snapshot(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, []uint64{1}, cache.chains)
}

func TestPool_ConcurrentAccess(t *testing.T) {
	nodes := []execution.Node{
		newEmbedded("test-node-1", 1, 100),
		newEmbedded("test-node-2", 1, 100),
	}
	pool := startPool(t, nodes...)

	var wg sync.WaitGroup

	const numGoroutines = 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(3)

		go func() {
			defer wg.Done()

			for j := 0; j < 5; j++ {
				pool.HasHealthyExecutionNodes()
				time.Sleep(time.Millisecond)
			}
		}()

		go func() {
			defer wg.Done()

			for j := 0; j < 5; j++ {
				pool.GetHealthyExecutionNode(1)
				time.Sleep(time.Millisecond)
			}
		}()

		go func() {
			defer wg.Done()

			for j := 0; j < 5; j++ {
				_, _ = pool.Snapshot(context.Background(), 1)
				time.Sleep(time.Millisecond)
			}
		}()
	}

	for _, node := range nodes {
		embedded, ok := node.(*execution.EmbeddedNode)
		require.True(t, ok)
		require.NoError(t, embedded.MarkReady(context.Background()))
	}

	wg.Wait()

	assert.Len(t, pool.GetHealthyExecutionNodes(1), 2)
}

func TestPool_ContextCancellation(t *testing.T) {
	pool := ethereum.NewPoolWithNodes(testLogger(), "test", []execution.Node{newEmbedded("n", 1, 1)}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	pool.Start(ctx)

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()

	assert.NoError(t, pool.Stop(stopCtx))
}
